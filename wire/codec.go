package wire

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec 消息编解码
type Codec interface {
	Name() string
	Binary() bool // true 时使用 websocket 二进制帧
	Encode(Message) ([]byte, error)
	Decode([]byte, *Message) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string                     { return "json" }
func (jsonCodec) Binary() bool                     { return false }
func (jsonCodec) Encode(m Message) ([]byte, error) { return json.Marshal(m) }
func (jsonCodec) Decode(b []byte, m *Message) error {
	return json.Unmarshal(b, m)
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string                     { return "msgpack" }
func (msgpackCodec) Binary() bool                     { return true }
func (msgpackCodec) Encode(m Message) ([]byte, error) { return msgpack.Marshal(&m) }
func (msgpackCodec) Decode(b []byte, m *Message) error {
	return msgpack.Unmarshal(b, m)
}

var (
	JSON    Codec = jsonCodec{}
	Msgpack Codec = msgpackCodec{}
)

// ParseCodec 按名称选择编解码；空字符串为 JSON
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return Msgpack, nil
	}
	return nil, fmt.Errorf("wire: unknown codec %q", name)
}

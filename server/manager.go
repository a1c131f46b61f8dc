package server

import (
	"sync"

	"tilesync/journal"
)

// RoomManager 管理多个房间的生命周期
type RoomManager struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	cfg     Config
	journal *journal.Writer
}

var (
	defaultManager *RoomManager
	once           sync.Once
)

// NewRoomManager j 可为 nil（不写 Tick 日志）
func NewRoomManager(cfg Config, j *journal.Writer) *RoomManager {
	return &RoomManager{rooms: make(map[string]*Room), cfg: cfg, journal: j}
}

// InitRoomManager 用指定配置初始化单例；必须在首次 GetRoomManager 之前调用
func InitRoomManager(cfg Config, j *journal.Writer) *RoomManager {
	once.Do(func() {
		defaultManager = NewRoomManager(cfg, j)
	})
	return defaultManager
}

// GetRoomManager 单例房间管理器；未初始化时使用默认配置
func GetRoomManager() *RoomManager {
	once.Do(func() {
		defaultManager = NewRoomManager(DefaultConfig(), nil)
	})
	return defaultManager
}

// Config 房间使用的配置
func (m *RoomManager) Config() Config { return m.cfg }

// GetOrCreateRoom 获取或创建房间，并确保开始 Tick
func (m *RoomManager) GetOrCreateRoom(id string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		r = NewRoom(id, m.cfg, m.journal)
		m.rooms[id] = r
		r.StartTicker()
	}
	return r
}

// Shutdown 停止所有房间的 Tick 循环；返回时不再有 Tick 写日志
func (m *RoomManager) Shutdown() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rooms {
		r.Stop()
	}
}

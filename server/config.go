package server

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"tilesync/wire"
)

// Config 服务器配置（YAML），缺省字段保留 DefaultConfig 的值
type Config struct {
	Addr             string    `yaml:"addr"`
	TicksPerSecond   int       `yaml:"ticks_per_second"`
	Width            int       `yaml:"width"`
	Height           int       `yaml:"height"`
	HistoryTicks     int       `yaml:"history_ticks"`     // 可回滚的 Tick 数，需覆盖最大往返
	MoveThresholdMs  int       `yaml:"move_threshold_ms"` // 累计按住多久开始移动
	AllowDiagonal    bool      `yaml:"allow_diagonal"`
	MaxInputsPerTick int       `yaml:"max_inputs_per_tick"`
	Codec            string    `yaml:"codec"` // 客户端未指定时的默认编解码
	JournalDir       string    `yaml:"journal_dir"`
	Log              LogConfig `yaml:"log"`
}

// LogConfig 日志文件与滚动策略
type LogConfig struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig 默认配置：20 TPS，64x64 地图
func DefaultConfig() Config {
	return Config{
		Addr:             ":8080",
		TicksPerSecond:   20,
		Width:            64,
		Height:           64,
		HistoryTicks:     128,
		MoveThresholdMs:  150,
		AllowDiagonal:    true,
		MaxInputsPerTick: 8,
		Codec:            "json",
		Log: LogConfig{
			File:       "app.log",
			Level:      "debug",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// LoadConfig 读取 YAML；path 为空或文件不存在时返回默认配置
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate 检查取值范围
func (c Config) Validate() error {
	switch {
	case c.TicksPerSecond < 1 || c.TicksPerSecond > 1000:
		return fmt.Errorf("ticks_per_second out of range: %d", c.TicksPerSecond)
	case c.Width < 1 || c.Width > 1<<15-1 || c.Height < 1 || c.Height > 1<<15-1:
		return fmt.Errorf("map size out of range: %dx%d", c.Width, c.Height)
	case c.HistoryTicks < 1 || c.HistoryTicks >= 1<<15:
		return fmt.Errorf("history_ticks out of range: %d", c.HistoryTicks)
	case c.MoveThresholdMs < 1:
		return fmt.Errorf("move_threshold_ms must be positive: %d", c.MoveThresholdMs)
	case c.MaxInputsPerTick < 1:
		return fmt.Errorf("max_inputs_per_tick must be positive")
	}
	if _, err := wire.ParseCodec(c.Codec); err != nil {
		return err
	}
	return nil
}

// TickInterval 每个 Tick 的时长
func (c Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TicksPerSecond)
}

// MoveThreshold 开始移动所需的累计按住时长
func (c Config) MoveThreshold() time.Duration {
	return time.Duration(c.MoveThresholdMs) * time.Millisecond
}

package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port         int           `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		IdleTimeout  time.Duration `yaml:"idle_timeout"`
	} `yaml:"server"`

	Game struct {
		// DefaultRoom 未指定配置時的房間預設值
		DefaultRoom GameConfig `yaml:"default_room"`
		// CleanupInterval 兜底清理掃描間隔
		CleanupInterval time.Duration `yaml:"cleanup_interval"`
	} `yaml:"game"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultConfig 預設配置
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.IdleTimeout = 60 * time.Second
	cfg.Game.DefaultRoom = DefaultGameConfig()
	cfg.Game.CleanupInterval = 5 * time.Minute
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// LoadConfig 載入配置檔
//
// path 為空時直接使用預設值；檔案存在即覆蓋預設值並驗證。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 - 路徑來自啟動參數
	if err != nil {
		return nil, fmt.Errorf("讀取配置檔失敗: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置檔失敗: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 驗證配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("無效的端口: %d", c.Server.Port)
	}
	if err := c.Game.DefaultRoom.Validate(); err != nil {
		return fmt.Errorf("無效的房間預設配置: %w", err)
	}
	if c.Game.CleanupInterval <= 0 {
		return fmt.Errorf("清理間隔必須為正: %s", c.Game.CleanupInterval)
	}
	return nil
}

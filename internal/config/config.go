package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// AppConfig 应用配置
type AppConfig struct {
	Server  ServerConfig  `toml:"server"`
	Data    DataConfig    `toml:"data"`
	Backend BackendConfig `toml:"backend"`
	Import  ImportConfig  `toml:"import"`
	Broker  BrokerConfig  `toml:"broker"`
	Log     LogConfig     `toml:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port       int      `toml:"port" env:"IXORA_PORT" validate:"gte=0,lte=65535"`
	DevMode    bool     `toml:"dev_mode" env:"IXORA_DEV"`
	SessionTTL Duration `toml:"session_ttl" env:"IXORA_SESSION_TTL" validate:"gt=0"`
	MaxUpload  int64    `toml:"max_upload_bytes" env:"IXORA_MAX_UPLOAD_BYTES" validate:"gt=0"`
}

// DataConfig 数据配置
type DataConfig struct {
	DataDir string `toml:"data_dir" env:"IXORA_DATA_DIR" validate:"required"`
}

// BackendConfig 库存后端配置
type BackendConfig struct {
	BaseURL            string   `toml:"base_url" env:"IXORA_SERVER_URL" validate:"required,url"`
	Token              string   `toml:"token" env:"IXORA_TOKEN"`
	Timeout            Duration `toml:"timeout" env:"IXORA_BACKEND_TIMEOUT" validate:"gt=0"`
	DefaultInventoryID int64    `toml:"default_inventory_id" env:"IXORA_INVENTORY_ID" validate:"gte=1"`
}

// ImportConfig 导入配置
type ImportConfig struct {
	DefaultMode      string   `toml:"default_mode" env:"IXORA_IMPORT_MODE" validate:"oneof=crear actualizar ambos"`
	YieldEvery       int      `toml:"yield_every" env:"IXORA_IMPORT_YIELD_EVERY" validate:"gte=0"`
	YieldPause       Duration `toml:"yield_pause" env:"IXORA_IMPORT_YIELD_PAUSE" validate:"gte=0"`
	Workers          int      `toml:"workers" env:"IXORA_IMPORT_WORKERS" validate:"gte=1,lte=64"`
	MaxErrorMessages int      `toml:"max_error_messages" env:"IXORA_IMPORT_MAX_ERRORS" validate:"gte=0"`
	SynonymsPath     string   `toml:"synonyms_path" env:"IXORA_SYNONYMS_PATH"`
}

// BrokerConfig MQTT 通知配置，URL 为空时不启用
type BrokerConfig struct {
	URL         string `toml:"url" env:"IXORA_BROKER_URL"`
	ClientID    string `toml:"client_id" env:"IXORA_BROKER_CLIENT_ID"`
	Username    string `toml:"username" env:"IXORA_BROKER_USERNAME"`
	Password    string `toml:"password" env:"IXORA_BROKER_PASSWORD"`
	TopicPrefix string `toml:"topic_prefix" env:"IXORA_BROKER_TOPIC_PREFIX"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `toml:"level" env:"IXORA_LOG_LEVEL" validate:"oneof=debug info warn error"`
}

// Duration 以 "30s"、"10ms" 形式书写的时长
type Duration time.Duration

// Std 转为 time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalText 实现 encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// LoadConfigInfo 配置加载元信息
type LoadConfigInfo struct {
	ConfigPath    string
	PortSpecified bool
	EnvFiles      int
}

// DefaultConfig 默认配置
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:       20262,
			DevMode:    false,
			SessionTTL: Duration(30 * time.Minute),
			MaxUpload:  32 << 20,
		},
		Data: DataConfig{
			DataDir: "data",
		},
		Backend: BackendConfig{
			BaseURL:            "http://localhost:3001",
			Timeout:            Duration(30 * time.Second),
			DefaultInventoryID: 1,
		},
		Import: ImportConfig{
			DefaultMode:      "ambos",
			YieldEvery:       10,
			YieldPause:       Duration(10 * time.Millisecond),
			Workers:          1,
			MaxErrorMessages: 10,
		},
		Broker: BrokerConfig{
			ClientID:    "ixora-import",
			TopicPrefix: "ixora",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func isPortSpecifiedInToml(data []byte) bool {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return false
	}

	serverAny, ok := raw["server"]
	if !ok {
		return false
	}

	serverMap, ok := serverAny.(map[string]any)
	if !ok {
		return false
	}

	_, ok = serverMap["port"]
	return ok
}

// GetExeDir 获取可执行文件所在目录
func GetExeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// DefaultConfigPath 可执行文件同目录下的 config.toml
func DefaultConfigPath() string {
	exeDir, err := GetExeDir()
	if err != nil {
		// 无法获取可执行文件目录，使用当前目录
		exeDir = "."
	}
	return filepath.Join(exeDir, "config.toml")
}

// LoadConfigWithInfo 从 config.toml 加载配置并返回元信息
func LoadConfigWithInfo() (*AppConfig, LoadConfigInfo, error) {
	return LoadFrom(DefaultConfigPath(), ".env", ".env.local")
}

// LoadFrom 依次应用：默认值 → TOML 文件 → .env 文件 → 环境变量，最后校验
func LoadFrom(configPath string, envFiles ...string) (*AppConfig, LoadConfigInfo, error) {
	info := LoadConfigInfo{ConfigPath: configPath}
	config := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		info.PortSpecified = isPortSpecifiedInToml(data)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, info, fmt.Errorf("failed to parse %s: %w", configPath, err)
		}
	case os.IsNotExist(err):
		// 配置文件不存在，使用默认配置
	default:
		return nil, info, err
	}

	n, err := loadEnvFiles(envFiles)
	if err != nil {
		return nil, info, fmt.Errorf("failed to load env files: %w", err)
	}
	info.EnvFiles = n

	// 环境变量覆盖（容器 / 本地运行）
	if err := env.Parse(config); err != nil {
		return nil, info, fmt.Errorf("failed to parse environment: %w", err)
	}
	if os.Getenv("IXORA_PORT") != "" {
		info.PortSpecified = true
	}

	if err := Validate(config); err != nil {
		return nil, info, err
	}
	return config, info, nil
}

// loadEnvFiles 加载存在的 .env 文件，已存在的环境变量不被覆盖
func loadEnvFiles(files []string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

var validate = validator.New()

// Validate 校验配置取值
func Validate(config *AppConfig) error {
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// SaveConfig 保存配置到 config.toml
func SaveConfig(config *AppConfig) error {
	data, err := toml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(DefaultConfigPath(), data, 0644)
}

// EnsureDataDir 确保数据目录存在
// 相对路径的数据目录位于可执行文件同目录下
func EnsureDataDir(config *AppConfig) (string, error) {
	dataDir := config.Data.DataDir
	if !filepath.IsAbs(dataDir) {
		exeDir, err := GetExeDir()
		if err != nil {
			exeDir = "."
		}
		dataDir = filepath.Join(exeDir, dataDir)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}
	return dataDir, nil
}

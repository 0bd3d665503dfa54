package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	TryOn    TryOnConfig    `mapstructure:"tryon"`
	Search   SearchConfig   `mapstructure:"search"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Host     string         `mapstructure:"host"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

// UpstreamConfig LLM 上游（OpenAI 兼容接口）配置
type UpstreamConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	ChatModel    string        `mapstructure:"chat_model"`
	VisionModel  string        `mapstructure:"vision_model"`
	Timeout      time.Duration `mapstructure:"timeout"`
	VendorFormat bool          `mapstructure:"vendor_format"` // 上游是否输出厂商私有SSE格式，需经流转换
}

// TryOnConfig 虚拟试穿生成 API 配置
type TryOnConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	PollDeadline    time.Duration `mapstructure:"poll_deadline"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
}

type SearchConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Limit    int    `mapstructure:"limit"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StorageConfig struct {
	Type       string `mapstructure:"type"`
	DataDir    string `mapstructure:"data_dir"`
	UploadsDir string `mapstructure:"uploads_dir"`
	CacheSize  int    `mapstructure:"cache_size"`
}

type BrokerConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

func Load(configPath string) (*Config, error) {
	// .env 优先加载，便于本地开发注入密钥
	_ = godotenv.Load()

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("STYLIST")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	// 配置文件优先，缺省时回退到环境变量
	if cfg.Upstream.APIKey == "" {
		if apiKey := os.Getenv("STYLIST_LLM_API_KEY"); apiKey != "" {
			cfg.Upstream.APIKey = apiKey
		}
		if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
			cfg.Upstream.APIKey = apiKey
		}
	}
	if cfg.TryOn.APIKey == "" {
		if apiKey := os.Getenv("TRYON_API_KEY"); apiKey != "" {
			cfg.TryOn.APIKey = apiKey
		}
	}

	applyDefaults(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.TryOn.PollInterval <= 0 {
		cfg.TryOn.PollInterval = 3 * time.Second
	}
	if cfg.TryOn.PollDeadline <= 0 {
		cfg.TryOn.PollDeadline = 5 * time.Minute
	}
	if cfg.TryOn.DownloadTimeout <= 0 {
		cfg.TryOn.DownloadTimeout = 60 * time.Second
	}
	if cfg.Search.Limit <= 0 {
		cfg.Search.Limit = 10
	}
	if cfg.Broker.TTL <= 0 {
		cfg.Broker.TTL = 5 * time.Minute
	}
	if cfg.Storage.UploadsDir == "" {
		cfg.Storage.UploadsDir = "./uploads"
	}
	if cfg.Storage.CacheSize <= 0 {
		cfg.Storage.CacheSize = 100
	}
	if cfg.Upstream.Timeout <= 0 {
		cfg.Upstream.Timeout = 120 * time.Second
	}
	// 服务间自寻址缺省指向本机监听端口
	if cfg.Host == "" {
		cfg.Host = fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	}
}

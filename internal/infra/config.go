package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config: корневая структура конфигурации BFF.
type Config struct {
	Server     ServerConfig            `mapstructure:"server"`
	Database   DatabaseConfig          `mapstructure:"database"`
	Redis      RedisConfig             `mapstructure:"redis"`
	Auth       AuthConfig              `mapstructure:"auth"`
	Sources    map[string]SourceConfig `mapstructure:"sources"`
	Fanout     FanoutConfig            `mapstructure:"fanout"`
	Breaker    BreakerConfig           `mapstructure:"breaker"`
	Export     ExportConfig            `mapstructure:"export"`
	Realtime   RealtimeConfig          `mapstructure:"realtime"`
	Monitoring MonitoringConfig        `mapstructure:"monitoring"`
	API        APIConfig               `mapstructure:"api"`
	Logger     LoggerConfig            `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL (журнал аудита запросов).
// Пустой URL отключает журнал.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub и Cache).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig: только проверка токенов: выпускает их внешний IdP.
type AuthConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
	Issuer        string `mapstructure:"issuer"`
	PublicKey     []byte
}

// SourceConfig: один бэкенд концессионера.
type SourceConfig struct {
	URL      string `mapstructure:"url"`
	Resource string `mapstructure:"resource"`
}

type FanoutConfig struct {
	Parallelism    int           `mapstructure:"parallelism"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MergeStrategy  string        `mapstructure:"merge_strategy"` // topk | window
	MaxProbeSize   int           `mapstructure:"max_probe_size"`
}

// BreakerConfig: пороги предохранителя, одинаковые для всех источников.
type BreakerConfig struct {
	WindowSize       int           `mapstructure:"window_size"`
	MinCalls         int           `mapstructure:"min_calls"`
	FailureRate      float64       `mapstructure:"failure_rate"`
	SlowCallRate     float64       `mapstructure:"slow_call_rate"`
	SlowCallDuration time.Duration `mapstructure:"slow_call_duration"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
	HalfOpenCalls    uint32        `mapstructure:"half_open_calls"`
}

// ExportConfig: Timeout ограничивает обход целиком и должен быть меньше server.write_timeout,
// иначе выгрузка продолжится после того, как сервер перестал ждать ответ.
type ExportConfig struct {
	PageSize int           `mapstructure:"page_size"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type RealtimeConfig struct {
	IngestChannel string `mapstructure:"ingest_channel"`
	LatestMirror  bool   `mapstructure:"latest_mirror"`
	SendBuffer    int    `mapstructure:"send_buffer"`
}

// MonitoringConfig: сервис наблюдаемых номеров (CRUD-проксирование).
type MonitoringConfig struct {
	URL          string        `mapstructure:"url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	RateBurst    int           `mapstructure:"rate_burst"`
	RetryAttempt uint          `mapstructure:"retry_attempts"`
}

type APIConfig struct {
	DefaultPageSize  int           `mapstructure:"default_page_size"`
	MaxPageSize      int           `mapstructure:"max_page_size"`
	FilterOptionsTTL time.Duration `mapstructure:"filter_options_ttl"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// FANOUT_CALL_TIMEOUT=5s перекроет fanout.call_timeout
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет: работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate отсекает конфигурации, с которыми fan-out не имеет смысла.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return errors.New("config: at least one source must be configured under 'sources'")
	}
	for name, s := range c.Sources {
		if s.URL == "" {
			return fmt.Errorf("config: source %q has empty url", name)
		}
	}
	switch c.Fanout.MergeStrategy {
	case "topk", "window":
	default:
		return fmt.Errorf("config: unknown fanout.merge_strategy %q", c.Fanout.MergeStrategy)
	}
	if c.Breaker.FailureRate <= 0 || c.Breaker.FailureRate > 1 {
		return fmt.Errorf("config: breaker.failure_rate must be in (0,1], got %v", c.Breaker.FailureRate)
	}
	if c.Export.Timeout > 0 && c.Server.WriteTimeout > 0 && c.Export.Timeout >= c.Server.WriteTimeout {
		return fmt.Errorf("config: export.timeout %v must be below server.write_timeout %v", c.Export.Timeout, c.Server.WriteTimeout)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second) // экспорт бывает долгим
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("sources", map[string]any{
		"cart":      map[string]any{"url": "http://microservico-radar-cart:8080", "resource": "radares"},
		"eixo":      map[string]any{"url": "http://microservico-radar-eixo:8080", "resource": "radares"},
		"entrevias": map[string]any{"url": "http://microservico-radar-entrevias:8080", "resource": "radares"},
		"rondon":    map[string]any{"url": "http://microsservico-radar-rondon:8080", "resource": "radares"},
	})

	v.SetDefault("fanout.parallelism", 10)
	v.SetDefault("fanout.connect_timeout", 5*time.Second)
	v.SetDefault("fanout.call_timeout", 10*time.Second)
	v.SetDefault("fanout.request_timeout", 12*time.Second)
	v.SetDefault("fanout.merge_strategy", "topk")
	v.SetDefault("fanout.max_probe_size", 2000)

	v.SetDefault("breaker.window_size", 100)
	v.SetDefault("breaker.min_calls", 5)
	v.SetDefault("breaker.failure_rate", 0.5)
	v.SetDefault("breaker.slow_call_rate", 0.5)
	v.SetDefault("breaker.slow_call_duration", 5*time.Second)
	v.SetDefault("breaker.open_timeout", 30*time.Second)
	v.SetDefault("breaker.half_open_calls", 3)

	v.SetDefault("export.page_size", 1000)
	v.SetDefault("export.timeout", 55*time.Second)

	v.SetDefault("realtime.ingest_channel", RedisChanRadarData)
	v.SetDefault("realtime.latest_mirror", true)
	v.SetDefault("realtime.send_buffer", 256)

	v.SetDefault("monitoring.timeout", 10*time.Second)
	v.SetDefault("monitoring.rate_limit", 100)
	v.SetDefault("monitoring.rate_burst", 20)
	v.SetDefault("monitoring.retry_attempts", 3)

	v.SetDefault("api.default_page_size", 20)
	v.SetDefault("api.max_page_size", 2000)
	v.SetDefault("api.filter_options_ttl", 10*time.Minute)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// loadKeyResource: PEM из ENV (Docker/K8s) приоритетнее файла
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}

// Package config предоставляет структуры и функции для парсинга и загрузки конфига сервиса.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	// EnvLocal локальный запуск, текстовые логи.
	EnvLocal = "local"
	// EnvDev тестовый стенд.
	EnvDev = "dev"
	// EnvProd боевое окружение.
	EnvProd = "prod"
)

// Config общая структура для хранения настроек.
type Config struct {
	Env             string `yaml:"env" env:"APP_ENV" env-default:"local"`
	HTTPServer      `yaml:"http_server"`
	Storage         `yaml:"storage"`
	RedisConnection `yaml:"redis_connection"`
	Policy          `yaml:"policy"`
	Scheduler       `yaml:"scheduler"`
	Reply           `yaml:"reply"`
	Messenger       `yaml:"messenger"`
	RabbitMQ        `yaml:"rabbitmq"`
	Admin           `yaml:"admin"`
	RateLimit       `yaml:"rate_limit"`
}

// HTTPServer структура для настройки сервера.
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	// MaxInFlight ограничивает число одновременно обрабатываемых входящих сообщений.
	MaxInFlight int `yaml:"max_in_flight" env-default:"32"`
}

// Storage выбирает бэкенд для коллекций записей.
type Storage struct {
	Driver    string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"file"`
	Dir       string `yaml:"dir" env:"STORAGE_DIR" env-default:"./data"`
	KeyPrefix string `yaml:"key_prefix" env-default:"companion:"`
}

// RedisConnection структура для настройки подключения к redis.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS" env-default:"localhost:6379"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
}

// Policy описывает временные ограничения доступа.
type Policy struct {
	Timezone         string        `yaml:"timezone" env:"POLICY_TIMEZONE" env-default:"America/Mexico_City"`
	TrialDays        int           `yaml:"trial_days" env-default:"21"`
	SubscriptionDays int           `yaml:"subscription_days" env-default:"30"`
	SoftReminder     time.Duration `yaml:"soft_reminder" env-default:"25m"`
	FinalReminder    time.Duration `yaml:"final_reminder" env-default:"30m"`
	HardLimit        time.Duration `yaml:"hard_limit" env-default:"45m"`
	HistorySize      int           `yaml:"history_size" env-default:"10"`
}

// Scheduler настройки фоновых задач.
type Scheduler struct {
	ReminderInterval time.Duration `yaml:"reminder_interval" env-default:"1h"`
	ReminderRetry    time.Duration `yaml:"reminder_retry" env-default:"5m"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval" env-default:"168h"`
	SessionStaleness time.Duration `yaml:"session_staleness" env-default:"168h"`
	TrialRetention   time.Duration `yaml:"trial_retention" env-default:"2160h"`
}

// Reply настройки клиента генерации ответов.
type Reply struct {
	BaseURL     string        `yaml:"base_url" env-default:"https://api.deepseek.com"`
	APIKey      string        `yaml:"api_key" env:"DEEPSEEK_API_KEY"`
	Model       string        `yaml:"model" env-default:"deepseek-chat"`
	Temperature float32       `yaml:"temperature" env-default:"0.7"`
	MaxTokens   int           `yaml:"max_tokens" env-default:"600"`
	Timeout     time.Duration `yaml:"timeout" env-default:"30s"`
}

// Messenger настройки исходящих сообщений.
type Messenger struct {
	Driver           string `yaml:"driver" env:"MESSENGER_DRIVER" env-default:"log"`
	TwilioAccountSID string `yaml:"twilio_account_sid" env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `yaml:"twilio_auth_token" env:"TWILIO_AUTH_TOKEN"`
	TwilioFrom       string `yaml:"twilio_from" env-default:"whatsapp:+14155238886"`
	TwilioBaseURL    string `yaml:"twilio_base_url" env-default:"https://api.twilio.com"`
}

// RabbitMQ настройки подключения к брокеру.
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"max_retries" env-default:"5"`
	RabbitMQRetryDelay time.Duration `yaml:"retry_delay" env-default:"3s"`
	Exchange           string        `yaml:"exchange" env-default:"notifications"`
	RoutingKey         string        `yaml:"routing_key" env-default:"outbound"`
	// RelayWorkers одновременные доставки в процессе relay.
	RelayWorkers int `yaml:"relay_workers" env-default:"10"`
}

// Admin настройки административного API.
type Admin struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"ADMIN_JWT_SECRET"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// RateLimit ограничения частоты входящих сообщений от одного отправителя.
type RateLimit struct {
	PerUserRPS   float64 `yaml:"per_user_rps" env-default:"1"`
	PerUserBurst int     `yaml:"per_user_burst" env-default:"5"`
	AdminRPS     float64 `yaml:"admin_rps" env-default:"5"`
	AdminBurst   int     `yaml:"admin_burst" env-default:"10"`
}

// Load читает конфиг из файла и переменных окружения и проверяет его.
func Load(configPath string) (*Config, error) {
	const op = "config.Load"

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad загружает конфиг по пути из CONFIG_PATH, завершает процесс при ошибке.
func MustLoad() *Config {
	// .env нужен только для локального запуска, его отсутствие не ошибка
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Validate проверяет согласованность настроек политики.
func (c *Config) Validate() error {
	p := c.Policy
	if p.SoftReminder <= 0 || p.SoftReminder >= p.FinalReminder || p.FinalReminder >= p.HardLimit {
		return fmt.Errorf("session thresholds must satisfy 0 < soft (%s) < final (%s) < hard (%s)",
			p.SoftReminder, p.FinalReminder, p.HardLimit)
	}
	if p.TrialDays <= 0 || p.SubscriptionDays <= 0 {
		return errors.New("trial and subscription lengths must be positive")
	}
	if p.HistorySize <= 0 {
		return errors.New("history size must be positive")
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", p.Timezone, err)
	}
	switch c.Storage.Driver {
	case "file", "redis":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Messenger.Driver {
	case "twilio", "rabbitmq", "log":
	default:
		return fmt.Errorf("unknown messenger driver %q", c.Messenger.Driver)
	}
	return nil
}

// Location возвращает часовой пояс, в котором считаются календарные дни.
func (p Policy) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

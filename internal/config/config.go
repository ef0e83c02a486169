// Package config предоставляет структуры и функции для парсинга и загрузки конфига.
// Значения читаются из YAML-файла (CONFIG_PATH) и могут быть переопределены
// переменными окружения, поэтому секреты не обязаны лежать в файле.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwt"`
	Trial                   `yaml:"trial"`
	Stripe                  `yaml:"stripe"`
	RedisConnection         `yaml:"redis_connection"`
	RabbitMQ                `yaml:"rabbitmq"`
	SMTP                    `yaml:"smtp"`
	Provisioning            `yaml:"provisioning"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP    string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":5000"`
	TimeoutHTTP    time.Duration `yaml:"timeout" env-default:"10s"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" env-default:"60s"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-default:"*"`
}

// JWTToken структура для работы с jwt-токеном
type JWTToken struct {
	JWTSecretKey string        `yaml:"secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
	TokenHeader  string        `yaml:"token_header" env-default:"x-access-token"`
}

// Trial настройки пробного периода
type Trial struct {
	TrialDuration     time.Duration `yaml:"duration" env-default:"168h"`
	ReminderWindow    time.Duration `yaml:"reminder_window" env-default:"24h"`
	SchedulerInterval time.Duration `yaml:"scheduler_interval" env-default:"12h"`
	AllowSelfUpgrade  bool          `yaml:"allow_self_upgrade" env:"ALLOW_SELF_UPGRADE"`
}

// Stripe настройки платёжного провайдера
type Stripe struct {
	StripeSecretKey     string `yaml:"secret_key" env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `yaml:"webhook_secret" env:"STRIPE_WEBHOOK_SECRET"`
	StripePriceID       string `yaml:"price_id" env:"STRIPE_PRICE_ID"`
	FrontendURL         string `yaml:"frontend_url" env:"FRONTEND_URL" env-default:"http://localhost:3000"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis    string        `yaml:"address" env:"REDIS_ADDRESS"`
	Password        string        `yaml:"password" env:"REDIS_PASSWORD"`
	User            string        `yaml:"user" env:"REDIS_USER"`
	DB              int           `yaml:"db"`
	MaxRetries      int           `yaml:"max_retries"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	TimeoutRedis    time.Duration `yaml:"timeout"`
	WebhookDedupTTL time.Duration `yaml:"webhook_dedup_ttl" env-default:"72h"`
}

// RabbitMQ настройки брокера сообщений
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"max_retries" env-default:"5"`
	RabbitMQRetryDelay time.Duration `yaml:"retry_delay" env-default:"3s"`
}

// SMTP настройки почтового транспорта
type SMTP struct {
	SMTPHost string `yaml:"host" env:"SMTP_HOST"`
	SMTPPort string `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	SMTPUser string `yaml:"user" env:"SMTP_USER"`
	SMTPPass string `yaml:"pass" env:"SMTP_PASS"`
}

// Provisioning настройки выдачи WireGuard-профилей
type Provisioning struct {
	ClientsDir string `yaml:"clients_dir" env-default:"/etc/wireguard/clients"`
	Endpoint   string `yaml:"endpoint" env-default:"vpn.tarimtours.com:51820"`
	DNS        string `yaml:"dns" env-default:"1.1.1.1"`
}

// Load читает конфиг из файла path и переменных окружения.
func Load(path string) (*Config, error) {
	const op = "config.Load"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, path)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.JWTSecretKey == "" {
		return nil, fmt.Errorf("%s: jwt secret key is not set", op)
	}
	return &cfg, nil
}

// MustLoad функция для загрузки конфига, путь берётся из CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"StorageConnectionString: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"JWTToken:\n"+
			"  JWTSecretKey: %s\n"+
			"  TokenTTL: %s\n"+
			"Trial:\n"+
			"  Duration: %s\n"+
			"  AllowSelfUpgrade: %t\n"+
			"Stripe:\n"+
			"  SecretKey: %s\n"+
			"  WebhookSecret: %s\n"+
			"  PriceID: %s\n"+
			"  FrontendURL: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"RabbitMQ:\n"+
			"  URL: %s\n",
		c.Env,
		redact(c.StorageConnectionString),
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		redact(c.JWTSecretKey),
		c.TokenTTL,
		c.TrialDuration,
		c.AllowSelfUpgrade,
		redact(c.StripeSecretKey),
		redact(c.StripeWebhookSecret),
		c.StripePriceID,
		c.FrontendURL,
		c.AddressRedis,
		redact(c.RabbitMQURL),
	)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

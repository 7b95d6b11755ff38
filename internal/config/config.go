// Package config предоставляет структуры и функции для загрузки конфигурации сервисов.
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

// Config общая структура настроек для API, задания жизненного цикла и отправителя уведомлений.
type Config struct {
	Env                     string        `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string        `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING" env-required:"true"`
	MigrationsPath          string        `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	PlansCacheTTL           time.Duration `yaml:"plans_cache_ttl" env-default:"5m"`
	EmailProvider           string        `yaml:"email_provider" env:"EMAIL_PROVIDER" env-default:"log"`
	EmailLanguage           string        `yaml:"email_language" env:"EMAIL_LANGUAGE" env-default:"pt"`

	HTTPServer      HTTPServer      `yaml:"http_server"`
	RedisConnection RedisConnection `yaml:"redis_connection"`
	Session         Session         `yaml:"session"`
	JWTToken        JWTToken        `yaml:"jwttoken"`
	LoginRateLimit  LoginRateLimit  `yaml:"login_rate_limit"`
	APIRateLimit    APIRateLimit    `yaml:"api_rate_limit"`
	RabbitMQ        RabbitMQ        `yaml:"rabbitmq"`
	SMTP            SMTP            `yaml:"smtp"`
	Postmark        Postmark        `yaml:"postmark"`
	Stripe          Stripe          `yaml:"stripe"`
	Lifecycle       Lifecycle       `yaml:"lifecycle"`
	BootstrapAdmin  BootstrapAdmin  `yaml:"bootstrap_admin"`
}

// HTTPServer настройки HTTP-сервера.
type HTTPServer struct {
	Address            string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	Timeout            time.Duration `yaml:"timeout" env-default:"10s"`
	IdleTimeout        time.Duration `yaml:"idle_timeout" env-default:"60s"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
}

// RedisConnection настройки подключения к Redis.
type RedisConnection struct {
	Addr        string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password    string        `yaml:"password" env:"REDIS_PASSWORD"`
	User        string        `yaml:"user"`
	DB          int           `yaml:"db"`
	MaxRetries  int           `yaml:"max_retries" env-default:"3"`
	DialTimeout time.Duration `yaml:"dial_timeout" env-default:"5s"`
	Timeout     time.Duration `yaml:"timeout" env-default:"3s"`
}

// Session настройки cookie-сессий.
type Session struct {
	CookieName string        `yaml:"cookie_name" env-default:"connect.sid"`
	TTL        time.Duration `yaml:"ttl" env-default:"168h"`
	Secure     bool          `yaml:"secure" env:"SESSION_SECURE"`
}

// JWTToken настройки bearer-токенов.
type JWTToken struct {
	SecretKey string        `yaml:"secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL  time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// LoginRateLimit ограничение неудачных попыток входа с одного IP.
type LoginRateLimit struct {
	MaxAttempts int           `yaml:"max_attempts" env-default:"5"`
	Window      time.Duration `yaml:"window" env-default:"15m"`
}

// APIRateLimit общее ограничение частоты запросов к API.
type APIRateLimit struct {
	RPS   float64 `yaml:"rps" env-default:"50"`
	Burst int     `yaml:"burst" env-default:"100"`
}

// RabbitMQ настройки подключения к брокеру.
type RabbitMQ struct {
	URL        string        `yaml:"url" env:"RABBITMQ_URL"`
	MaxRetries int           `yaml:"max_retries" env-default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
}

// SMTP настройки почтового сервера.
type SMTP struct {
	Host string `yaml:"host" env:"SMTP_HOST"`
	Port string `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	User string `yaml:"user" env:"SMTP_USER"`
	Pass string `yaml:"pass" env:"SMTP_PASS"`
}

// Postmark настройки API Postmark.
type Postmark struct {
	ServerToken  string `yaml:"server_token" env:"POSTMARK_SERVER_TOKEN"`
	AccountToken string `yaml:"account_token" env:"POSTMARK_ACCOUNT_TOKEN"`
	Sender       string `yaml:"sender" env:"POSTMARK_SENDER"`
	ReplyTo      string `yaml:"reply_to"`
}

// Stripe ключи и адреса возврата Stripe Checkout.
type Stripe struct {
	APIKey        string `yaml:"api_key" env:"STRIPE_API_KEY"`
	WebhookSecret string `yaml:"webhook_secret" env:"STRIPE_WEBHOOK_SECRET"`
	SuccessURL    string `yaml:"success_url"`
	CancelURL     string `yaml:"cancel_url"`
}

// Lifecycle настройки ежедневного задания по подпискам.
type Lifecycle struct {
	Schedule       string `yaml:"schedule" env:"LIFECYCLE_SCHEDULE" env-default:"0 6 * * *"`
	Timezone       string `yaml:"timezone" env-default:"Africa/Luanda"`
	TrialDays      int    `yaml:"trial_days" env-default:"14"`
	PaidPeriodDays int    `yaml:"paid_period_days" env-default:"30"`
	NotifyDays     []int  `yaml:"notify_days" env-default:"3,1,0"`
	BillingURL     string `yaml:"billing_url" env-default:"/billing"`
}

// BootstrapAdmin учётная запись администратора, создаваемая при пустой таблице admin_users.
type BootstrapAdmin struct {
	Email    string `yaml:"email" env:"BOOTSTRAP_ADMIN_EMAIL"`
	Password string `yaml:"password" env:"BOOTSTRAP_ADMIN_PASSWORD"`
	Name     string `yaml:"name" env-default:"Administrator"`
}

// Load читает конфигурацию из YAML-файла path с переопределением из окружения.
func Load(path string) (*Config, error) {
	const op = "config.Load"
	if path == "" {
		return nil, fmt.Errorf("%s: config path is empty", op)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, path)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad загружает .env (если есть), затем конфиг по пути из CONFIG_PATH.
// При любой ошибке процесс завершается.
func MustLoad() *Config {
	_ = godotenv.Load()
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

// String возвращает конфигурацию для логов; секреты маскируются.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"StorageConnectionString: %s\n"+
			"HTTPServer: %s (timeout %s, idle %s)\n"+
			"Redis: %s db=%d\n"+
			"Session: cookie=%s ttl=%s secure=%t\n"+
			"JWT: secret=%s ttl=%s\n"+
			"RabbitMQ: %s\n"+
			"EmailProvider: %s (%s)\n"+
			"Stripe: key=%s webhook=%s\n"+
			"Lifecycle: schedule=%q tz=%s trial=%dd paid=%dd\n",
		c.Env,
		mask(c.StorageConnectionString),
		c.HTTPServer.Address, c.HTTPServer.Timeout, c.HTTPServer.IdleTimeout,
		c.RedisConnection.Addr, c.RedisConnection.DB,
		c.Session.CookieName, c.Session.TTL, c.Session.Secure,
		mask(c.JWTToken.SecretKey), c.JWTToken.TokenTTL,
		mask(c.RabbitMQ.URL),
		c.EmailProvider, c.EmailLanguage,
		mask(c.Stripe.APIKey), mask(c.Stripe.WebhookSecret),
		c.Lifecycle.Schedule, c.Lifecycle.Timezone, c.Lifecycle.TrialDays, c.Lifecycle.PaidPeriodDays,
	)
}

func mask(s string) string {
	if s == "" {
		return "<empty>"
	}
	return "***"
}

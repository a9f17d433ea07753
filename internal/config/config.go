package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type PhotosConfig struct {
	Dir         string `yaml:"dir"`
	URLPrefix   string `yaml:"url_prefix"`
	MaxWidth    int    `yaml:"max_width"`
	JPEGQuality int    `yaml:"jpeg_quality"`
	MaxPixels   int    `yaml:"max_pixels"`
}

type MobizonConfig struct {
	APIKey   string `yaml:"api_key"`
	SenderID string `yaml:"sender_id"`
	DryRun   bool   `yaml:"dry_run"`
}

type OTPConfig struct {
	Length      int           `yaml:"length"`
	TTL         time.Duration `yaml:"ttl"` // 0 = valid until superseded
	MaxAttempts int           `yaml:"max_attempts"`
	// Throttling is active only when Redis is configured.
	MaxSendsPerWindow int           `yaml:"max_sends_per_window"`
	SendWindow        time.Duration `yaml:"send_window"`
}

type AccessConfig struct {
	DedupeRegistrations bool `yaml:"dedupe_registrations"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	// Bootstrap admin, created on serve when admin_users is empty.
	BootstrapUser     string `yaml:"bootstrap_user"`
	BootstrapPassword string `yaml:"bootstrap_password"`
}

type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	FromEmail    string `yaml:"from_email"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type RabbitMQConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

type Config struct {
	Server struct {
		Port        int      `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Email    EmailConfig    `yaml:"email"`
	Photos   PhotosConfig   `yaml:"photos"`
	Mobizon  MobizonConfig  `yaml:"mobizon"`
	OTP      OTPConfig      `yaml:"otp"`
	Access   AccessConfig   `yaml:"access"`
	Auth     AuthConfig     `yaml:"auth"`
	Telegram TelegramConfig `yaml:"telegram"`
	Notify   struct {
		// Upper bound for one email or telegram delivery.
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"notify"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	PDF      struct {
		FontPath string `yaml:"font_path"`
	} `yaml:"pdf"`
}

// LoadConfig reads .env (if present) and the YAML file at path. ${VAR}
// references inside the YAML are expanded from the environment.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = DefaultPath
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse([]byte(os.ExpandEnv(string(raw))))
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 5050
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Photos.Dir == "" {
		c.Photos.Dir = "./uploads"
	}
	if c.Photos.URLPrefix == "" {
		c.Photos.URLPrefix = "/uploads"
	}
	if c.Photos.MaxWidth == 0 {
		c.Photos.MaxWidth = 1000
	}
	if c.Photos.JPEGQuality == 0 {
		c.Photos.JPEGQuality = 85
	}
	if c.Photos.MaxPixels == 0 {
		c.Photos.MaxPixels = 40_000_000
	}
	if c.OTP.Length == 0 {
		c.OTP.Length = 6
	}
	if c.OTP.MaxAttempts == 0 {
		c.OTP.MaxAttempts = 5
	}
	if c.OTP.MaxSendsPerWindow == 0 {
		c.OTP.MaxSendsPerWindow = 3
	}
	if c.OTP.SendWindow == 0 {
		c.OTP.SendWindow = 10 * time.Minute
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 12 * time.Hour
	}
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = 15 * time.Second
	}
	if c.RabbitMQ.Queue == "" {
		c.RabbitMQ.Queue = "application.events"
	}
}

func (c *Config) validate() error {
	if c.OTP.Length < 4 || c.OTP.Length > 6 {
		return fmt.Errorf("otp.length must be between 4 and 6, got %d", c.OTP.Length)
	}
	if c.Photos.JPEGQuality < 1 || c.Photos.JPEGQuality > 100 {
		return fmt.Errorf("photos.jpeg_quality must be between 1 and 100")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	return nil
}

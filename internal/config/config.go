package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v10"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"

	ImageStorageLocal    = "local"
	ImageStorageSupabase = "supabase"
	ImageStorageDisabled = "disabled"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Supabase SupabaseConfig
	JWT      JWTConfig
	Chat     ChatConfig
	Upload   UploadConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	GinMode         string        `env:"GIN_MODE" envDefault:"debug"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`
}

type DatabaseConfig struct {
	Driver   string `env:"STORE_DRIVER" envDefault:"postgres"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD"`
	DBName   string `env:"DB_NAME" envDefault:"bufforder"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	MongoURI      string        `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string        `env:"MONGO_DATABASE" envDefault:"bufforder"`
	ConnTimeout   time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"10s"`
}

type SupabaseConfig struct {
	URL            string `env:"SUPABASE_URL"`
	ServiceRoleKey string `env:"SUPABASE_SERVICE_ROLE_KEY"`
	Bucket         string `env:"SUPABASE_BUCKET" envDefault:"chat-images"`
}

type JWTConfig struct {
	Secret string        `env:"JWT_SECRET" envDefault:"your-secret-key"`
	Expiry time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`
}

type ChatConfig struct {
	UserMessageTTL  time.Duration `env:"RETENTION_USER_MESSAGE_TTL" envDefault:"1h"`
	SweepInterval   time.Duration `env:"RETENTION_SWEEP_INTERVAL" envDefault:"5m"`
	SweepCron       string        `env:"RETENTION_SWEEP_CRON"`
	SweepEnabled    bool          `env:"RETENTION_ENABLED" envDefault:"true"`
	HistoryPageSize int           `env:"CHAT_HISTORY_PAGE_SIZE" envDefault:"50"`
	MaxPageSize     int           `env:"CHAT_MAX_PAGE_SIZE" envDefault:"200"`
	EventsPerSecond float64       `env:"WS_EVENTS_PER_SECOND" envDefault:"10"`
	EventBurst      int           `env:"WS_EVENT_BURST" envDefault:"20"`
	SendBuffer      int           `env:"WS_SEND_BUFFER" envDefault:"64"`
}

type UploadConfig struct {
	Storage   string `env:"IMAGE_STORAGE" envDefault:"local"`
	Dir       string `env:"UPLOAD_DIR" envDefault:"uploads"`
	URLPrefix string `env:"UPLOAD_URL_PREFIX" envDefault:"/uploads"`
	MaxBytes  int64  `env:"UPLOAD_MAX_BYTES" envDefault:"5242880"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// New returns the configuration with defaults applied, ignoring validation.
func New() *Config {
	cfg := &Config{}
	_ = env.Parse(cfg)
	return cfg
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMongo:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMongo, c.Database.Driver)
	}

	switch c.Upload.Storage {
	case ImageStorageLocal, ImageStorageSupabase, ImageStorageDisabled:
	default:
		return fmt.Errorf("IMAGE_STORAGE must be local, supabase or disabled, got %q", c.Upload.Storage)
	}

	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Chat.UserMessageTTL <= 0 {
		return fmt.Errorf("RETENTION_USER_MESSAGE_TTL must be positive")
	}
	if c.Chat.SweepCron != "" {
		if !gronx.IsValid(c.Chat.SweepCron) {
			return fmt.Errorf("RETENTION_SWEEP_CRON is not a valid cron expression: %q", c.Chat.SweepCron)
		}
	} else if c.Chat.SweepInterval <= 0 {
		return fmt.Errorf("RETENTION_SWEEP_INTERVAL must be positive")
	}
	if c.Chat.HistoryPageSize <= 0 || c.Chat.MaxPageSize < c.Chat.HistoryPageSize {
		return fmt.Errorf("CHAT_HISTORY_PAGE_SIZE must be positive and not exceed CHAT_MAX_PAGE_SIZE")
	}
	return nil
}

func (c *Config) GetDatabaseURL() string {
	return c.buildDatabaseURL()
}

func (c *Config) buildDatabaseURL() string {
	var sb strings.Builder

	sb.WriteString("postgres://")
	sb.WriteString(c.Database.User)
	if c.Database.Password != "" {
		sb.WriteString(":")
		sb.WriteString(c.Database.Password)
	}
	sb.WriteString("@")
	sb.WriteString(c.Database.Host)
	sb.WriteString(":")
	sb.WriteString(c.Database.Port)
	sb.WriteString("/")
	sb.WriteString(c.Database.DBName)

	if c.Database.SSLMode != "" {
		sb.WriteString("?sslmode=")
		sb.WriteString(c.Database.SSLMode)
	}

	return sb.String()
}

func (c *Config) GetCORSOrigins() []string {
	origins := make([]string, 0, len(c.Server.CORSOrigins))
	for _, o := range c.Server.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.Server.Port
}

package config

import (
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/ecaka12/telegram-book-bot/internal/session"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const (
	envPrefix = "NOVELBOT_"

	// MaxPageSize is the largest history page the transport accepts.
	MaxPageSize = 100
)

type Config struct {
	AppID       int    `koanf:"app_id" validate:"required"`
	AppHash     string `koanf:"app_hash" validate:"required"`
	BotToken    string `koanf:"bot_token" validate:"required"`
	SessionPath string `koanf:"session_path" default:"./session.json"`
	LogLevel    string `koanf:"log_level" default:"info"`

	DatabaseURL   string `koanf:"database_url"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`

	AdminIDs []int64 `koanf:"admin_ids"`

	GroupChatID     int64 `koanf:"group_chat_id"`
	AnnounceTopicID int   `koanf:"announce_topic_id"`
	ScanChannelID   int64 `koanf:"scan_channel_id"`
	ScanTopicID     int   `koanf:"scan_topic_id"`

	ScanDefaultLimit int           `koanf:"scan_default_limit" default:"200"`
	ScanPageSize     int           `koanf:"scan_page_size" default:"100"`
	ScanPageDelay    time.Duration `koanf:"scan_page_delay" default:"1s"`
	PairingWindow    time.Duration `koanf:"pairing_window" default:"300s"`

	SessionTTL           time.Duration `koanf:"session_ttl" default:"15m"`
	SessionSweepInterval time.Duration `koanf:"session_sweep_interval" default:"1m"`

	NotifyDelay     time.Duration `koanf:"notify_delay" default:"50ms"`
	TopDefault      int           `koanf:"top_default" default:"5"`
	ListPageSize    int           `koanf:"list_page_size" default:"10"`
	DefaultAuthor   string        `koanf:"default_author" default:"Unknown"`
	DefaultCategory string        `koanf:"default_category" default:"Tamil Novel"`
}

// Load reads .env (current dir, then parent), an optional YAML file and NOVELBOT_*
// environment variables, in increasing priority.
func Load(path string) (*Config, error) {
	for _, name := range []string{".env", "../.env"} {
		if err := godotenv.Load(name); err == nil {
			break
		}
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	k := koanf.New(".")
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, errors.Wrapf(err, "read config %s", path)
			}
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if c.ScanPageSize <= 0 || c.ScanPageSize > MaxPageSize {
		c.ScanPageSize = MaxPageSize
	}
	if c.ScanDefaultLimit <= 0 {
		c.ScanDefaultLimit = 200
	}
	if c.TopDefault <= 0 {
		c.TopDefault = 5
	}
	if c.ListPageSize <= 0 {
		c.ListPageSize = 10
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = session.DefaultTTL
	}
	if c.SessionSweepInterval <= 0 {
		c.SessionSweepInterval = session.DefaultSweepInterval
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("koanf")
	})
	return v
}

// ValidateTransport checks the keys needed to connect to Telegram.
func (c *Config) ValidateTransport() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.WithStack(err)
	}
	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, fe.Field())
	}
	return errors.Errorf("missing required config: %s", strings.Join(missing, ", "))
}

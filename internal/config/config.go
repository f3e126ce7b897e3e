package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/fluentbuddy/pkg/models"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "FLUENTBUDDY_"

// Config is the process configuration
type Config struct {
	DBType string // sqlite or postgres
	DBPath string
	DBDSN  string

	RemoteType string // none, postgres or redis
	RemoteDSN  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LearnerID string
	Level     models.Level

	TelegramBotToken string
	OpenAIAPIKey     string
	OpenAIModel      string

	NatsURL     string
	MetricsAddr string

	NotificationStartHour int
	NotificationEndHour   int
	SyncInterval          time.Duration
	SaveDebounce          time.Duration

	// Optional xlsx/csv bank replacing the embedded exercises
	ExerciseBank string
}

var defaults = map[string]string{
	"db_type":                 "sqlite",
	"db_path":                 "data/fluentbuddy.db",
	"db_dsn":                  "",
	"remote_type":             "none",
	"remote_dsn":              "",
	"redis_addr":              "localhost:6379",
	"redis_password":          "",
	"redis_db":                "0",
	"learner_id":              "",
	"level":                   "A1",
	"telegram_bot_token":      "",
	"openai_api_key":          "",
	"openai_model":            "",
	"nats_url":                "",
	"metrics_addr":            ":9090",
	"notification_start_hour": "8",
	"notification_end_hour":   "22",
	"sync_interval":           "5m",
	"save_debounce":           "300ms",
	"exercise_bank":           "",
}

// Load reads .env when present, then the environment. Flags that were set on the
// command line win over both; a flag named db-path overrides the db_path key.
func Load(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("error loading .env file, using environment variables: %v", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(strings.TrimSuffix(EnvPrefix, "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if _, known := defaults[key]; known && bindErr == nil {
				bindErr = v.BindPFlag(key, f)
			}
		})
		if bindErr != nil {
			return nil, errors.Wrap(bindErr, "failed to bind flags")
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DBType:           v.GetString("db_type"),
		DBPath:           v.GetString("db_path"),
		DBDSN:            v.GetString("db_dsn"),
		RemoteType:       v.GetString("remote_type"),
		RemoteDSN:        v.GetString("remote_dsn"),
		RedisAddr:        v.GetString("redis_addr"),
		RedisPassword:    v.GetString("redis_password"),
		LearnerID:        v.GetString("learner_id"),
		TelegramBotToken: v.GetString("telegram_bot_token"),
		OpenAIAPIKey:     v.GetString("openai_api_key"),
		OpenAIModel:      v.GetString("openai_model"),
		NatsURL:          v.GetString("nats_url"),
		MetricsAddr:      v.GetString("metrics_addr"),
		ExerciseBank:     v.GetString("exercise_bank"),
	}

	var err error
	if cfg.Level, err = models.ParseLevel(v.GetString("level")); err != nil {
		return nil, errors.Wrap(err, "invalid level")
	}
	if cfg.RedisDB, err = getInt(v, "redis_db"); err != nil {
		return nil, err
	}
	if cfg.NotificationStartHour, err = getInt(v, "notification_start_hour"); err != nil {
		return nil, err
	}
	if cfg.NotificationEndHour, err = getInt(v, "notification_end_hour"); err != nil {
		return nil, err
	}
	if cfg.SyncInterval, err = getDuration(v, "sync_interval"); err != nil {
		return nil, err
	}
	if cfg.SaveDebounce, err = getDuration(v, "save_debounce"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have a fixed set of choices
func (c *Config) Validate() error {
	switch c.DBType {
	case "sqlite", "postgres":
	default:
		return errors.Errorf("unsupported db type %q", c.DBType)
	}
	if c.DBType == "postgres" && c.DBDSN == "" {
		return errors.New("postgres database needs " + EnvPrefix + "DB_DSN")
	}
	switch c.RemoteType {
	case "none", "redis":
	case "postgres":
		if c.RemoteDSN == "" {
			return errors.New("postgres remote store needs " + EnvPrefix + "REMOTE_DSN")
		}
	default:
		return errors.Errorf("unsupported remote type %q", c.RemoteType)
	}
	if c.NotificationStartHour < 0 || c.NotificationEndHour > 23 || c.NotificationStartHour > c.NotificationEndHour {
		return errors.Errorf("invalid notification window %d-%d", c.NotificationStartHour, c.NotificationEndHour)
	}
	return nil
}

func getInt(v *viper.Viper, key string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return n, nil
}

func getDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return d, nil
}

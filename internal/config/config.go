// Package config loads the service's runtime configuration from the
// environment and an optional dotenv file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"availability-service/internal/slots"
)

type HTTP struct {
	Port            int
	FrontendURL     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Google struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	CalendarID   string
	Timeout      time.Duration
}

type Calendar struct {
	TimeZone      string
	Location      *time.Location
	Slots         slots.Catalog
	BusyThreshold float64
	MaxRangeDays  int
}

type Booking struct {
	Summary         string
	ReminderMinutes int
	VerifyFreeBusy  bool
	// HoldTTL of zero disables slot holds.
	HoldTTL   time.Duration
	HoldStore string
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Credential struct {
	Store       string
	PostgresURL string
	SQLitePath  string
}

type Auth struct {
	StateSecret string
	StateTTL    time.Duration
	AdminTokens []string
	JWTSecret   string
}

type Mail struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

type Log struct {
	Level  slog.Level
	Format string
}

type Config struct {
	EnvFile    string
	HTTP       HTTP
	Google     Google
	Calendar   Calendar
	Booking    Booking
	Redis      Redis
	Credential Credential
	Auth       Auth
	Mail       Mail
	Log        Log
}

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
)

// aliases are the unprefixed variable names older deployments set.
var aliases = map[string][]string{
	"http.port":               {"PORT"},
	"http.frontend_url":       {"FRONTEND_URL"},
	"google.client_id":        {"GOOGLE_CLIENT_ID"},
	"google.client_secret":    {"GOOGLE_CLIENT_SECRET"},
	"google.redirect_url":     {"GOOGLE_REDIRECT_URL", "GOOGLE_REDIRECT_URI"},
	"google.calendar_id":      {"GOOGLE_CALENDAR_ID"},
	"credential.postgres_url": {"DATABASE_URL"},
	"auth.admin_tokens":       {"STATIC_TOKENS"},
	"auth.jwt_secret":         {"JWT_HMAC_SECRET"},
	"mail.username":           {"EMAIL_USER"},
	"mail.password":           {"EMAIL_PASS"},
}

func defaults(v *viper.Viper) {
	v.SetDefault("http.port", 3001)
	v.SetDefault("http.frontend_url", "http://localhost:3000")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("google.calendar_id", "primary")
	v.SetDefault("google.timeout", "15s")
	v.SetDefault("calendar.time_zone", "Africa/Johannesburg")
	v.SetDefault("calendar.slots", slots.DefaultSpec)
	v.SetDefault("calendar.busy_threshold", 0.75)
	v.SetDefault("calendar.max_range_days", 62)
	v.SetDefault("booking.summary", "New Client Booking")
	v.SetDefault("booking.reminder_minutes", 30)
	v.SetDefault("booking.verify_free_busy", true)
	v.SetDefault("booking.hold_ttl", "2m")
	v.SetDefault("booking.hold_store", StoreMemory)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("credential.store", StoreMemory)
	v.SetDefault("credential.sqlite_path", "credentials.db")
	v.SetDefault("auth.state_ttl", "10m")
	v.SetDefault("mail.host", "smtp.gmail.com")
	v.SetDefault("mail.port", 587)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads the dotenv file named by BOOKING_ENV_FILE (default .env) if it
// exists, then the environment. Variables already set win over the file.
func Load() (Config, error) {
	envFile := strings.TrimSpace(os.Getenv("BOOKING_ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	v := viper.New()
	v.SetEnvPrefix("BOOKING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range aliases {
		prefixed := "BOOKING_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(append([]string{key, prefixed}, names...)...)
	}
	defaults(v)

	cfg, err := build(v)
	if err != nil {
		return Config{}, err
	}
	cfg.EnvFile = envFile
	return cfg, nil
}

func build(v *viper.Viper) (Config, error) {
	var errs []error
	str := func(key string) string { return strings.TrimSpace(v.GetString(key)) }

	cfg := Config{
		HTTP: HTTP{
			Port:            v.GetInt("http.port"),
			FrontendURL:     strings.TrimRight(str("http.frontend_url"), "/"),
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
		},
		Google: Google{
			ClientID:     str("google.client_id"),
			ClientSecret: str("google.client_secret"),
			RedirectURL:  str("google.redirect_url"),
			CalendarID:   str("google.calendar_id"),
			Timeout:      v.GetDuration("google.timeout"),
		},
		Calendar: Calendar{
			TimeZone:      str("calendar.time_zone"),
			BusyThreshold: v.GetFloat64("calendar.busy_threshold"),
			MaxRangeDays:  v.GetInt("calendar.max_range_days"),
		},
		Booking: Booking{
			Summary:         str("booking.summary"),
			ReminderMinutes: v.GetInt("booking.reminder_minutes"),
			VerifyFreeBusy:  v.GetBool("booking.verify_free_busy"),
			HoldTTL:         v.GetDuration("booking.hold_ttl"),
			HoldStore:       strings.ToLower(str("booking.hold_store")),
		},
		Redis: Redis{
			Addr:     str("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Credential: Credential{
			Store:       strings.ToLower(str("credential.store")),
			PostgresURL: str("credential.postgres_url"),
			SQLitePath:  str("credential.sqlite_path"),
		},
		Auth: Auth{
			StateSecret: v.GetString("auth.state_secret"),
			StateTTL:    v.GetDuration("auth.state_ttl"),
			AdminTokens: splitList(v.GetString("auth.admin_tokens")),
			JWTSecret:   v.GetString("auth.jwt_secret"),
		},
		Mail: Mail{
			Host:     str("mail.host"),
			Port:     v.GetInt("mail.port"),
			Username: str("mail.username"),
			Password: v.GetString("mail.password"),
			From:     str("mail.from"),
			To:       str("mail.to"),
		},
		Log: Log{Format: strings.ToLower(str("log.format"))},
	}
	if cfg.Mail.From == "" {
		cfg.Mail.From = cfg.Mail.Username
	}

	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", cfg.HTTP.Port))
	}
	for key, val := range map[string]string{
		"google.client_id":     cfg.Google.ClientID,
		"google.client_secret": cfg.Google.ClientSecret,
		"google.redirect_url":  cfg.Google.RedirectURL,
	} {
		if val == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}
	if cfg.Google.Timeout <= 0 {
		errs = append(errs, errors.New("google.timeout must be positive"))
	}

	loc, err := time.LoadLocation(cfg.Calendar.TimeZone)
	if err != nil {
		errs = append(errs, fmt.Errorf("calendar.time_zone: %w", err))
	}
	cfg.Calendar.Location = loc
	catalog, err := slots.Parse(str("calendar.slots"))
	if err != nil {
		errs = append(errs, fmt.Errorf("calendar.slots: %w", err))
	}
	cfg.Calendar.Slots = catalog
	if t := cfg.Calendar.BusyThreshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("calendar.busy_threshold %v must be in (0, 1]", t))
	}
	if cfg.Calendar.MaxRangeDays <= 0 {
		errs = append(errs, errors.New("calendar.max_range_days must be positive"))
	}

	if cfg.Booking.HoldTTL < 0 {
		errs = append(errs, errors.New("booking.hold_ttl must not be negative"))
	}
	if cfg.Booking.HoldStore != StoreMemory && cfg.Booking.HoldStore != StoreRedis {
		errs = append(errs, fmt.Errorf("booking.hold_store %q: want memory or redis", cfg.Booking.HoldStore))
	}
	switch cfg.Credential.Store {
	case StoreMemory:
	case StorePostgres:
		if cfg.Credential.PostgresURL == "" {
			errs = append(errs, errors.New("credential.postgres_url is required for the postgres store"))
		}
	case StoreSQLite:
		if cfg.Credential.SQLitePath == "" {
			errs = append(errs, errors.New("credential.sqlite_path is required for the sqlite store"))
		}
	default:
		errs = append(errs, fmt.Errorf("credential.store %q: want memory, postgres or sqlite", cfg.Credential.Store))
	}

	if err := cfg.Log.Level.UnmarshalText([]byte(str("log.level"))); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format %q: want json or text", cfg.Log.Format))
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// NewLogger builds the process logger writing to w.
func (l Log) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.Level}
	if l.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/zerion/slotbook/libs/config"
	"github.com/zerion/slotbook/libs/db"
	"github.com/zerion/slotbook/libs/httpx"
	"github.com/zerion/slotbook/services/booking-service/internal/availability"
	"github.com/zerion/slotbook/services/booking-service/internal/googleauth"
	"gopkg.in/yaml.v3"
)

const (
	LedgerFile     = "file"
	LedgerPostgres = "postgres"
	LedgerSQLite   = "sqlite"
)

type Ledger struct {
	Driver      string
	Path        string
	DatabaseURL string
	SQLitePath  string
	// Pool sizes the Postgres connection pool; zero fields keep libs/db defaults.
	Pool db.Options
}

type Google struct {
	CalendarID      string
	SheetID         string
	CredentialsFile string
	TokenFile       string
	// CredentialsB64 and TokenB64 hold the same JSON base64-encoded and win over the files.
	CredentialsB64  string
	TokenB64        string
	RequestTimeout  time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func (g Google) Enabled() bool {
	return g.CalendarID != "" || g.SheetID != ""
}

type SendFox struct {
	Token  string
	ListID string
}

// Secrets returns where the OAuth credentials and token come from.
func (g Google) Secrets() googleauth.Secrets {
	return googleauth.Secrets{
		CredentialsFile: g.CredentialsFile,
		TokenFile:       g.TokenFile,
		CredentialsB64:  g.CredentialsB64,
		TokenB64:        g.TokenB64,
	}
}

func (s SendFox) Enabled() bool { return s.Token != "" }

// Settings is built once at startup and handed to every component.
type Settings struct {
	ServiceName     string
	Port            string
	LogLevel        string
	TimeZone        string
	Schedule        availability.Schedule
	Ledger          Ledger
	Google          Google
	SendFox         SendFox
	KafkaBrokers    string
	RedisAddr       string
	RedisPassword   string
	AdminKey        string
	CORS            httpx.CORSPolicy
	RateLimit       int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// scheduleFile is the optional YAML that sets business hours. Environment variables win over it.
type scheduleFile struct {
	TimeZone            string `yaml:"timezone"`
	WorkStart           string `yaml:"work_start"`
	WorkEnd             string `yaml:"work_end"`
	SlotDurationMinutes int    `yaml:"slot_duration_minutes"`
	LookaheadDays       *int   `yaml:"lookahead_days"`
}

type scheduleValues struct {
	timeZone  string
	workStart string
	workEnd   string
	slotMins  int
	lookahead int
}

// Load reads a .env file when present, then the environment.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (Settings, error) {
	var s Settings
	var err error

	s.ServiceName = config.String("SERVICE_NAME", "booking-service")
	if s.Port, err = config.Port("PORT", "3000"); err != nil {
		return Settings{}, err
	}
	s.LogLevel = config.String("LOG_LEVEL", "info")

	sv := scheduleValues{
		timeZone:  "America/Guayaquil",
		workStart: "10:00",
		workEnd:   "19:00",
		slotMins:  60,
		lookahead: 14,
	}
	if path := config.String("SCHEDULE_FILE", ""); path != "" {
		if err := applyScheduleFile(path, &sv); err != nil {
			return Settings{}, err
		}
	}
	if s.Schedule, s.TimeZone, err = scheduleFromEnv(sv); err != nil {
		return Settings{}, err
	}

	s.Ledger = Ledger{
		Driver:      strings.ToLower(config.String("LEDGER_DRIVER", LedgerFile)),
		Path:        config.String("LEDGER_PATH", "reservas.json"),
		DatabaseURL: config.String("DATABASE_URL", ""),
		SQLitePath:  config.String("SQLITE_PATH", "reservas.db"),
	}
	switch s.Ledger.Driver {
	case LedgerFile, LedgerSQLite:
	case LedgerPostgres:
		if s.Ledger.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
			return Settings{}, fmt.Errorf("LEDGER_DRIVER=postgres: %w", err)
		}
		if s.Ledger.Pool, err = poolFromEnv(); err != nil {
			return Settings{}, err
		}
	default:
		return Settings{}, fmt.Errorf("LEDGER_DRIVER must be one of file, postgres, sqlite (got %q)", s.Ledger.Driver)
	}

	s.Google = Google{
		CalendarID:      config.String("GOOGLE_CALENDAR_ID", ""),
		SheetID:         config.String("GOOGLE_SHEET_ID", ""),
		CredentialsFile: config.String("GOOGLE_CREDENTIALS_FILE", "credentials.json"),
		TokenFile:       config.String("GOOGLE_TOKEN_FILE", "token.json"),
		CredentialsB64:  config.String("GOOGLE_CREDENTIALS_B64", ""),
		TokenB64:        config.String("GOOGLE_TOKEN_B64", ""),
	}
	if s.Google.RequestTimeout, err = config.Duration("GOOGLE_TIMEOUT", 15*time.Second); err != nil {
		return Settings{}, err
	}
	failures, err := config.Int("CALENDAR_BREAKER_FAILURES", 5)
	if err != nil {
		return Settings{}, err
	}
	if failures < 1 {
		return Settings{}, errors.New("CALENDAR_BREAKER_FAILURES must be at least 1")
	}
	s.Google.BreakerFailures = uint32(failures)
	if s.Google.BreakerTimeout, err = config.Duration("CALENDAR_BREAKER_TIMEOUT", 30*time.Second); err != nil {
		return Settings{}, err
	}

	s.SendFox = SendFox{
		Token:  config.String("SENDFOX_API_TOKEN", ""),
		ListID: config.String("SENDFOX_LIST_ID", ""),
	}
	s.KafkaBrokers = config.String("KAFKA_BROKERS", "")
	s.RedisAddr = config.String("REDIS_ADDR", "")
	s.RedisPassword = config.String("REDIS_PASSWORD", "")
	s.AdminKey = config.String("ADMIN_KEY", "")

	s.CORS = httpx.PermissiveCORS()
	s.CORS.AllowedOrigins = config.List("CORS_ALLOWED_ORIGINS", "*")
	s.CORS.AllowCredentials = config.Bool("CORS_ALLOW_CREDENTIALS", false)

	if s.RateLimit, err = config.Int("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return Settings{}, err
	}
	if s.RequestTimeout, err = config.Duration("REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return Settings{}, err
	}
	if s.ShutdownTimeout, err = config.Duration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return Settings{}, err
	}
	maxBody, err := config.Int("MAX_BODY_BYTES", 64<<10)
	if err != nil {
		return Settings{}, err
	}
	s.MaxBodyBytes = int64(maxBody)
	return s, nil
}

func poolFromEnv() (db.Options, error) {
	var opts db.Options
	maxConns, err := config.Int("DB_MAX_CONNS", 0)
	if err != nil {
		return db.Options{}, err
	}
	minConns, err := config.Int("DB_MIN_CONNS", 0)
	if err != nil {
		return db.Options{}, err
	}
	if maxConns < 0 || minConns < 0 || (maxConns > 0 && minConns > maxConns) {
		return db.Options{}, fmt.Errorf("DB_MIN_CONNS (%d) and DB_MAX_CONNS (%d) must be non-negative with min <= max", minConns, maxConns)
	}
	opts.MaxConns = int32(maxConns)
	opts.MinConns = int32(minConns)
	if opts.MaxConnLifetime, err = config.Duration("DB_MAX_CONN_LIFETIME", 0); err != nil {
		return db.Options{}, err
	}
	if opts.MaxConnIdleTime, err = config.Duration("DB_MAX_CONN_IDLE_TIME", 0); err != nil {
		return db.Options{}, err
	}
	return opts, nil
}

func applyScheduleFile(path string, sv *scheduleValues) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schedule file: %w", err)
	}
	var f scheduleFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse schedule file %s: %w", path, err)
	}
	if f.TimeZone != "" {
		sv.timeZone = f.TimeZone
	}
	if f.WorkStart != "" {
		sv.workStart = f.WorkStart
	}
	if f.WorkEnd != "" {
		sv.workEnd = f.WorkEnd
	}
	if f.SlotDurationMinutes != 0 {
		sv.slotMins = f.SlotDurationMinutes
	}
	if f.LookaheadDays != nil {
		sv.lookahead = *f.LookaheadDays
	}
	return nil
}

func scheduleFromEnv(sv scheduleValues) (availability.Schedule, string, error) {
	tz := config.String("TIMEZONE", sv.timeZone)
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return availability.Schedule{}, "", fmt.Errorf("TIMEZONE %q: %w", tz, err)
	}
	start, err := parseWorkClock("WORK_START", sv.workStart)
	if err != nil {
		return availability.Schedule{}, "", err
	}
	end, err := parseWorkClock("WORK_END", sv.workEnd)
	if err != nil {
		return availability.Schedule{}, "", err
	}
	mins, err := config.Int("SLOT_DURATION_MINUTES", sv.slotMins)
	if err != nil {
		return availability.Schedule{}, "", err
	}
	lookahead, err := config.Int("LOOKAHEAD_DAYS", sv.lookahead)
	if err != nil {
		return availability.Schedule{}, "", err
	}

	sched := availability.Schedule{
		WorkStart:     start,
		WorkEnd:       end,
		SlotDuration:  time.Duration(mins) * time.Minute,
		LookaheadDays: lookahead,
		Location:      loc,
	}
	if err := sched.Validate(); err != nil {
		return availability.Schedule{}, "", fmt.Errorf("schedule: %w", err)
	}
	return sched, tz, nil
}

// parseWorkClock accepts "HH:MM", or a bare hour ("10") as older deployments configured it.
// "24:00" is allowed so a day can end at midnight.
func parseWorkClock(key, fallback string) (time.Duration, error) {
	v := config.String(key, fallback)
	if v == "24:00" || v == "24" {
		return 24 * time.Hour, nil
	}
	if h, err := strconv.Atoi(v); err == nil {
		v = fmt.Sprintf("%02d:00", h)
	}
	d, err := availability.ParseClock(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

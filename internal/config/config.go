package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// All values must come from env (or a local .env loaded at startup).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Provider ProviderConfig
	Poll     PollConfig
	LLM      LLMConfig
	Quota    QuotaConfig
	Task     TaskConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// ProviderConfig configures the voice-AI provider HTTP API used to place
// roleplay calls and fetch call snapshots (status, transcript, recording).
type ProviderConfig struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	WebhookSecret string
}

// PollConfig tunes the background recording poll loop.
// Defaults bound total wall-clock polling to a few minutes per call.
type PollConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	LockTTL         time.Duration
}

// LLMConfig configures the optional completion-API scoring path.
// When disabled (or keyless) evaluation uses the heuristic scorer only.
type LLMConfig struct {
	Enabled bool
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type QuotaConfig struct {
	// MinBillableSeconds is the floor applied before rounding a call's
	// duration up to whole practice minutes.
	MinBillableSeconds int
}

type TaskConfig struct {
	// EvaluationSweepSpec is a cron expression for the pending-evaluation sweep.
	EvaluationSweepSpec string
	// PollResumeSpec is a cron expression for re-scheduling stale polls.
	PollResumeSpec string
	SweepBatchSize int
	SweepWorkers   int
}

func Load() (Config, error) {
	// Best-effort .env for local runs; absence is not an error.
	_ = godotenv.Load()

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Provider.BaseURL = strings.TrimSpace(os.Getenv("VOICEAI_BASE_URL"))
	c.Provider.APIKey = os.Getenv("VOICEAI_API_KEY")
	c.Provider.Timeout = mustDuration("VOICEAI_TIMEOUT")
	c.Provider.WebhookSecret = os.Getenv("VOICEAI_WEBHOOK_SECRET")

	c.Poll.MaxAttempts = optionalInt("POLL_MAX_ATTEMPTS")
	c.Poll.InitialInterval = mustDuration("POLL_INITIAL_INTERVAL")
	c.Poll.Multiplier = optionalFloat("POLL_MULTIPLIER")
	c.Poll.MaxInterval = mustDuration("POLL_MAX_INTERVAL")
	c.Poll.LockTTL = mustDuration("POLL_LOCK_TTL")

	c.LLM.Enabled = optionalBool("LLM_ENABLED")
	c.LLM.APIKey = os.Getenv("LLM_API_KEY")
	c.LLM.BaseURL = strings.TrimSpace(os.Getenv("LLM_BASE_URL"))
	c.LLM.Model = strings.TrimSpace(os.Getenv("LLM_MODEL"))
	c.LLM.Timeout = mustDuration("LLM_TIMEOUT")

	c.Quota.MinBillableSeconds = optionalInt("QUOTA_MIN_BILLABLE_SECONDS")

	c.Task.EvaluationSweepSpec = strings.TrimSpace(os.Getenv("TASK_EVALUATION_SWEEP_SPEC"))
	c.Task.PollResumeSpec = strings.TrimSpace(os.Getenv("TASK_POLL_RESUME_SPEC"))
	c.Task.SweepBatchSize = optionalInt("TASK_SWEEP_BATCH_SIZE")
	c.Task.SweepWorkers = optionalInt("TASK_SWEEP_WORKERS")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			// Allowed values are enforced below.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if c.Auth.AccessTokenTTL <= 0 {
		// Default: short-lived access tokens.
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		// Default: longer-lived refresh tokens.
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Provider.BaseURL == "" {
		errs = append(errs, errors.New("VOICEAI_BASE_URL is required"))
	}
	if c.Provider.APIKey == "" && c.IsProduction() {
		errs = append(errs, errors.New("VOICEAI_API_KEY is required in production"))
	}
	if c.Provider.Timeout <= 0 {
		c.Provider.Timeout = 15 * time.Second
	}

	if c.Poll.MaxAttempts <= 0 {
		c.Poll.MaxAttempts = 20
	}
	if c.Poll.InitialInterval <= 0 {
		c.Poll.InitialInterval = 10 * time.Second
	}
	if c.Poll.Multiplier < 1 {
		c.Poll.Multiplier = 1.2
	}
	if c.Poll.MaxInterval <= 0 {
		c.Poll.MaxInterval = 60 * time.Second
	}
	if c.Poll.MaxInterval < c.Poll.InitialInterval {
		errs = append(errs, errors.New("POLL_MAX_INTERVAL must be at least POLL_INITIAL_INTERVAL"))
	}
	if c.Poll.LockTTL <= 0 {
		// Must outlive the worst-case poll loop (attempts x capped interval).
		c.Poll.LockTTL = 30 * time.Minute
	}

	if c.LLM.Enabled && c.LLM.APIKey == "" {
		errs = append(errs, errors.New("LLM_API_KEY is required when LLM_ENABLED is true"))
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 30 * time.Second
	}

	if c.Quota.MinBillableSeconds < 0 {
		errs = append(errs, errors.New("QUOTA_MIN_BILLABLE_SECONDS must not be negative"))
	}
	if c.Quota.MinBillableSeconds == 0 {
		c.Quota.MinBillableSeconds = 30
	}

	if c.Task.EvaluationSweepSpec == "" {
		c.Task.EvaluationSweepSpec = "*/10 * * * *"
	}
	if c.Task.PollResumeSpec == "" {
		c.Task.PollResumeSpec = "@every 5m"
	}
	if c.Task.SweepBatchSize <= 0 {
		c.Task.SweepBatchSize = 50
	}
	if c.Task.SweepWorkers <= 0 {
		c.Task.SweepWorkers = 4
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func optionalFloat(key string) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func optionalBool(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}

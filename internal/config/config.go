package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or a .env file loaded by main via godotenv).
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	Twilio TwilioConfig
	Store  StoreConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Gemini GeminiConfig
	GCS    GCSConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicBaseURL is the externally reachable origin used for provider callbacks.
	PublicBaseURL string

	// ProviderTimeout bounds every outbound provider request.
	ProviderTimeout time.Duration

	// RelayMaxConcurrent caps in-flight /relay pipelines across instances; 0 is unbounded.
	// Enforced only with the redis store, which holds the shared counter.
	RelayMaxConcurrent int
}

type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string

	// ValidateSignature enables X-Twilio-Signature checks on status callbacks.
	ValidateSignature bool
	CallsPerSecond    float64
}

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type StoreConfig struct {
	Backend string

	// RejectStale drops callbacks whose SequenceNumber is not newer than the stored one.
	RejectStale bool
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for production posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode  string
	MaxConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

type GeminiConfig struct {
	APIKey    string
	TextModel string
	TTSModel  string
	Voice     string
}

type GCSConfig struct {
	Bucket string

	// ServiceAccountKeyJSON is the raw service account key; empty uses
	// application default credentials.
	ServiceAccountKeyJSON string
	SignedURLTTL          time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error
	env := &envParser{}

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.PublicBaseURL = strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL"))
	c.App.ProviderTimeout = env.optDuration("PROVIDER_TIMEOUT")
	c.App.RelayMaxConcurrent = env.optInt("RELAY_MAX_CONCURRENT")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.PhoneNumber = strings.TrimSpace(os.Getenv("TWILIO_PHONE_NUMBER"))
	c.Twilio.ValidateSignature = env.optBool("TWILIO_VALIDATE_SIGNATURE")
	c.Twilio.CallsPerSecond = env.optFloat("TWILIO_CALLS_PER_SECOND")

	c.Store.Backend = strings.ToLower(strings.TrimSpace(os.Getenv("CALL_STORE")))
	c.Store.RejectStale = env.optBool("CALLBACK_REJECT_STALE")

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port = env.optInt("DB_PORT")
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	c.DB.MaxConns = env.optInt("DB_MAX_CONNS")

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = env.optInt("REDIS_PORT")
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.DB = env.optInt("REDIS_DB")
	c.Redis.Prefix = strings.TrimSpace(os.Getenv("REDIS_PREFIX"))

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = env.optDuration("JWT_ACCESS_TTL")

	c.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	c.Gemini.TextModel = strings.TrimSpace(os.Getenv("GEMINI_TEXT_MODEL"))
	c.Gemini.TTSModel = strings.TrimSpace(os.Getenv("GEMINI_TTS_MODEL"))
	c.Gemini.Voice = strings.TrimSpace(os.Getenv("GEMINI_VOICE"))

	c.GCS.Bucket = strings.TrimSpace(os.Getenv("GCS_STORAGE_BUCKET"))
	c.GCS.ServiceAccountKeyJSON = os.Getenv("SERVICE_ACCOUNT_KEY_JSON")
	c.GCS.SignedURLTTL = env.optDuration("SIGNED_URL_TTL")

	parseErrs = append(parseErrs, env.errs...)
	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadAuth reads only the JWT settings, for tools that mint tokens without running the API.
func LoadAuth() (AuthConfig, error) {
	env := &envParser{}
	a := AuthConfig{
		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTIssuer:      strings.TrimSpace(os.Getenv("JWT_ISSUER")),
		JWTAudience:    strings.TrimSpace(os.Getenv("JWT_AUDIENCE")),
		AccessTokenTTL: env.optDuration("JWT_ACCESS_TTL"),
	}
	if a.JWTSecret == "" {
		env.errs = append(env.errs, errors.New("JWT_SECRET is required"))
	}
	if err := joinErrors(env.errs); err != nil {
		return AuthConfig{}, err
	}
	if a.AccessTokenTTL <= 0 {
		a.AccessTokenTTL = 24 * time.Hour
	}
	return a, nil
}

// Validate applies defaults and reports every missing or invalid setting at once.
// Twilio credentials are required: the call gateway cannot start without them.
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
	if c.App.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required"))
	} else if u, err := url.Parse(c.App.PublicBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL must be an absolute http(s) url, got %q", c.App.PublicBaseURL))
	} else if c.IsProduction() && u.Scheme != "https" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL must use https in production"))
	}
	if c.App.ProviderTimeout <= 0 {
		c.App.ProviderTimeout = 15 * time.Second
	}
	if c.App.RelayMaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("RELAY_MAX_CONCURRENT must not be negative, got %d", c.App.RelayMaxConcurrent))
	}

	if c.Twilio.AccountSID == "" {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID is required"))
	}
	if c.Twilio.AuthToken == "" {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required"))
	}
	if c.Twilio.PhoneNumber == "" {
		errs = append(errs, errors.New("TWILIO_PHONE_NUMBER is required"))
	}
	if c.Twilio.CallsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("TWILIO_CALLS_PER_SECOND must be positive, got %v", c.Twilio.CallsPerSecond))
	} else if c.Twilio.CallsPerSecond == 0 {
		// Twilio's default account CPS.
		c.Twilio.CallsPerSecond = 1
	}

	if c.Store.Backend == "" {
		c.Store.Backend = StoreMemory
	}
	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		errs = append(errs, c.validateDB()...)
	case StoreRedis:
		errs = append(errs, c.validateRedis()...)
	default:
		errs = append(errs, fmt.Errorf("CALL_STORE must be one of memory, postgres, redis, got %q", c.Store.Backend))
	}

	if c.Auth.JWTSecret == "" && c.IsProduction() {
		errs = append(errs, errors.New("JWT_SECRET is required in production"))
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 24 * time.Hour
	}

	if c.Gemini.TextModel == "" {
		c.Gemini.TextModel = "gemini-2.0-flash"
	}
	if c.Gemini.TTSModel == "" {
		c.Gemini.TTSModel = "gemini-2.5-flash-preview-tts"
	}
	if c.Gemini.Voice == "" {
		c.Gemini.Voice = "Zephyr"
	}
	if c.GCS.SignedURLTTL <= 0 {
		c.GCS.SignedURLTTL = time.Hour
	} else if c.GCS.SignedURLTTL > 7*24*time.Hour {
		// V4 signed URLs cannot outlive seven days.
		errs = append(errs, fmt.Errorf("SIGNED_URL_TTL must be at most 168h, got %s", c.GCS.SignedURLTTL))
	}

	return joinErrors(errs)
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port == 0 {
		c.DB.Port = 5432
	}
	if c.DB.Port < 0 || c.DB.Port > 65535 {
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
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	if c.DB.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("DB_MAX_CONNS must not be negative, got %d", c.DB.MaxConns))
	}
	return errs
}

func (c *Config) validateRedis() []error {
	var errs []error
	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.Port < 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("REDIS_DB must not be negative, got %d", c.Redis.DB))
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "am"
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

// AuthEnabled reports whether client routes require a bearer token.
func (c Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != ""
}

func (c Config) GeminiEnabled() bool {
	return c.Gemini.APIKey != ""
}

func (c Config) GCSEnabled() bool {
	return c.GCS.Bucket != ""
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

// envParser reads optional variables, collecting malformed values instead of
// stopping at the first one. Unset variables yield the zero value.
type envParser struct {
	errs []error
}

func (p *envParser) lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func (p *envParser) optInt(key string) int {
	v, ok := p.lookup(key)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return 0
	}
	return n
}

func (p *envParser) optFloat(key string) float64 {
	v, ok := p.lookup(key)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be a number, got %q", key, v))
		return 0
	}
	return f
}

func (p *envParser) optBool(key string) bool {
	v, ok := p.lookup(key)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
		return false
	}
	return b
}

func (p *envParser) optDuration(key string) time.Duration {
	v, ok := p.lookup(key)
	if !ok {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be a duration like 15s or 1h, got %q", key, v))
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

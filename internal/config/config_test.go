package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		App:    AppConfig{Env: "local", Port: 8080, PublicBaseURL: "https://calls.example.com"},
		Twilio: TwilioConfig{AccountSID: "AC123", AuthToken: "token", PhoneNumber: "+15550001111"},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	// Ensure a clean env by not setting anything and calling validation directly.
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, key := range []string{"APP_ENV", "PUBLIC_BASE_URL", "TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_PHONE_NUMBER"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("expected %s in %q", key, err.Error())
		}
	}
}

func TestValidate_AppliesDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Store.Backend != StoreMemory {
		t.Fatalf("expected memory store default, got %q", c.Store.Backend)
	}
	if c.App.ProviderTimeout != 15*time.Second {
		t.Fatalf("expected 15s provider timeout, got %s", c.App.ProviderTimeout)
	}
	if c.Twilio.CallsPerSecond != 1 {
		t.Fatalf("expected 1 cps default, got %v", c.Twilio.CallsPerSecond)
	}
	if c.GCS.SignedURLTTL != time.Hour {
		t.Fatalf("expected 1h signed url ttl, got %s", c.GCS.SignedURLTTL)
	}
	if c.Gemini.Voice != "Zephyr" || c.Gemini.TextModel == "" || c.Gemini.TTSModel == "" {
		t.Fatalf("expected gemini defaults, got %+v", c.Gemini)
	}
	if c.AuthEnabled() || c.GeminiEnabled() || c.GCSEnabled() {
		t.Fatalf("optional integrations should be off by default")
	}
}

func TestValidate_PublicBaseURL(t *testing.T) {
	cases := []struct {
		name    string
		env     string
		baseURL string
		wantErr bool
	}{
		{name: "https", env: "local", baseURL: "https://calls.example.com"},
		{name: "http local", env: "local", baseURL: "http://localhost:8080"},
		{name: "relative", env: "local", baseURL: "/callbacks", wantErr: true},
		{name: "ftp", env: "local", baseURL: "ftp://calls.example.com", wantErr: true},
		{name: "http production", env: "production", baseURL: "http://calls.example.com", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			c.App.Env = tc.env
			c.App.PublicBaseURL = tc.baseURL
			c.Auth.JWTSecret = "secret"
			err := c.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("wantErr=%v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestValidate_ProductionRequiresJWTSecret(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("expected JWT_SECRET error, got %v", err)
	}
}

func TestValidate_PostgresRequiresDB(t *testing.T) {
	c := validConfig()
	c.Store.Backend = StorePostgres
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for postgres store without DB settings")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.Auth.JWTSecret = "secret"
	c.Store.Backend = StorePostgres
	c.DB = DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "calls"}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := validConfig()
	c.Store.Backend = StorePostgres
	c.DB = DBConfig{Host: "localhost", User: "postgres", Password: "x", Name: "calls"}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.DB.Port != 5432 {
		t.Fatalf("expected default port 5432, got %d", c.DB.Port)
	}
}

func TestValidate_RedisDefaults(t *testing.T) {
	c := validConfig()
	c.Store.Backend = StoreRedis
	c.Redis.Host = "localhost"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.RedisAddr() != "localhost:6379" {
		t.Fatalf("unexpected redis addr %q", c.RedisAddr())
	}
	if c.Redis.Prefix != "am" {
		t.Fatalf("unexpected prefix %q", c.Redis.Prefix)
	}
}

func TestValidate_UnknownStore(t *testing.T) {
	c := validConfig()
	c.Store.Backend = "mongo"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for unknown store")
	}
}

func TestValidate_SignedURLTTLCap(t *testing.T) {
	c := validConfig()
	c.GCS.SignedURLTTL = 8 * 24 * time.Hour
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for signed url ttl over seven days")
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("PUBLIC_BASE_URL", "https://calls.example.com")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("TWILIO_PHONE_NUMBER", "+15550001111")
}

func TestLoad_FromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TWILIO_VALIDATE_SIGNATURE", "true")
	t.Setenv("TWILIO_CALLS_PER_SECOND", "2.5")
	t.Setenv("PROVIDER_TIMEOUT", "5s")
	t.Setenv("CALL_STORE", "Redis")
	t.Setenv("CALLBACK_REJECT_STALE", "1")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("GCS_STORAGE_BUCKET", "bucket")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.HTTPAddr() != ":9090" {
		t.Fatalf("unexpected addr %q", c.HTTPAddr())
	}
	if !c.Twilio.ValidateSignature || c.Twilio.CallsPerSecond != 2.5 {
		t.Fatalf("unexpected twilio config %+v", c.Twilio)
	}
	if c.App.ProviderTimeout != 5*time.Second {
		t.Fatalf("unexpected timeout %s", c.App.ProviderTimeout)
	}
	if c.Store.Backend != StoreRedis || !c.Store.RejectStale {
		t.Fatalf("unexpected store config %+v", c.Store)
	}
	if c.Redis.DB != 3 || c.RedisAddr() != "cache:6379" {
		t.Fatalf("unexpected redis config %+v", c.Redis)
	}
	if !c.GeminiEnabled() || !c.GCSEnabled() {
		t.Fatalf("expected gemini and gcs enabled")
	}
}

func TestLoad_CollectsMalformedValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_PORT", "http")
	t.Setenv("PROVIDER_TIMEOUT", "soon")
	t.Setenv("TWILIO_VALIDATE_SIGNATURE", "maybe")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, key := range []string{"APP_PORT", "PROVIDER_TIMEOUT", "TWILIO_VALIDATE_SIGNATURE"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("expected %s in %q", key, err.Error())
		}
	}
}

func TestLoadAuth(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := LoadAuth(); err == nil {
		t.Fatalf("expected error without JWT_SECRET")
	}

	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("JWT_ISSUER", "answering-machine")
	t.Setenv("JWT_ACCESS_TTL", "")
	a, err := LoadAuth()
	if err != nil {
		t.Fatalf("LoadAuth: %v", err)
	}
	if a.JWTIssuer != "answering-machine" || a.AccessTokenTTL != 24*time.Hour {
		t.Fatalf("unexpected auth config %+v", a)
	}
}

package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q, want default", cfg.RedisAddr)
	}
	if cfg.SessionCookieName != "auth_session" {
		t.Errorf("SessionCookieName = %q, want auth_session", cfg.SessionCookieName)
	}
	if cfg.CSRFCookieName != "csrf_token" {
		t.Errorf("CSRFCookieName = %q, want csrf_token", cfg.CSRFCookieName)
	}
	if cfg.Argon2MemoryKiB != 64*1024 {
		t.Errorf("Argon2MemoryKiB = %d, want %d", cfg.Argon2MemoryKiB, 64*1024)
	}
	if cfg.Argon2Iterations != 3 {
		t.Errorf("Argon2Iterations = %d, want 3", cfg.Argon2Iterations)
	}
	if cfg.LoginIPLimit != 10 {
		t.Errorf("LoginIPLimit = %d, want 10", cfg.LoginIPLimit)
	}
	if cfg.CookieSecure {
		t.Error("CookieSecure should default to false")
	}
	if cfg.SessionLifetime() != 24*time.Hour {
		t.Errorf("SessionLifetime = %v, want 24h", cfg.SessionLifetime())
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("SESSION_TTL", "1h")
	os.Setenv("LOGIN_IP_LIMIT", "3")
	os.Setenv("LOGIN_IP_WINDOW", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
	}
	if cfg.SessionLifetime() != time.Hour {
		t.Errorf("SessionLifetime = %v, want 1h", cfg.SessionLifetime())
	}
	if cfg.LoginIPLimit != 3 {
		t.Errorf("LoginIPLimit = %d, want 3", cfg.LoginIPLimit)
	}
	if cfg.LoginIPWindowDuration() != 30*time.Second {
		t.Errorf("LoginIPWindowDuration = %v, want 30s", cfg.LoginIPWindowDuration())
	}
}

func TestLoad_ProductionRequiresSecrets(t *testing.T) {
	os.Clearenv()
	os.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("production without AUTH_PEPPER must fail")
	}

	os.Setenv("AUTH_PEPPER", "pepper")
	if _, err := Load(); err == nil {
		t.Fatal("production without IP_HASH_SECRET must fail")
	}

	os.Setenv("IP_HASH_SECRET", "secret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.CookieSecure {
		t.Error("production must force CookieSecure")
	}
}

func TestLoad_InvalidDurationsFallBack(t *testing.T) {
	os.Clearenv()
	os.Setenv("SESSION_TTL", "not-a-duration")
	os.Setenv("LOGIN_ACCOUNT_WINDOW", "bogus")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SessionLifetime() != 24*time.Hour {
		t.Errorf("SessionLifetime fallback = %v, want 24h", cfg.SessionLifetime())
	}
	if cfg.LoginAccountWindowDuration() != 5*time.Minute {
		t.Errorf("LoginAccountWindowDuration fallback = %v, want 5m", cfg.LoginAccountWindowDuration())
	}
}

func TestLoad_RejectsBadArgon2(t *testing.T) {
	os.Clearenv()
	os.Setenv("ARGON2_MEMORY_KIB", "1024")

	if _, err := Load(); err == nil {
		t.Error("too-small argon2 memory must fail validation")
	}
}

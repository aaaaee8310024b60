package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// t.Setenv with empty values masks any ambient configuration.
	for _, k := range []string{
		"PORT", "LOG_LEVEL", "GIN_MODE", "DB_PATH", "UPLOAD_DIR", "MAX_UPLOAD_BYTES",
		"JOB_TIMEOUT", "RATE_RPS", "RATE_BURST", "API_BASE_PATH", "JWT_TTL",
		"DEEPSEEK_API_KEY", "DEEPSEEK_BASE_URL", "DEEPSEEK_MODEL", "LLM_TIMEOUT",
		"GOOGLE_CLOUD_PROJECT_ID", "DOCUMENT_AI_PROCESSOR_ID", "OTEL_ENABLED",
	} {
		t.Setenv(k, "")
	}
	// JWT_SECRET has no default; Load refuses to start without it.
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8080" || cfg.GinMode != "release" || cfg.LogLevel != "info" {
		t.Fatalf("server defaults: %+v", cfg)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("APIBasePath = %q", cfg.APIBasePath)
	}
	if cfg.MaxUploadBytes != 20<<20 {
		t.Fatalf("MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
	if cfg.JobTimeout != 5*time.Minute {
		t.Fatalf("JobTimeout = %v", cfg.JobTimeout)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Fatalf("TokenTTL = %v", cfg.Auth.TokenTTL)
	}
	if cfg.LLM.BaseURL != "https://api.deepseek.com" || cfg.LLM.Model != "deepseek-chat" {
		t.Fatalf("LLM defaults: %+v", cfg.LLM)
	}
	if cfg.LLM.Timeout != 120*time.Second || cfg.LLM.MaxTokens != 4096 {
		t.Fatalf("LLM defaults: %+v", cfg.LLM)
	}
	if cfg.DocAI.Location != "us" {
		t.Fatalf("DocAI.Location = %q", cfg.DocAI.Location)
	}
	if cfg.OTEL.Enabled {
		t.Fatalf("OTEL must default to disabled")
	}
}

func TestLoad_OverridesAndNormalization(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "9999")
	t.Setenv("LOG_LEVEL", "WARNING") // normalized to warn
	t.Setenv("GIN_MODE", "bogus")    // coerced to release
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("MAX_UPLOAD_BYTES", "1048576")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , https://b.example ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9999" {
		t.Fatalf("Port = %q", cfg.Port)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("GinMode = %q", cfg.GinMode)
	}
	if cfg.APIBasePath != "/api/v2" {
		t.Fatalf("APIBasePath = %q", cfg.APIBasePath)
	}
	if cfg.MaxUploadBytes != 1048576 {
		t.Fatalf("MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[0] != "https://a.example" {
		t.Fatalf("AllowedOrigins = %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	cases := []struct {
		key, val, wantErr string
	}{
		{"LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"JWT_SECRET", " ", "JWT_SECRET"},
		{"MAX_UPLOAD_BYTES", "-1", "MAX_UPLOAD_BYTES"},
		{"JOB_TIMEOUT", "-2s", "JOB_TIMEOUT"},
		{"RATE_RPS", "-1", "RATE_RPS"},
		{"RATE_BURST", "0", "RATE_BURST"},
		{"JWT_TTL", "-1h", "JWT_TTL"},
		{"LLM_TEMPERATURE", "5", "LLM_TEMPERATURE"},
		{"OTEL_TRACES_SAMPLER_ARG", "2", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("%s=%s: expected validation error mentioning %s, got %v", tc.key, tc.val, tc.wantErr, err)
			}
		})
	}
}

func TestLoad_RejectsMissingJWTSecret(t *testing.T) {
	// Without a secret the server would sign and verify HS256 tokens with an
	// empty key, letting anyone forge an identity. Startup must refuse.
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("empty JWT_SECRET must fail validation, got %v", err)
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":         "/",
		"/":        "/",
		"api":      "/api",
		"/api/":    "/api",
		"/api/v1/": "/api/v1",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetBool(t *testing.T) {
	t.Setenv("FLAG_A", "YES")
	t.Setenv("FLAG_B", "off")
	t.Setenv("FLAG_C", "maybe")
	if !getbool("FLAG_A", false) {
		t.Errorf("YES must parse true")
	}
	if getbool("FLAG_B", true) {
		t.Errorf("off must parse false")
	}
	if !getbool("FLAG_C", true) {
		t.Errorf("unparseable values must keep the default")
	}
}

func TestGetDur(t *testing.T) {
	t.Setenv("DUR_OK", "90s")
	t.Setenv("DUR_BAD", "ninety")
	if getdur("DUR_OK", time.Second) != 90*time.Second {
		t.Errorf("valid duration not parsed")
	}
	if getdur("DUR_BAD", 7*time.Second) != 7*time.Second {
		t.Errorf("invalid duration must keep the default")
	}
}

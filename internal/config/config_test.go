package config

import (
	"os"
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("DATABASE_URL", "postgres://frontdesk:pw@localhost:5432/frontdesk")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HealthGRPCAddr != ":8081" {
		t.Errorf("HealthGRPCAddr = %q, want %q", cfg.HealthGRPCAddr, ":8081")
	}
	if cfg.AuthJWTAudience != "authenticated" {
		t.Errorf("AuthJWTAudience = %q, want %q", cfg.AuthJWTAudience, "authenticated")
	}
	if cfg.ServiceName != "gym-frontdesk" {
		t.Errorf("ServiceName = %q, want %q", cfg.ServiceName, "gym-frontdesk")
	}
	if cfg.TelemetryKafkaTopic != "frontdesk-telemetry" {
		t.Errorf("TelemetryKafkaTopic = %q, want default", cfg.TelemetryKafkaTopic)
	}
	if cfg.ProfileTimeout() != 60*time.Second {
		t.Errorf("ProfileTimeout() = %v, want 60s", cfg.ProfileTimeout())
	}
	if cfg.ReuseWindow() != 10*time.Minute {
		t.Errorf("ReuseWindow() = %v, want 10m", cfg.ReuseWindow())
	}
	if cfg.SettingsTTL() != 30*time.Second {
		t.Errorf("SettingsTTL() = %v, want 30s", cfg.SettingsTTL())
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("DATABASE_URL", "postgres://x")
	os.Setenv("HEALTH_GRPC_ADDR", ":9090")
	os.Setenv("PROFILE_FETCH_TIMEOUT", "5s")
	os.Setenv("DEVICE_REQUEST_REUSE_WINDOW", "2m")
	os.Setenv("SETTINGS_CACHE_TTL", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HealthGRPCAddr != ":9090" {
		t.Errorf("HealthGRPCAddr = %q, want %q", cfg.HealthGRPCAddr, ":9090")
	}
	if cfg.ProfileTimeout() != 5*time.Second {
		t.Errorf("ProfileTimeout() = %v, want 5s", cfg.ProfileTimeout())
	}
	if cfg.ReuseWindow() != 2*time.Minute {
		t.Errorf("ReuseWindow() = %v, want 2m", cfg.ReuseWindow())
	}
	if cfg.SettingsTTL() != 0 {
		t.Errorf("SettingsTTL() = %v, want 0 (cache disabled)", cfg.SettingsTTL())
	}
}

func TestLoad_DatabaseURLRequiredOutsideDevelopment(t *testing.T) {
	os.Clearenv()
	if _, err := Load(); err == nil {
		t.Fatal("Load without DATABASE_URL should fail")
	}

	os.Setenv("APP_ENV", "development")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load in development: %v", err)
	}
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment() = false, want true")
	}
}

func TestLoad_RejectsBothJWTKeys(t *testing.T) {
	os.Clearenv()
	os.Setenv("DATABASE_URL", "postgres://x")
	os.Setenv("AUTH_JWT_SECRET", "secret")
	os.Setenv("AUTH_JWT_PUBLIC_KEY", "-----BEGIN PUBLIC KEY-----")

	if _, err := Load(); err == nil {
		t.Fatal("Load with both secret and public key should fail")
	}
}

func TestDurations_InvalidFallBack(t *testing.T) {
	cfg := &Config{
		ProfileFetchTimeout:      "soon",
		DeviceRequestReuseWindow: "-1m",
		SettingsCacheTTL:         "bogus",
	}
	if cfg.ProfileTimeout() != 60*time.Second {
		t.Errorf("ProfileTimeout() = %v, want 60s", cfg.ProfileTimeout())
	}
	if cfg.ReuseWindow() != 10*time.Minute {
		t.Errorf("ReuseWindow() = %v, want 10m", cfg.ReuseWindow())
	}
	if cfg.SettingsTTL() != 30*time.Second {
		t.Errorf("SettingsTTL() = %v, want 30s", cfg.SettingsTTL())
	}
}

func TestTelemetryKafkaBrokersList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"single", "localhost:9092", []string{"localhost:9092"}},
		{"trimmed", " a:1 , ,b:2 ", []string{"a:1", "b:2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{TelemetryKafkaBrokers: tt.in}
			got := cfg.TelemetryKafkaBrokersList()
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TelemetryKafkaBrokersList() = %v, want %v", got, tt.want)
			}
		})
	}
}

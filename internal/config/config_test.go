package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TRAINING_BASE_DOMAIN", "train.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.MaxPerUser != 3 {
		t.Errorf("MaxPerUser = %d, want 3", cfg.MaxPerUser)
	}
	if cfg.IdleLimit != 15*time.Minute {
		t.Errorf("IdleLimit = %s, want 15m", cfg.IdleLimit)
	}
	if cfg.LifetimeLimit != 2*time.Hour {
		t.Errorf("LifetimeLimit = %s, want 2h", cfg.LifetimeLimit)
	}
	if cfg.NetworkName != "training_network" {
		t.Errorf("NetworkName = %q, want training_network", cfg.NetworkName)
	}
	if cfg.UploadMaxSize != 50<<20 {
		t.Errorf("UploadMaxSize = %d, want %d", cfg.UploadMaxSize, 50<<20)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TRAINING_BASE_DOMAIN", "train.example.com")
	t.Setenv("TRAINING_MAX_PER_USER", "5")
	t.Setenv("TRAINING_IDLE_LIMIT", "30m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxPerUser != 5 {
		t.Errorf("MaxPerUser = %d, want 5", cfg.MaxPerUser)
	}
	if cfg.IdleLimit != 30*time.Minute {
		t.Errorf("IdleLimit = %s, want 30m", cfg.IdleLimit)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := strings.Join([]string{
		"TRAINING_BASE_DOMAIN: file.example.com",
		"TRAINING_MAX_PER_USER: 7",
		"TRAINING_CHECK_INTERVAL: 90s",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRAINING_CONFIG_FILE", path)
	// Env wins over file.
	t.Setenv("TRAINING_MAX_PER_USER", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseDomain != "file.example.com" {
		t.Errorf("BaseDomain = %q, want file.example.com", cfg.BaseDomain)
	}
	if cfg.MaxPerUser != 2 {
		t.Errorf("MaxPerUser = %d, want 2 (env overrides file)", cfg.MaxPerUser)
	}
	if cfg.CheckInterval != 90*time.Second {
		t.Errorf("CheckInterval = %s, want 90s", cfg.CheckInterval)
	}
}

func TestValidateRejectsMissingBaseDomain(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.BaseDomain = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted empty base domain")
	}
}

func TestLoadDockerTLS(t *testing.T) {
	t.Setenv("TRAINING_BASE_DOMAIN", "train.example.com")
	t.Setenv("TRAINING_DOCKER_SOCK", "tcp://docker.internal:2376")
	t.Setenv("TRAINING_DOCKER_TLS_CA", "/certs/ca.pem")
	t.Setenv("TRAINING_DOCKER_TLS_CERT", "/certs/client.pem")
	t.Setenv("TRAINING_DOCKER_TLS_KEY", "/certs/client-key.pem")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.DockerTLSCA != "/certs/ca.pem" {
		t.Errorf("DockerTLSCA = %q, want /certs/ca.pem", cfg.DockerTLSCA)
	}
	if cfg.DockerTLSCert != "/certs/client.pem" || cfg.DockerTLSKey != "/certs/client-key.pem" {
		t.Errorf("cert/key = %q, %q", cfg.DockerTLSCert, cfg.DockerTLSKey)
	}
}

func TestValidateRejectsPartialDockerTLS(t *testing.T) {
	t.Setenv("TRAINING_BASE_DOMAIN", "train.example.com")
	t.Setenv("TRAINING_DOCKER_TLS_CA", "/certs/ca.pem")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted a CA cert without a client cert and key")
	}
}

func TestValidateRejectsBadSchedule(t *testing.T) {
	t.Setenv("TRAINING_BASE_DOMAIN", "train.example.com")
	t.Setenv("TRAINING_RECONCILE_SCHEDULE", "not a cron line")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted malformed cron expression")
	}
}

func TestValidateAcceptsSchedule(t *testing.T) {
	t.Setenv("TRAINING_BASE_DOMAIN", "train.example.com")
	t.Setenv("TRAINING_RECONCILE_SCHEDULE", "0 */6 * * *")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

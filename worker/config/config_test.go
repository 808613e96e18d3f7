package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Redis.QueueName != "garuda:tasks" {
		t.Errorf("Expected default queue garuda:tasks, got %s", cfg.Redis.QueueName)
	}
	if cfg.Redis.StatusTTL.Duration != time.Hour {
		t.Errorf("Expected status TTL 1h, got %s", cfg.Redis.StatusTTL)
	}
	if cfg.Worker.DefaultScheme != "https" {
		t.Errorf("Expected https default scheme, got %s", cfg.Worker.DefaultScheme)
	}
	if cfg.VLM.HTMLPromptChars != 2000 || cfg.VLM.OCRPromptChars != 1000 {
		t.Errorf("Unexpected prompt limits %d/%d", cfg.VLM.HTMLPromptChars, cfg.VLM.OCRPromptChars)
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analyzer.toml")
	content := `
[redis]
queue_name = "custom:tasks"
status_ttl = "30m"

[worker]
instances = 3
default_scheme = "http"

[storage]
driver = "sqlite"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("VLM_ENDPOINT", "http://vlm.internal/v1/chat/completions")
	t.Setenv("WORKER_INSTANCES", "2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Redis.QueueName != "custom:tasks" {
		t.Errorf("Expected queue from file, got %s", cfg.Redis.QueueName)
	}
	if cfg.Redis.StatusTTL.Duration != 30*time.Minute {
		t.Errorf("Expected 30m TTL, got %s", cfg.Redis.StatusTTL)
	}
	if cfg.Worker.Instances != 2 {
		t.Errorf("Expected env to override instances, got %d", cfg.Worker.Instances)
	}
	if cfg.Worker.DefaultScheme != "http" {
		t.Errorf("Expected http scheme, got %s", cfg.Worker.DefaultScheme)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Expected sqlite driver, got %s", cfg.Storage.Driver)
	}
	if cfg.VLM.Endpoint != "http://vlm.internal/v1/chat/completions" {
		t.Errorf("Expected env endpoint, got %s", cfg.VLM.Endpoint)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Worker.DefaultScheme = "ftp"
	cfg.Storage.Driver = "mongo"
	cfg.Feedback.Mode = "kafka"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected validation error, got nil")
	}
	for _, want := range []string{"default_scheme", "storage.driver", "kafka_brokers"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected error to mention %s, got: %v", want, err)
		}
	}
}

func TestKafkaBrokerList(t *testing.T) {
	cfg := Default()
	cfg.Feedback.KafkaBrokers = "a:9092, b:9092,,"

	got := cfg.KafkaBrokerList()
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Errorf("Unexpected broker list %v", got)
	}
}

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
http:
  port: 9090
  timeout: 45s
  allowed_origins: ["http://localhost:3000"]
database:
  path: data/test.db
training:
  trees: 50
`)
	config, err := loadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.HTTP.Port != 9090 || config.HTTP.Timeout != 45*time.Second {
		t.Fatalf("unexpected http config: %+v", config.HTTP)
	}
	if config.Training.Trees != 50 {
		t.Fatalf("trees = %d, want 50", config.Training.Trees)
	}
	// 未配置的字段保留默认值
	if config.Training.TestRatio != 0.2 || config.Training.Seed != 42 || config.Cache.Size != 1024 ||
		config.Training.Timeout != 10*time.Minute {
		t.Fatalf("defaults lost: %+v", config.Training)
	}

	config.resolvePaths(path)
	want := filepath.Join(filepath.Dir(path), "data", "test.db")
	if config.Database.Path != want {
		t.Fatalf("database path = %s, want %s", config.Database.Path, want)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad ratio", "training:\n  test_ratio: 1.5\n"},
		{"bad trees", "training:\n  trees: 0\n"},
		{"bad timeout", "training:\n  timeout: -1s\n"},
		{"bad level", "log:\n  level: chatty\n"},
		{"bad yaml", "http: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadConfig(writeConfig(t, tt.content)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

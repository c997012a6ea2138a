package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldWd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(oldWd) })
}

func TestLoad(t *testing.T) {
	// Test loading with no config file (should use defaults)
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error loading defaults, got %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.Addr() != "localhost:8080" {
		t.Errorf("expected default addr 'localhost:8080', got %s", cfg.Server.Addr())
	}
	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("expected default driver 'sqlite3', got %s", cfg.Database.Driver)
	}
	if cfg.Query.DefaultMaxDepth != 3 {
		t.Errorf("expected default max depth 3, got %d", cfg.Query.DefaultMaxDepth)
	}
	if !cfg.Query.Diagnostics {
		t.Error("expected diagnostics to be enabled by default")
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "console" {
		t.Errorf("expected info/console logging, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Catalog.File != "" {
		t.Errorf("expected no catalog file, got %s", cfg.Catalog.File)
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	chdir(t, t.TempDir())

	configContent := `
database:
  driver: postgres
  url: postgresql://localhost/testdb
server:
  port: 9090
  host: 0.0.0.0
  api_prefix: /api
query:
  default_max_depth: 4
  diagnostics: false
catalog:
  file: catalog.yaml
log:
  level: debug
  format: json
`
	if err := os.WriteFile("flatquery.yaml", []byte(configContent), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error loading config, got %v", err)
	}

	if cfg.Database.Driver != "postgres" || cfg.Database.URL != "postgresql://localhost/testdb" {
		t.Errorf("unexpected database config: %+v", cfg.Database)
	}
	if cfg.Server.Port != 9090 || cfg.Server.Host != "0.0.0.0" || cfg.Server.APIPrefix != "/api" {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Query.DefaultMaxDepth != 4 || cfg.Query.Diagnostics {
		t.Errorf("unexpected query config: %+v", cfg.Query)
	}
	if cfg.Catalog.File != "catalog.yaml" {
		t.Errorf("expected catalog file 'catalog.yaml', got %s", cfg.Catalog.File)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected json logging, got %s", cfg.Log.Format)
	}
}

func TestLoadExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 7070\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("expected port 7070, got %d", cfg.Server.Port)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("FLATQUERY_SERVER_PORT", "6060")
	t.Setenv("FLATQUERY_DATABASE_DRIVER", "duckdb")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Server.Port != 6060 {
		t.Errorf("expected port 6060 from env, got %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "duckdb" {
		t.Errorf("expected driver duckdb from env, got %s", cfg.Database.Driver)
	}
}

func TestDatabaseURL(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{URL: "from-config"}}

	t.Setenv("DATABASE_URL", "")
	if got := cfg.DatabaseURL(); got != "from-config" {
		t.Errorf("expected config url, got %s", got)
	}

	t.Setenv("DATABASE_URL", "from-env")
	if got := cfg.DatabaseURL(); got != "from-env" {
		t.Errorf("expected env url, got %s", got)
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		return Config{
			Database: DatabaseConfig{Driver: "sqlite3"},
			Server:   ServerConfig{Port: 8080},
			Query:    QueryConfig{DefaultMaxDepth: 3},
			Log:      LogConfig{Format: "console"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"valid prefix", func(c *Config) { c.Server.APIPrefix = "/api/v1" }, ""},
		{"prefix without slash", func(c *Config) { c.Server.APIPrefix = "api" }, "must start with '/'"},
		{"prefix with trailing slash", func(c *Config) { c.Server.APIPrefix = "/api/" }, "must not end with '/'"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"negative rate limit", func(c *Config) { c.Server.RateLimit = -1 }, "server.rate_limit"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"depth out of range", func(c *Config) { c.Query.DefaultMaxDepth = 6 }, "default_max_depth"},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := validateConfig(&cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

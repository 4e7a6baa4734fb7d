package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldWd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(oldWd) })
}

func TestLoad(t *testing.T) {
	// No config file: defaults only
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error loading defaults, got %v", err)
	}

	if cfg.Schema.Path != "models.yaml" {
		t.Errorf("expected default schema path, got %s", cfg.Schema.Path)
	}
	if cfg.Database.Host != "localhost" || cfg.Database.Port != 3306 {
		t.Errorf("unexpected database defaults %+v", cfg.Database)
	}
	if cfg.Database.MaxOpenConns != 10 {
		t.Errorf("expected 10 max open conns, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Redis.Enabled || cfg.Redis.Addr != "localhost:6379" || cfg.Redis.Prefix != "revstore:" {
		t.Errorf("unexpected redis defaults %+v", cfg.Redis)
	}
	if cfg.Redis.TTL != 5*time.Minute {
		t.Errorf("expected 5m ttl, got %v", cfg.Redis.TTL)
	}
	if cfg.Log.Level != "info" || cfg.Log.Development {
		t.Errorf("unexpected log defaults %+v", cfg.Log)
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	chdir(t, tmpDir)

	configContent := `
schema:
  path: schema/library.yaml
database:
  host: db.internal
  port: 3307
  user: app
  password: secret
  name: library
redis:
  enabled: true
  ttl: 30s
log:
  level: debug
  development: true
`
	if err := os.WriteFile(filepath.Join(tmpDir, "revstore.yaml"), []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error loading config, got %v", err)
	}

	if cfg.Schema.Path != "schema/library.yaml" {
		t.Errorf("unexpected schema path %s", cfg.Schema.Path)
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.Port != 3307 || cfg.Database.Name != "library" {
		t.Errorf("unexpected database config %+v", cfg.Database)
	}
	if !cfg.Redis.Enabled || cfg.Redis.TTL != 30*time.Second {
		t.Errorf("unexpected redis config %+v", cfg.Redis)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.Development {
		t.Errorf("unexpected log config %+v", cfg.Log)
	}

	cc := cfg.Redis.CacheConfig()
	if cc.Addr != "localhost:6379" || cc.TTL != 30*time.Second || cc.Prefix != "revstore:" {
		t.Errorf("unexpected cache config %+v", cc)
	}
}

func TestLoadExplicitPath(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "custom.yaml")
	if err := os.WriteFile(path, []byte("schema:\n  path: models/all.yaml\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := SchemaPath(cfg, path); got != filepath.Join(tmpDir, "models/all.yaml") {
		t.Errorf("unexpected resolved schema path %s", got)
	}

	if _, err := Load(filepath.Join(tmpDir, "missing.yaml")); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("REVSTORE_DATABASE_HOST", "mysql.test")
	t.Setenv("REVSTORE_DATABASE_PORT", "3310")
	t.Setenv("REVSTORE_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Database.Host != "mysql.test" || cfg.Database.Port != 3310 {
		t.Errorf("env overrides not applied: %+v", cfg.Database)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected warn, got %s", cfg.Log.Level)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"empty schema path", func(c *Config) { c.Schema.Path = "" }, true},
		{"port out of range", func(c *Config) { c.Database.Port = 70000 }, true},
		{"url skips port check", func(c *Config) { c.Database.Port = 0; c.Database.URL = "root@/lib" }, false},
		{"negative pool", func(c *Config) { c.Database.MaxOpenConns = -1 }, true},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Schema:   SchemaConfig{Path: "models.yaml"},
				Database: DatabaseConfig{Port: 3306},
				Redis:    RedisConfig{Addr: "localhost:6379"},
			}
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db.internal", Port: 3307, User: "app", Password: "secret", Name: "library"}

	parsed, err := mysql.ParseDSN(d.DSN())
	if err != nil {
		t.Fatalf("generated DSN does not parse: %v", err)
	}
	if parsed.User != "app" || parsed.Passwd != "secret" || parsed.Net != "tcp" ||
		parsed.Addr != "db.internal:3307" || parsed.DBName != "library" {
		t.Errorf("unexpected DSN %s", d.DSN())
	}

	d.URL = "root:pw@unix(/tmp/mysql.sock)/lib"
	if d.DSN() != d.URL {
		t.Errorf("explicit url should win, got %s", d.DSN())
	}
}

func TestGetProjectRoot(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "revstore.yml"), []byte(""), 0644); err != nil {
		t.Fatal(err)
	}
	subDir := filepath.Join(tmpDir, "models", "nested")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	chdir(t, subDir)

	root, err := GetProjectRoot()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want, _ := filepath.EvalSymlinks(tmpDir)
	got, _ := filepath.EvalSymlinks(root)
	if got != want {
		t.Errorf("expected root %s, got %s", want, got)
	}
}

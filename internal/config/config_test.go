package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadServeDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadServe(writeConfig(t, dir, "listen: \":9090\"\n"), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Fatalf("expected listen from file, got %q", cfg.Listen)
	}
	if cfg.Oracle.Staleness != time.Minute || cfg.Oracle.FeedTimeout != 5*time.Second {
		t.Fatalf("unexpected oracle defaults: %+v", cfg.Oracle)
	}
	if cfg.Backend.Kind != BackendHTTP || cfg.Backend.QueueSize != 1024 {
		t.Fatalf("unexpected backend defaults: %+v", cfg.Backend)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("unexpected log level %q", cfg.LogLevel)
	}
}

func TestLoadServeFlagsAndEnv(t *testing.T) {
	t.Setenv("CROSSFUND_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("CROSSFUND_FEED_TIMEOUT", "2s")

	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.String("backend", "http", "")
	flags.String("pg-dsn", "", "")
	if err := flags.Parse([]string{"--backend=postgres", "--pg-dsn=postgres://localhost/crossfund"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := LoadServe(writeConfig(t, t.TempDir(), ""), flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.Kind != BackendPostgres || cfg.Backend.PGDSN != "postgres://localhost/crossfund" {
		t.Fatalf("flags not applied: %+v", cfg.Backend)
	}
	if !reflect.DeepEqual(cfg.KafkaBrokers, []string{"k1:9092", "k2:9092"}) {
		t.Fatalf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
	if cfg.Oracle.FeedTimeout != 2*time.Second {
		t.Fatalf("env not applied: %v", cfg.Oracle.FeedTimeout)
	}
}

func TestLoadBackendValidation(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "backend: postgres\nproject: p1\n")
	if _, err := LoadFunding(path, nil); err == nil {
		t.Fatalf("expected error for postgres backend without dsn")
	}
	path = writeConfig(t, t.TempDir(), "backend: redis\nproject: p1\n")
	if _, err := LoadFunding(path, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	path = writeConfig(t, t.TempDir(), "backend: none\n")
	if _, err := LoadRecord(path, nil); err == nil {
		t.Fatalf("expected error for missing project")
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing .env must be ignored: %v", err)
	}
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

package main

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"crossfund/internal/config"
	"crossfund/internal/remote"
)

func TestOpenBackendKinds(t *testing.T) {
	ctx := context.Background()

	b, closeFn, err := openBackend(ctx, config.BackendConfig{Kind: config.BackendNone}, zap.NewNop())
	if err != nil {
		t.Fatalf("none backend: %v", err)
	}
	closeFn()
	if _, ok := b.(remote.NopBackend); !ok {
		t.Fatalf("expected NopBackend, got %T", b)
	}

	b, closeFn, err = openBackend(ctx, config.BackendConfig{Kind: config.BackendHTTP, URL: "http://localhost:1"}, zap.NewNop())
	if err != nil {
		t.Fatalf("http backend: %v", err)
	}
	closeFn()
	if _, ok := b.(*remote.HTTPBackend); !ok {
		t.Fatalf("expected HTTPBackend, got %T", b)
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := newLogger("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	logger, err := newLogger("debug")
	if err != nil {
		t.Fatalf("debug level: %v", err)
	}
	_ = logger.Sync()
}

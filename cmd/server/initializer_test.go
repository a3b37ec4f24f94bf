package main

import (
	"testing"

	"unified-thinking/internal/config"
)

func TestInitializeServer_DefaultMemoryStorage(t *testing.T) {
	components, err := InitializeServer()
	if err != nil {
		t.Fatalf("InitializeServer() failed: %v", err)
	}
	defer components.Cleanup()

	if components.Storage == nil {
		t.Error("Storage not initialized")
	}
	if components.Embedder == nil {
		t.Error("Embedder not initialized (mock fallback expected)")
	}
	if components.Store == nil {
		t.Error("Store not initialized")
	}
	if components.Router == nil {
		t.Error("Router not initialized")
	}
	if components.Limiter == nil {
		t.Error("Limiter not initialized")
	}
	if components.Audit == nil {
		t.Error("Audit sink not initialized (no-op fallback expected)")
	}
	if components.Server == nil {
		t.Error("Server not initialized")
	}
}

func TestInitializeServer_SQLiteStorage(t *testing.T) {
	t.Setenv("EME_STORAGE_TYPE", "sqlite")
	t.Setenv("EME_STORAGE_SQLITE_PATH", t.TempDir()+"/test.db")

	components, err := InitializeServer()
	if err != nil {
		t.Fatalf("InitializeServer() with SQLite failed: %v", err)
	}
	defer components.Cleanup()

	if components.Storage == nil {
		t.Fatal("Storage not initialized")
	}
}

func TestInitializeServer_Cleanup(t *testing.T) {
	components, err := InitializeServer()
	if err != nil {
		t.Fatalf("InitializeServer() failed: %v", err)
	}

	if err := components.Cleanup(); err != nil {
		t.Errorf("Cleanup() failed: %v", err)
	}
	if err := components.Cleanup(); err != nil {
		t.Errorf("second Cleanup() failed: %v", err)
	}
}

func TestServerComponents_NilStorage(t *testing.T) {
	components := &ServerComponents{}
	if err := components.Cleanup(); err != nil {
		t.Errorf("Cleanup with nil storage should not error, got: %v", err)
	}
}

func TestInitializeEmbedder_FallsBackToMockWithoutVoyageKey(t *testing.T) {
	embedder := initializeEmbedder(config.EmbeddingsConfig{Provider: "local"})
	if embedder == nil {
		t.Fatal("expected a mock embedder fallback, got nil")
	}
	if embedder.Provider() != "mock" {
		t.Errorf("expected mock provider, got %q", embedder.Provider())
	}
}

func TestInitializeAuditSink_FallsBackToNoopWithoutURL(t *testing.T) {
	sink := initializeAuditSink(config.AuditConfig{})
	if sink == nil {
		t.Fatal("expected a no-op sink fallback, got nil")
	}
}

func TestCachePreset_UnknownFallsBackToDefault(t *testing.T) {
	if cachePreset("not-a-real-preset") == nil {
		t.Error("expected default preset for unknown name, got nil")
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"unified-thinking/internal/audit"
	"unified-thinking/internal/config"
	"unified-thinking/internal/embeddings"
	"unified-thinking/internal/index"
	"unified-thinking/internal/memory"
	"unified-thinking/internal/pattern"
	"unified-thinking/internal/ratelimit"
	"unified-thinking/internal/retriever"
	"unified-thinking/internal/sandbox"
	"unified-thinking/internal/server"
	"unified-thinking/internal/storage"

	"unified-thinking/pkg/cache"
)

// ServerComponents holds all initialized server components, exposed as its
// own struct so tests can build a server out of individually-substitutable
// pieces rather than only through InitializeServer.
type ServerComponents struct {
	Config   *config.Config
	Storage  storage.Storage
	Embedder embeddings.Embedder
	Store    *memory.Store
	Router   *sandbox.Router
	Limiter  *ratelimit.Limiter
	Audit    audit.Sink
	Server   *server.Server
}

// InitializeServer creates and initializes all server components from
// config.Load()'s environment-overridden defaults. Extracted from main() to
// enable testing.
func InitializeServer() (*ServerComponents, error) {
	components := &ServerComponents{}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	components.Config = cfg

	strg, err := storage.NewStorage(storageConfig(cfg.Storage))
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	components.Storage = strg
	log.Printf("Initialized %s storage (fallback: %s)", cfg.Storage.Type, cfg.Storage.FallbackType)

	embedder := initializeEmbedder(cfg.Embeddings)
	components.Embedder = embedder

	auditSink := initializeAuditSink(cfg.Audit)
	components.Audit = auditSink

	memCfg := memory.Config{
		Retriever: retriever.Config{
			TemporalBiasWeight: cfg.Retriever.TemporalBiasWeight,
			MaxClusters:        cfg.Retriever.MaxClusters,
		},
		Index: index.Config{
			WeeklyMaxAge:  time.Duration(cfg.Index.WeeklyMaxAgeDays) * 24 * time.Hour,
			MonthlyMaxAge: time.Duration(cfg.Index.MonthlyMaxAgeDays) * 24 * time.Hour,
		},
		Pattern: pattern.Config{
			MinOccurrence:  cfg.Pattern.MinOccurrenceCount,
			MinSuccessRate: cfg.Pattern.MinSuccessRate,
			DecayLambda:    pattern.DefaultConfig().DecayLambda,
			DecayInterval:  cfg.Pattern.DecayIntervalDefault,
		},
		Cache: cachePreset(cfg.Cache.Preset),
	}
	components.Store = memory.New(strg, embedder, auditSink, memCfg)
	log.Println("Initialized episode store, relationship manager, and pattern miner")

	ctx := context.Background()
	components.Router = sandbox.NewDefaultRouter(ctx, sandbox.RouterConfig{
		Mode:               sandbox.ModeHybrid,
		WasmRatio:          cfg.Sandbox.Router.WasmRatio,
		IntelligentRouting: cfg.Sandbox.Router.IntelligentRouting,
	}, 0)
	log.Println("Initialized sandbox router (process/wasm)")

	components.Limiter = ratelimit.New(ratelimit.Config{
		ReadRPS:   cfg.RateLimit.ReadRPS,
		WriteRPS:  cfg.RateLimit.WriteRPS,
		BurstSize: cfg.RateLimit.BurstSize,
	})
	log.Println("Initialized rate limiter")

	components.Server = server.New(components.Store, strg, components.Router, components.Limiter, auditSink, embedder, 0)
	log.Println("Created server")

	return components, nil
}

func storageConfig(cfg config.StorageConfig) storage.Config {
	return storage.Config{
		Type:          storage.StorageType(cfg.Type),
		SQLitePath:    cfg.SQLitePath,
		SQLiteTimeout: cfg.SQLiteTimeout,
		PostgresDSN:   cfg.PostgresDSN,
		FallbackType:  storage.StorageType(cfg.FallbackType),
	}
}

// initializeEmbedder constructs the configured embedding provider. "voyage"
// requires an API key; any other value (including the "local" default)
// falls back to the deterministic mock embedder, matching SPEC_FULL.md's
// requirement that semantic retrieval degrade gracefully rather than fail
// startup when no external provider is configured.
func initializeEmbedder(cfg config.EmbeddingsConfig) embeddings.Embedder {
	if cfg.Provider == "voyage" && cfg.APIKey != "" {
		model := cfg.Model
		if model == "" {
			model = "voyage-3-lite"
		}
		log.Printf("Initialized Voyage AI embedder (model: %s)", model)
		return embeddings.NewVoyageEmbedder(cfg.APIKey, model)
	}
	log.Println("Embeddings provider not configured for voyage; using mock embedder")
	return embeddings.NewMockEmbedder(256)
}

// initializeAuditSink wires a NATS-backed audit sink when a URL is
// configured; falls back to a no-op sink so a missing broker never blocks
// startup.
func initializeAuditSink(cfg config.AuditConfig) audit.Sink {
	if cfg.NATSURL == "" {
		log.Println("Audit NATS URL not configured; using no-op audit sink")
		return audit.NoopSink{}
	}
	sink, err := audit.NewNATSSink(cfg.NATSURL, cfg.BufferSize, slog.Default())
	if err != nil {
		log.Printf("Warning: failed to connect audit sink to %s: %v; using no-op sink", cfg.NATSURL, err)
		return audit.NoopSink{}
	}
	log.Printf("Initialized NATS audit sink (%s)", cfg.NATSURL)
	return sink
}

// cachePreset selects an adaptive-cache tuning from config.CacheConfig's
// named preset, defaulting to the general-purpose preset for an unknown
// value rather than failing startup.
func cachePreset(preset string) *cache.AdaptiveConfig {
	switch preset {
	case "high_hit_rate":
		return cache.HighHitRatePreset()
	case "memory_constrained":
		return cache.MemoryConstrainedPreset()
	case "write_heavy":
		return cache.WriteHeavyPreset()
	default:
		return cache.DefaultAdaptiveConfig()
	}
}

// Cleanup closes all server resources.
func (c *ServerComponents) Cleanup() error {
	if c.Audit != nil {
		if err := c.Audit.Close(); err != nil {
			log.Printf("Warning: failed to close audit sink: %v", err)
		}
	}
	if c.Storage != nil {
		return storage.CloseStorage(c.Storage)
	}
	return nil
}

package main

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intel-pipeline/internal/classify"
	"github.com/sells-group/intel-pipeline/internal/embed"
	"github.com/sells-group/intel-pipeline/internal/extract"
	"github.com/sells-group/intel-pipeline/internal/llm"
	"github.com/sells-group/intel-pipeline/internal/pipeline"
	"github.com/sells-group/intel-pipeline/internal/profile"
	"github.com/sells-group/intel-pipeline/internal/scrape"
	"github.com/sells-group/intel-pipeline/internal/store"
)

// pipelineEnv holds the initialized store, clients, and pipeline shared by
// the run/serve commands.
type pipelineEnv struct {
	Store       store.Store
	Embedder    embed.Embedder
	Classifier  *classify.Classifier
	Pipeline    *pipeline.Pipeline
	Coordinator *pipeline.Coordinator

	redis *redis.Client
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Coordinator != nil {
		pe.Coordinator.Stop()
	}
	if pe.redis != nil {
		_ = pe.redis.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initPipeline sets up the store, embedding and LLM clients, and the
// coordinator. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &pipelineEnv{Store: st}

	embedder, err := initEmbedder(ctx, env)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Embedder = embedder

	classifier, err := classify.New(embedder, cfg.Classify)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Classifier = classifier

	extractor, err := extract.NewEngine(embedder, cfg.Extract, extract.DefaultRegistry())
	if err != nil {
		env.Close()
		return nil, err
	}

	generator := profile.NewGenerator(embedder, llm.NewHTTPClient(cfg.LLM), cfg.Generate)
	scraper := scrape.NewHTTPScraper(cfg.Scrape)

	env.Pipeline = pipeline.New(cfg.Pipeline, cfg.Normalize, st, scraper, classifier, extractor, generator)
	env.Coordinator = pipeline.NewCoordinator(env.Pipeline, st, cfg.Pipeline.Workers, cfg.Pipeline.QueueSize)
	return env, nil
}

// initEmbedder wraps the embedding client with the configured cache
// backend. A redis ping failure falls back to the in-process cache rather
// than failing startup.
func initEmbedder(ctx context.Context, env *pipelineEnv) (embed.Embedder, error) {
	client := embed.NewClient(cfg.Embedding)
	ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour

	if cfg.Cache.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			zap.L().Warn("redis unavailable, using in-process embedding cache", zap.Error(err))
			_ = rdb.Close()
		} else {
			env.redis = rdb
			return embed.NewCachedEmbedder(client, embed.NewRedisCache(rdb, ttl)), nil
		}
	}

	return embed.NewCachedEmbedder(client, embed.NewMemoryCache(ttl)), nil
}

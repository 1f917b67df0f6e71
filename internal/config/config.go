package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/intel-pipeline/internal/classify"
	"github.com/sells-group/intel-pipeline/internal/embed"
	"github.com/sells-group/intel-pipeline/internal/extract"
	"github.com/sells-group/intel-pipeline/internal/llm"
	"github.com/sells-group/intel-pipeline/internal/normalize"
	"github.com/sells-group/intel-pipeline/internal/profile"
	"github.com/sells-group/intel-pipeline/internal/scrape"
	"github.com/sells-group/intel-pipeline/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig      `yaml:"store" mapstructure:"store"`
	Scrape    scrape.Config    `yaml:"scrape" mapstructure:"scrape"`
	Normalize normalize.Config `yaml:"normalize" mapstructure:"normalize"`
	Embedding embed.Config     `yaml:"embedding" mapstructure:"embedding"`
	Cache     CacheConfig      `yaml:"cache" mapstructure:"cache"`
	LLM       llm.Config       `yaml:"llm" mapstructure:"llm"`
	Classify  classify.Config  `yaml:"classify" mapstructure:"classify"`
	Extract   extract.Config   `yaml:"extract" mapstructure:"extract"`
	Generate  profile.Config   `yaml:"generate" mapstructure:"generate"`
	Pipeline  PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig     `yaml:"server" mapstructure:"server"`
	Log       LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// CacheConfig configures the embedding cache backend.
type CacheConfig struct {
	Backend       string `yaml:"backend" mapstructure:"backend"` // memory or redis
	TTLHours      int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
}

// PipelineConfig configures the job orchestrator.
type PipelineConfig struct {
	Workers          int `yaml:"workers" mapstructure:"workers"`
	QueueSize        int `yaml:"queue_size" mapstructure:"queue_size"`
	StageTimeoutSecs int `yaml:"stage_timeout_secs" mapstructure:"stage_timeout_secs"`
	StageAttempts    int `yaml:"stage_attempts" mapstructure:"stage_attempts"`
	MinDocuments     int `yaml:"min_documents" mapstructure:"min_documents"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "intel.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

	v.SetDefault("scrape.timeout_secs", 120)
	v.SetDefault("normalize.max_documents", 50)
	v.SetDefault("normalize.min_text_length", 80)

	v.SetDefault("embedding.base_url", "http://localhost:11434")
	v.SetDefault("embedding.model", "nomic-embed-text")
	v.SetDefault("embedding.timeout_secs", 60)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("cache.redis_addr", "localhost:6379")

	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.model", "llama3.1:8b")
	v.SetDefault("llm.timeout_secs", 180)

	v.SetDefault("classify.direct_cut", 0.65)
	v.SetDefault("classify.indirect_cut", 0.40)
	v.SetDefault("classify.direct_boost", 0.08)
	v.SetDefault("classify.indirect_boost", 0.03)
	v.SetDefault("classify.penalty", 0.10)
	v.SetDefault("classify.max_boost", 0.20)

	v.SetDefault("extract.default_strict_threshold", 0.55)
	v.SetDefault("extract.relax_delta", 0.12)
	v.SetDefault("extract.min_candidates", 2)
	v.SetDefault("extract.max_accepted", 5)
	v.SetDefault("extract.dedup_threshold", 0.86)

	v.SetDefault("generate.retrieval_k", 4)
	v.SetDefault("generate.max_context_chars", 4000)
	v.SetDefault("generate.chunk_chars", 800)
	v.SetDefault("generate.chunk_overlap", 150)
	v.SetDefault("generate.max_concurrent", 3)
	v.SetDefault("generate.rate_per_sec", 2)

	v.SetDefault("pipeline.workers", 3)
	v.SetDefault("pipeline.queue_size", 100)
	v.SetDefault("pipeline.stage_timeout_secs", 300)
	v.SetDefault("pipeline.stage_attempts", 2)
	v.SetDefault("pipeline.min_documents", 1)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if len(cfg.Classify.Keywords.Direct) == 0 &&
		len(cfg.Classify.Keywords.Indirect) == 0 &&
		len(cfg.Classify.Keywords.Penalty) == 0 {
		cfg.Classify.Keywords = classify.DefaultKeywords()
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

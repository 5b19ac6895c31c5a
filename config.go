package postings

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	goredis "github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/postings/blobstore"
	miniostore "github.com/hupe1980/postings/blobstore/minio"
	redisstore "github.com/hupe1980/postings/blobstore/redis"
	s3store "github.com/hupe1980/postings/blobstore/s3"
	"github.com/hupe1980/postings/codec"
	"github.com/hupe1980/postings/internal/checkpoint"
)

// Config is the file form of the index options, used by postingsctl.
type Config struct {
	PageSize          int              `yaml:"pageSize"`
	SmallSetThreshold int              `yaml:"smallSetThreshold"`
	Acceleration      *bool            `yaml:"acceleration"`
	Frequencies       *bool            `yaml:"frequencies"`
	Codec             string           `yaml:"codec"`
	Logging           LoggingConfig    `yaml:"logging"`
	Checkpoint        CheckpointConfig `yaml:"checkpoint"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// CheckpointConfig selects the blob store and checkpoint policy.
type CheckpointConfig struct {
	Store       StoreConfig `yaml:"store"`
	Compression string      `yaml:"compression"`
	RateLimit   int64       `yaml:"rateLimitBytesPerSec"`
	MemoryLimit int64       `yaml:"memoryLimitBytes"`
	Retention   int         `yaml:"retention"`
	Retries     int         `yaml:"retries"`
}

// StoreConfig describes one blob store backend.
type StoreConfig struct {
	// Type is one of local, memory, s3, minio or redis. Empty disables
	// checkpoints.
	Type string `yaml:"type"`

	Path string `yaml:"path"` // local

	Bucket      string `yaml:"bucket"` // s3, minio
	Prefix      string `yaml:"prefix"` // s3, minio, redis
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	CommitTable string `yaml:"commitTable"` // s3: DynamoDB table for CURRENT
	AccessKey   string `yaml:"accessKey"`
	SecretKey   string `yaml:"secretKey"`
	UseSSL      bool   `yaml:"useSSL"`

	Addr     string        `yaml:"addr"` // redis
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// DefaultConfig returns the configuration matching Open without options.
func DefaultConfig() *Config {
	return &Config{
		SmallSetThreshold: DefaultSmallSetThreshold,
		Codec:             codec.Default.Name(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Checkpoint: CheckpointConfig{
			Compression: checkpoint.CompressionZstd.String(),
		},
	}
}

// LoadConfig reads a YAML config file (if provided) and applies POSTINGS_*
// environment overrides on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POSTINGS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("POSTINGS_STORE_TYPE"); v != "" {
		cfg.Checkpoint.Store.Type = v
	}
	if v := os.Getenv("POSTINGS_STORE_PATH"); v != "" {
		cfg.Checkpoint.Store.Path = v
	}
	if v := os.Getenv("POSTINGS_STORE_BUCKET"); v != "" {
		cfg.Checkpoint.Store.Bucket = v
	}
	if v := os.Getenv("POSTINGS_REDIS_ADDR"); v != "" {
		cfg.Checkpoint.Store.Addr = v
	}
	if v := os.Getenv("POSTINGS_RATE_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Checkpoint.RateLimit = n
		}
	}
}

// Options converts the configuration into Open options. It connects to the
// configured blob store.
func (c *Config) Options(ctx context.Context) ([]Option, error) {
	var opts []Option
	if c.PageSize > 0 {
		opts = append(opts, WithPageSize(c.PageSize))
	}
	if c.SmallSetThreshold > 0 {
		opts = append(opts, WithSmallSetThreshold(c.SmallSetThreshold))
	}
	if c.Acceleration != nil {
		opts = append(opts, WithAcceleration(*c.Acceleration))
	}
	if c.Frequencies != nil && !*c.Frequencies {
		opts = append(opts, WithoutFrequencies())
	}
	if c.Codec != "" {
		cd, ok := codec.ByName(c.Codec)
		if !ok {
			return nil, fmt.Errorf("%w: unknown codec %q", ErrInvalidArgument, c.Codec)
		}
		opts = append(opts, WithCodec(cd))
	}

	logger, err := c.Logging.Logger()
	if err != nil {
		return nil, err
	}
	opts = append(opts, WithLogger(logger))

	comp, err := checkpoint.ParseCompression(c.Checkpoint.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	opts = append(opts,
		WithCompression(comp),
		WithCheckpointRateLimit(c.Checkpoint.RateLimit),
		WithCheckpointMemoryLimit(c.Checkpoint.MemoryLimit),
		WithCheckpointRetention(c.Checkpoint.Retention),
		WithCheckpointRetry(c.Checkpoint.Retries),
	)

	store, err := c.Checkpoint.Store.Open(ctx)
	if err != nil {
		return nil, err
	}
	if store != nil {
		opts = append(opts, WithBlobStore(store))
	}
	return opts, nil
}

// Logger builds the configured logger.
func (l LoggingConfig) Logger() (*Logger, error) {
	var level slog.Level
	if l.Level != "" {
		if err := level.UnmarshalText([]byte(l.Level)); err != nil {
			return nil, fmt.Errorf("%w: log level %q", ErrInvalidArgument, l.Level)
		}
	}
	switch strings.ToLower(l.Format) {
	case "", "text":
		return NewTextLogger(level), nil
	case "json":
		return NewJSONLogger(level), nil
	case "none":
		return NoopLogger(), nil
	default:
		return nil, fmt.Errorf("%w: log format %q", ErrInvalidArgument, l.Format)
	}
}

// Open connects to the configured backend. It returns nil for an empty Type.
func (s StoreConfig) Open(ctx context.Context) (blobstore.BlobStore, error) {
	switch strings.ToLower(s.Type) {
	case "":
		return nil, nil
	case "memory":
		return blobstore.NewMemoryStore(), nil
	case "local":
		if s.Path == "" {
			return nil, fmt.Errorf("%w: local store needs a path", ErrInvalidArgument)
		}
		return blobstore.NewLocalStore(s.Path), nil
	case "s3":
		if s.Bucket == "" {
			return nil, fmt.Errorf("%w: s3 store needs a bucket", ErrInvalidArgument)
		}
		var opts []s3store.Option
		if s.Prefix != "" {
			opts = append(opts, s3store.WithPrefix(s.Prefix))
		}
		if s.Region != "" {
			opts = append(opts, s3store.WithRegion(s.Region))
		}
		if s.Endpoint != "" {
			opts = append(opts, s3store.WithEndpoint(s.Endpoint))
		}
		if s.CommitTable != "" {
			store, err := s3store.NewCommit(ctx, s.Bucket, s.CommitTable, opts...)
			if err != nil {
				return nil, err
			}
			return store, nil
		}
		store, err := s3store.New(ctx, s.Bucket, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "minio":
		if s.Bucket == "" || s.Endpoint == "" {
			return nil, fmt.Errorf("%w: minio store needs a bucket and an endpoint", ErrInvalidArgument)
		}
		client, err := minio.New(s.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(s.AccessKey, s.SecretKey, ""),
			Secure: s.UseSSL,
			Region: s.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		return miniostore.NewStore(client, s.Bucket, s.Prefix), nil
	case "redis":
		if s.Addr == "" {
			return nil, fmt.Errorf("%w: redis store needs an address", ErrInvalidArgument)
		}
		client := goredis.NewClient(&goredis.Options{
			Addr:     s.Addr,
			Password: s.Password,
			DB:       s.DB,
		})
		return redisstore.NewStore(client, s.Prefix, redisstore.WithTTL(s.TTL)), nil
	default:
		return nil, fmt.Errorf("%w: unknown store type %q", ErrInvalidArgument, s.Type)
	}
}

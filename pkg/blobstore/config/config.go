package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tendant/simple-blobstore/pkg/blobstore"
	ddbdocstore "github.com/tendant/simple-blobstore/pkg/blobstore/docstore/dynamodb"
	memorydocstore "github.com/tendant/simple-blobstore/pkg/blobstore/docstore/memory"
	pgdocstore "github.com/tendant/simple-blobstore/pkg/blobstore/docstore/postgres"
	memorystorage "github.com/tendant/simple-blobstore/pkg/blobstore/storage/memory"
	miniostorage "github.com/tendant/simple-blobstore/pkg/blobstore/storage/minio"
	s3storage "github.com/tendant/simple-blobstore/pkg/blobstore/storage/s3"
)

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Load constructs a Config by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*Config, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaults() Config {
	return Config{
		StorageType:     "memory",
		DocStoreType:    "memory",
		MetricsInterval: 5 * time.Minute,
	}
}

// Config represents blob store configuration for one bucket.
type Config struct {
	// Storage configuration
	StorageType string `env:"BLOBSTORE_STORAGE" env-default:"memory"` // "memory", "s3", "minio"
	Bucket      string `env:"BLOBSTORE_BUCKET"`

	S3 S3Config

	MinioEndpoint  string `env:"BLOBSTORE_MINIO_ENDPOINT"`
	MinioAccessKey string `env:"BLOBSTORE_MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"BLOBSTORE_MINIO_SECRET_KEY"`
	MinioUseSSL    bool   `env:"BLOBSTORE_MINIO_USE_SSL" env-default:"true"`

	// Document store configuration
	DocStoreType  string `env:"BLOBSTORE_DOCSTORE" env-default:"memory"` // "memory", "dynamodb", "postgres"
	DynamoDBTable string `env:"BLOBSTORE_DYNAMODB_TABLE" env-default:"blob-attributes"`
	DatabaseURL   string `env:"BLOBSTORE_DATABASE_URL"`

	// Metrics refresh interval; zero disables the periodic refresh.
	MetricsInterval time.Duration `env:"BLOBSTORE_METRICS_INTERVAL" env-default:"5m"`
}

// S3Config holds the S3 adapter settings.
type S3Config struct {
	Region          string `env:"BLOBSTORE_S3_REGION" env-default:"us-east-1"`
	AccessKeyID     string `env:"BLOBSTORE_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"BLOBSTORE_S3_SECRET_ACCESS_KEY"`
	Endpoint        string `env:"BLOBSTORE_S3_ENDPOINT"`
	UsePathStyle    bool   `env:"BLOBSTORE_S3_USE_PATH_STYLE"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.StorageType {
	case "memory":
	case "s3", "minio":
		if c.Bucket == "" {
			return fmt.Errorf("bucket is required for %s storage", c.StorageType)
		}
	default:
		return fmt.Errorf("storage type must be 'memory', 's3' or 'minio', got %q", c.StorageType)
	}

	switch c.DocStoreType {
	case "memory", "dynamodb":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using postgres")
		}
	default:
		return fmt.Errorf("docstore type must be 'memory', 'dynamodb' or 'postgres', got %q", c.DocStoreType)
	}

	return nil
}

// BuildEngine creates an Engine from the configuration. The engine still
// needs Init and Start before use.
func (c *Config) BuildEngine(ctx context.Context, opts ...blobstore.Option) (*blobstore.Engine, error) {
	store, err := c.buildObjectStore()
	if err != nil {
		return nil, fmt.Errorf("failed to build object store: %w", err)
	}

	docs, err := c.buildDocumentStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build document store: %w", err)
	}

	options := []blobstore.Option{
		blobstore.WithObjectStore(store),
		blobstore.WithDocumentStore(docs),
		blobstore.WithMetricsInterval(c.MetricsInterval),
	}
	options = append(options, opts...)
	return blobstore.New(options...)
}

func (c *Config) buildObjectStore() (blobstore.ObjectStore, error) {
	switch c.StorageType {
	case "memory":
		return memorystorage.New(), nil
	case "s3":
		return s3storage.New(s3storage.Config{
			Region:          c.S3.Region,
			Bucket:          c.Bucket,
			AccessKeyID:     c.S3.AccessKeyID,
			SecretAccessKey: c.S3.SecretAccessKey,
			Endpoint:        c.S3.Endpoint,
			UsePathStyle:    c.S3.UsePathStyle,
		})
	case "minio":
		client, err := miniogo.New(c.MinioEndpoint, &miniogo.Options{
			Creds:  miniocreds.NewStaticV4(c.MinioAccessKey, c.MinioSecretKey, ""),
			Secure: c.MinioUseSSL,
		})
		if err != nil {
			return nil, err
		}
		return miniostorage.NewStore(client, c.Bucket, c.S3.Region), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}
}

func (c *Config) buildDocumentStore(ctx context.Context) (blobstore.DocumentStore, error) {
	switch c.DocStoreType {
	case "memory":
		return memorydocstore.New(), nil
	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.S3.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return ddbdocstore.New(awsdynamodb.NewFromConfig(awsCfg), c.DynamoDBTable), nil
	case "postgres":
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		store := pgdocstore.NewWithPool(pool)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported docstore type: %s", c.DocStoreType)
	}
}

package config

import (
	"github.com/ilyakaznacheev/cleanenv"
)

// WithEnv applies environment variable overrides via cleanenv.
//
// Environment variables:
//
//	BLOBSTORE_STORAGE           - "memory" (default), "s3", "minio"
//	BLOBSTORE_BUCKET            - bucket name (required for s3/minio)
//	BLOBSTORE_S3_REGION         - AWS region (default: us-east-1)
//	BLOBSTORE_S3_ACCESS_KEY_ID / BLOBSTORE_S3_SECRET_ACCESS_KEY
//	BLOBSTORE_S3_ENDPOINT       - custom endpoint for S3-compatible services
//	BLOBSTORE_S3_USE_PATH_STYLE - path-style addressing
//	BLOBSTORE_MINIO_ENDPOINT / _ACCESS_KEY / _SECRET_KEY / _USE_SSL
//	BLOBSTORE_DOCSTORE          - "memory" (default), "dynamodb", "postgres"
//	BLOBSTORE_DYNAMODB_TABLE    - table name (default: blob-attributes)
//	BLOBSTORE_DATABASE_URL      - postgres connection string
//	BLOBSTORE_METRICS_INTERVAL  - refresh interval (default: 5m)
func WithEnv() Option {
	return func(c *Config) error {
		return cleanenv.ReadEnv(c)
	}
}

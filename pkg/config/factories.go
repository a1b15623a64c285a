package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/storage"
	"github.com/marmos91/dittovfs/pkg/storage/local"
	"github.com/marmos91/dittovfs/pkg/storage/memory"
	storageS3 "github.com/marmos91/dittovfs/pkg/storage/s3"
)

// Backends lists the backend classes NewBackendRegistry registers.
var Backends = []string{"local", "memory", "s3"}

// NewBackendRegistry returns a registry with the local, memory and s3
// backends.
func NewBackendRegistry(cfg StorageConfig) (*storage.Registry, error) {
	reg := storage.NewRegistry()
	err := registerBackends(reg, Backends, map[string]storage.Factory{
		"local":  local.Factory,
		"memory": memory.Factory,
		"s3":     S3Factory(cfg.TempDir),
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// registerBackends registers the factory of every name in names.
func registerBackends(reg *storage.Registry, names []string, factories map[string]storage.Factory) error {
	for _, name := range names {
		if err := reg.Register(name, factories[name]); err != nil {
			return fmt.Errorf("failed to register %s backend: %w", name, err)
		}
	}
	return nil
}

// S3Options are the arguments of the s3 backend.
type S3Options struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// ParseS3Options decodes s3 backend arguments. The bucket may also be the
// first positional argument.
func ParseS3Options(args []string) (S3Options, error) {
	positional, options := storage.ParseArguments(args)

	var opts S3Options
	if err := storage.DecodeOptions(options, &opts); err != nil {
		return opts, err
	}
	if opts.Bucket == "" && len(positional) > 0 {
		opts.Bucket = positional[0]
	}

	if opts.Bucket == "" {
		return opts, storage.Errorf("create", "", storage.ErrInvalidParameters, "s3 backend: bucket is required")
	}
	if opts.Region == "" {
		return opts, storage.Errorf("create", "", storage.ErrInvalidParameters, "s3 backend: region is required")
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 10
	}
	return opts, nil
}

// S3Factory builds s3 backends whose write-back files go to tempDir.
func S3Factory(tempDir string) storage.Factory {
	return func(ctx context.Context, args []string) (storage.Backend, error) {
		opts, err := ParseS3Options(args)
		if err != nil {
			return nil, err
		}

		client, err := newS3Client(ctx, opts)
		if err != nil {
			return nil, storage.NewError("create", opts.Bucket, storage.ErrUnavailable, err)
		}

		b, err := storageS3.New(ctx, storageS3.Config{
			Client:    client,
			Bucket:    opts.Bucket,
			KeyPrefix: opts.Prefix,
			TempDir:   tempDir,
		})
		if err != nil {
			return nil, err
		}

		logger.Info("S3 backend initialized: bucket=%s, region=%s, prefix=%s", opts.Bucket, opts.Region, opts.Prefix)
		return b, nil
	}
}

// newS3Client builds an S3 client: static credentials when given, the
// default chain otherwise, path-style addressing for custom endpoints.
func newS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(opts.Region),
	}

	// custom endpoint for MinIO, Localstack, etc.
	if opts.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint once the remaining resolver users are gone
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint once the remaining resolver users are gone
				return aws.Endpoint{
					URL:               opts.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint once the remaining resolver users are gone
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = opts.MaxRetries
		})
	}))

	cfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.UsePathStyle = true
		}
	}), nil
}

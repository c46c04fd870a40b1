package inject

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/dmorgan81/multipartupload/internal/handler"
	"github.com/dmorgan81/multipartupload/internal/log"
	"github.com/dmorgan81/multipartupload/internal/param"
	"github.com/dmorgan81/multipartupload/internal/store"
	"github.com/dmorgan81/multipartupload/internal/sweep"
	"github.com/dmorgan81/multipartupload/internal/upload"
	"github.com/samber/do"
)

func Setup(ctx context.Context) *do.Injector {
	log := log.FromContextOrDiscard(ctx)

	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...))
		},
	})

	// The default config reaches SSM and CloudFront; S3 gets its own config
	// built from the client descriptor so it can point at any S3-compatible
	// endpoint.
	do.Provide[aws.Config](injector, func(i *do.Injector) (aws.Config, error) {
		return config.LoadDefaultConfig(ctx)
	})
	do.Provide[*ssm.Client](injector, func(i *do.Injector) (*ssm.Client, error) {
		return ssm.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*cloudfront.Client](injector, func(i *do.Injector) (*cloudfront.Client, error) {
		return cloudfront.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[param.Fetcher](injector, param.NewParameterStoreFetcher)

	do.Provide[store.ClientConfig](injector, func(i *do.Injector) (store.ClientConfig, error) {
		return clientConfig(ctx, i)
	})
	do.Provide[*s3.Client](injector, func(i *do.Injector) (*s3.Client, error) {
		c := do.MustInvoke[store.ClientConfig](i)
		cfg, err := store.LoadConfig(ctx, c)
		if err != nil {
			return nil, err
		}
		return store.NewS3Client(cfg, c), nil
	})
	do.Provide[*store.S3MultipartStore](injector, store.NewS3MultipartStore)
	do.Provide[store.MultipartStore](injector, func(i *do.Injector) (store.MultipartStore, error) {
		return do.MustInvoke[*store.S3MultipartStore](i), nil
	})
	do.Provide[store.SessionSweeper](injector, func(i *do.Injector) (store.SessionSweeper, error) {
		return do.MustInvoke[*store.S3MultipartStore](i), nil
	})
	do.Provide[store.Invalidator](injector, store.NewCloudFrontInvalidator)

	do.ProvideValue[upload.Observer](injector, upload.LogObserver{})
	do.Provide[*upload.Orchestrator](injector, upload.NewOrchestrator)
	do.Provide[*sweep.Sweeper](injector, sweep.NewSweeper)

	do.ProvideNamedValue[string](injector, "bucket", os.Getenv("BUCKET"))
	do.ProvideNamedValue[string](injector, "key", os.Getenv("KEY"))
	do.ProvideNamedValue[string](injector, "distribution", os.Getenv("DISTRIBUTION"))
	do.ProvideNamedValue[string](injector, "sweep_prefix", os.Getenv("SWEEP_PREFIX"))
	do.ProvideNamed[int](injector, "part_size", func(i *do.Injector) (int, error) {
		mb, err := envInt("PART_SIZE_MB", upload.MinPartSize>>20)
		return mb << 20, err
	})
	do.ProvideNamed[int](injector, "part_concurrency", func(i *do.Injector) (int, error) {
		return envInt("PART_CONCURRENCY", upload.DefaultConcurrency)
	})
	do.ProvideNamed[uint](injector, "part_retries", func(i *do.Injector) (uint, error) {
		n, err := envInt("PART_RETRIES", upload.DefaultRetries)
		if n < 0 {
			return 0, fmt.Errorf("PART_RETRIES must not be negative, got %d", n)
		}
		return uint(n), err
	})
	do.ProvideNamed[time.Duration](injector, "abort_timeout", func(i *do.Injector) (time.Duration, error) {
		return envDuration("ABORT_TIMEOUT", upload.DefaultAbortTimeout)
	})
	do.ProvideNamed[time.Duration](injector, "sweep_older_than", func(i *do.Injector) (time.Duration, error) {
		return envDuration("SWEEP_OLDER_THAN", 24*time.Hour)
	})

	do.Provide[*handler.Handler](injector, handler.NewHandler)
	do.Provide[*handler.SweepHandler](injector, handler.NewSweepHandler)

	return injector
}

func clientConfig(ctx context.Context, i *do.Injector) (store.ClientConfig, error) {
	c := store.ClientConfig{
		Endpoint: os.Getenv("S3_ENDPOINT"),
		Region:   os.Getenv("S3_REGION"),
	}
	if v := os.Getenv("S3_FORCE_PATH_STYLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c, fmt.Errorf("S3_FORCE_PATH_STYLE: %w", err)
		}
		c.ForcePathStyle = b
	}

	idLiteral, idPath := os.Getenv("S3_ACCESS_KEY_ID"), os.Getenv("S3_ACCESS_KEY_ID_PARAM")
	secretLiteral, secretPath := os.Getenv("S3_SECRET_ACCESS_KEY"), os.Getenv("S3_SECRET_ACCESS_KEY_PARAM")
	if idPath == "" && secretPath == "" {
		c.AccessKeyID, c.SecretAccessKey = idLiteral, secretLiteral
		return c, c.Validate()
	}

	fetcher := do.MustInvoke[param.Fetcher](i)
	var err error
	if c.AccessKeyID, err = param.Resolve(ctx, fetcher, idLiteral, idPath); err != nil {
		return c, err
	}
	if c.SecretAccessKey, err = param.Resolve(ctx, fetcher, secretLiteral, secretPath); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func envInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

func envDuration(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}

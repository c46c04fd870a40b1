package inject

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmorgan81/multipartupload/internal/handler"
	"github.com/dmorgan81/multipartupload/internal/param"
	"github.com/dmorgan81/multipartupload/internal/store"
	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticFetcher map[string]string

func (s staticFetcher) Fetch(_ context.Context, path string) (string, error) {
	v, ok := s[path]
	if !ok {
		return "", errors.New("parameter not found: " + path)
	}
	return v, nil
}

func TestSetupDefaults(t *testing.T) {
	for _, name := range []string{"PART_SIZE_MB", "PART_CONCURRENCY", "PART_RETRIES", "ABORT_TIMEOUT", "SWEEP_OLDER_THAN", "DISTRIBUTION"} {
		t.Setenv(name, "")
	}
	injector := Setup(context.Background())

	assert.Equal(t, 5<<20, do.MustInvokeNamed[int](injector, "part_size"))
	assert.Equal(t, 4, do.MustInvokeNamed[int](injector, "part_concurrency"))
	assert.Equal(t, uint(2), do.MustInvokeNamed[uint](injector, "part_retries"))
	assert.Equal(t, 30*time.Second, do.MustInvokeNamed[time.Duration](injector, "abort_timeout"))
	assert.Equal(t, 24*time.Hour, do.MustInvokeNamed[time.Duration](injector, "sweep_older_than"))
	assert.IsType(t, store.NopInvalidator{}, do.MustInvoke[store.Invalidator](injector))
}

func TestSetupFromEnv(t *testing.T) {
	t.Setenv("BUCKET", "node-bucket")
	t.Setenv("KEY", "node-key")
	t.Setenv("PART_SIZE_MB", "16")
	t.Setenv("PART_CONCURRENCY", "8")
	t.Setenv("PART_RETRIES", "0")
	t.Setenv("ABORT_TIMEOUT", "5s")
	t.Setenv("SWEEP_OLDER_THAN", "2h")
	injector := Setup(context.Background())

	assert.Equal(t, "node-bucket", do.MustInvokeNamed[string](injector, "bucket"))
	assert.Equal(t, "node-key", do.MustInvokeNamed[string](injector, "key"))
	assert.Equal(t, 16<<20, do.MustInvokeNamed[int](injector, "part_size"))
	assert.Equal(t, 8, do.MustInvokeNamed[int](injector, "part_concurrency"))
	assert.Equal(t, uint(0), do.MustInvokeNamed[uint](injector, "part_retries"))
	assert.Equal(t, 5*time.Second, do.MustInvokeNamed[time.Duration](injector, "abort_timeout"))
	assert.Equal(t, 2*time.Hour, do.MustInvokeNamed[time.Duration](injector, "sweep_older_than"))
}

func TestSetupRejectsBadEnv(t *testing.T) {
	t.Setenv("PART_CONCURRENCY", "many")
	t.Setenv("PART_RETRIES", "-1")
	t.Setenv("ABORT_TIMEOUT", "soon")
	injector := Setup(context.Background())

	_, err := do.InvokeNamed[int](injector, "part_concurrency")
	assert.ErrorContains(t, err, "PART_CONCURRENCY")
	_, err = do.InvokeNamed[uint](injector, "part_retries")
	assert.ErrorContains(t, err, "PART_RETRIES")
	_, err = do.InvokeNamed[time.Duration](injector, "abort_timeout")
	assert.ErrorContains(t, err, "ABORT_TIMEOUT")
}

func TestClientConfigLiteral(t *testing.T) {
	t.Setenv("S3_ENDPOINT", "http://minio:9000")
	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("S3_FORCE_PATH_STYLE", "true")
	t.Setenv("S3_ACCESS_KEY_ID", "id")
	t.Setenv("S3_SECRET_ACCESS_KEY", "secret")
	t.Setenv("S3_ACCESS_KEY_ID_PARAM", "")
	t.Setenv("S3_SECRET_ACCESS_KEY_PARAM", "")
	injector := Setup(context.Background())

	c := do.MustInvoke[store.ClientConfig](injector)
	assert.Equal(t, store.ClientConfig{
		Endpoint:        "http://minio:9000",
		Region:          "us-east-1",
		ForcePathStyle:  true,
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
	}, c)

	opts := do.MustInvoke[*s3.Client](injector).Options()
	assert.True(t, opts.UsePathStyle)
	assert.Equal(t, "http://minio:9000", aws.ToString(opts.BaseEndpoint))
}

func TestClientConfigFromParameterStore(t *testing.T) {
	t.Setenv("S3_ACCESS_KEY_ID", "")
	t.Setenv("S3_SECRET_ACCESS_KEY", "")
	t.Setenv("S3_ACCESS_KEY_ID_PARAM", "/s3/id")
	t.Setenv("S3_SECRET_ACCESS_KEY_PARAM", "/s3/secret")
	injector := Setup(context.Background())
	do.OverrideValue[param.Fetcher](injector, staticFetcher{"/s3/id": "ssm-id", "/s3/secret": "ssm-secret"})

	c := do.MustInvoke[store.ClientConfig](injector)
	assert.Equal(t, "ssm-id", c.AccessKeyID)
	assert.Equal(t, "ssm-secret", c.SecretAccessKey)
}

func TestClientConfigErrors(t *testing.T) {
	t.Setenv("S3_FORCE_PATH_STYLE", "sometimes")
	_, err := do.Invoke[store.ClientConfig](Setup(context.Background()))
	assert.ErrorContains(t, err, "S3_FORCE_PATH_STYLE")

	t.Setenv("S3_FORCE_PATH_STYLE", "")
	t.Setenv("S3_ACCESS_KEY_ID", "id")
	t.Setenv("S3_SECRET_ACCESS_KEY", "")
	t.Setenv("S3_ACCESS_KEY_ID_PARAM", "")
	t.Setenv("S3_SECRET_ACCESS_KEY_PARAM", "")
	_, err = do.Invoke[store.ClientConfig](Setup(context.Background()))
	assert.ErrorIs(t, err, store.ErrBadCreds)
}

func TestSetupResolvesHandlers(t *testing.T) {
	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("S3_ACCESS_KEY_ID", "id")
	t.Setenv("S3_SECRET_ACCESS_KEY", "secret")
	t.Setenv("S3_ACCESS_KEY_ID_PARAM", "")
	t.Setenv("S3_SECRET_ACCESS_KEY_PARAM", "")
	t.Setenv("DISTRIBUTION", "")
	injector := Setup(context.Background())

	_, err := do.Invoke[*handler.Handler](injector)
	require.NoError(t, err)
	_, err = do.Invoke[*handler.SweepHandler](injector)
	require.NoError(t, err)
}

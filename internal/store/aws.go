package store

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmorgan81/multipartupload/internal/log"
	"github.com/samber/do"
	"github.com/samber/lo"
)

// ClientConfig describes how to reach an S3-compatible provider.
// Empty fields fall back to the SDK's default resolution chain.
type ClientConfig struct {
	Endpoint        string
	Region          string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
}

func (c ClientConfig) Validate() error {
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return ErrBadCreds
	}
	return nil
}

// LoadConfig resolves an aws.Config, pinning region and static credentials
// when the descriptor carries them.
func LoadConfig(ctx context.Context, c ClientConfig) (aws.Config, error) {
	if err := c.Validate(); err != nil {
		return aws.Config{}, err
	}

	var opts []func(*config.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, config.WithRegion(c.Region))
	}
	if c.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, ""),
		)))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

func NewS3Client(cfg aws.Config, c ClientConfig) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
		o.UsePathStyle = c.ForcePathStyle
	})
}

// S3API is the subset of *s3.Client used for multipart uploads.
type S3API interface {
	CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	ListMultipartUploads(context.Context, *s3.ListMultipartUploadsInput, ...func(*s3.Options)) (*s3.ListMultipartUploadsOutput, error)
}

type S3MultipartStore struct {
	Client S3API
}

func NewS3MultipartStore(i *do.Injector) (*S3MultipartStore, error) {
	return &S3MultipartStore{Client: do.MustInvoke[*s3.Client](i)}, nil
}

func (s *S3MultipartStore) CreateSession(ctx context.Context, bucket, key string) (string, error) {
	log.FromContextOrDiscard(ctx).Debug("creating multipart upload", "bucket", bucket, "key", key)

	out, err := s.Client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", &Error{Op: "CreateMultipartUpload", Bucket: bucket, Key: key, Err: err}
	}
	id := aws.ToString(out.UploadId)
	if id == "" {
		return "", &Error{Op: "CreateMultipartUpload", Bucket: bucket, Key: key, Err: ErrNoUploadID}
	}
	return id, nil
}

func (s *S3MultipartStore) UploadPart(ctx context.Context, bucket, key, uploadID string, number int32, data []byte) (string, error) {
	log.FromContextOrDiscard(ctx).Debug("uploading part", "bucket", bucket, "key", key, "part", number, "size", len(data))

	out, err := s.Client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(number),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", &Error{Op: "UploadPart", Bucket: bucket, Key: key, UploadID: uploadID, Err: err}
	}
	etag := aws.ToString(out.ETag)
	if etag == "" {
		return "", &Error{Op: "UploadPart", Bucket: bucket, Key: key, UploadID: uploadID, Err: ErrNoETag}
	}
	return etag, nil
}

func (s *S3MultipartStore) CompleteSession(ctx context.Context, bucket, key, uploadID string, parts []Part) (Completion, error) {
	log.FromContextOrDiscard(ctx).Debug("completing multipart upload", "bucket", bucket, "key", key, "parts", len(parts))

	out, err := s.Client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &s3types.CompletedMultipartUpload{
			Parts: lo.Map(parts, func(p Part, _ int) s3types.CompletedPart {
				return s3types.CompletedPart{
					ETag:       aws.String(p.ETag),
					PartNumber: aws.Int32(p.Number),
				}
			}),
		},
	})
	if err != nil {
		return Completion{}, &Error{Op: "CompleteMultipartUpload", Bucket: bucket, Key: key, UploadID: uploadID, Err: err}
	}
	return Completion{
		Location:  aws.ToString(out.Location),
		Bucket:    lo.Ternary(aws.ToString(out.Bucket) != "", aws.ToString(out.Bucket), bucket),
		Key:       lo.Ternary(aws.ToString(out.Key) != "", aws.ToString(out.Key), key),
		ETag:      aws.ToString(out.ETag),
		VersionID: aws.ToString(out.VersionId),
	}, nil
}

// AbortSession releases a session. A session the provider no longer knows
// about counts as aborted.
func (s *S3MultipartStore) AbortSession(ctx context.Context, bucket, key, uploadID string) error {
	logger := log.FromContextOrDiscard(ctx)
	logger.Debug("aborting multipart upload", "bucket", bucket, "key", key, "uploadId", uploadID)

	_, err := s.Client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if isNoSuchUpload(err) {
		logger.Warn("multipart upload already gone", "uploadId", uploadID)
		return nil
	}
	if err != nil {
		return &Error{Op: "AbortMultipartUpload", Bucket: bucket, Key: key, UploadID: uploadID, Err: err}
	}
	return nil
}

func (s *S3MultipartStore) ListSessions(ctx context.Context, bucket, prefix string) ([]Session, error) {
	var (
		sessions                     []Session
		prefixP, keyMarker, idMarker *string
	)
	if prefix != "" {
		prefixP = aws.String(prefix)
	}
	for {
		out, err := s.Client.ListMultipartUploads(ctx, &s3.ListMultipartUploadsInput{
			Bucket:         aws.String(bucket),
			Prefix:         prefixP,
			KeyMarker:      keyMarker,
			UploadIdMarker: idMarker,
		})
		if err != nil {
			return nil, &Error{Op: "ListMultipartUploads", Bucket: bucket, Err: err}
		}

		sessions = append(sessions, lo.Map(out.Uploads, func(u s3types.MultipartUpload, _ int) Session {
			return Session{
				Key:       aws.ToString(u.Key),
				UploadID:  aws.ToString(u.UploadId),
				Initiated: aws.ToTime(u.Initiated),
			}
		})...)

		if !aws.ToBool(out.IsTruncated) {
			return sessions, nil
		}
		keyMarker, idMarker = out.NextKeyMarker, out.NextUploadIdMarker
	}
}

func isNoSuchUpload(err error) bool {
	if err == nil {
		return false
	}
	var nsu *s3types.NoSuchUpload
	if errors.As(err, &nsu) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchUpload"
}

type CloudFrontInvalidator struct {
	Client       *cloudfront.Client
	Distribution string
}

func NewCloudFrontInvalidator(i *do.Injector) (Invalidator, error) {
	distribution := do.MustInvokeNamed[string](i, "distribution")
	if distribution == "" {
		return NopInvalidator{}, nil
	}
	return &CloudFrontInvalidator{
		Client:       do.MustInvoke[*cloudfront.Client](i),
		Distribution: distribution,
	}, nil
}

func (i *CloudFrontInvalidator) Invalidate(ctx context.Context, paths []string) error {
	log := log.FromContextOrDiscard(ctx).With("paths", paths, "distribution", i.Distribution)
	log.Info("invalidating paths in cloudfront")

	_, err := i.Client.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(i.Distribution),
		InvalidationBatch: &cftypes.InvalidationBatch{
			CallerReference: aws.String(time.Now().UTC().Format("20060102150405.000000000")),
			Paths: &cftypes.Paths{
				Quantity: aws.Int32(int32(len(paths))),
				Items:    paths,
			},
		},
	})
	return err
}

// ObjectPath is the CDN path serving an object key.
func ObjectPath(key string) string {
	return "/" + strings.TrimPrefix(key, "/")
}

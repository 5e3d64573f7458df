package delivery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/piwi3910/WaybillPack/internal/model"
	"go.uber.org/zap"
)

const (
	defaultPresignExpiration = 24 * time.Hour
	pdfContentType           = "application/pdf"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type objectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Deliverer uploads artifacts to an S3-compatible bucket and returns a
// presigned download link.
type S3Deliverer struct {
	client            objectPutter
	presigner         objectPresigner
	bucket            string
	prefix            string
	presignExpiration time.Duration
	logger            *zap.Logger
}

// S3Option configures an S3Deliverer.
type S3Option func(*S3Deliverer)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) S3Option {
	return func(d *S3Deliverer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithPresignExpiration overrides how long download links stay valid.
func WithPresignExpiration(ttl time.Duration) S3Option {
	return func(d *S3Deliverer) {
		if ttl > 0 {
			d.presignExpiration = ttl
		}
	}
}

// NewS3Deliverer builds a deliverer from storage configuration. Static
// credentials are used when both keys are set; otherwise the default AWS
// credential chain applies.
func NewS3Deliverer(ctx context.Context, cfg model.StorageConfig, opts ...S3Option) (*S3Deliverer, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	opts = append([]S3Option{WithPresignExpiration(cfg.PresignExpiration)}, opts...)
	return newS3Deliverer(client, s3.NewPresignClient(client), cfg.Bucket, cfg.Prefix, opts...), nil
}

func newS3Deliverer(client objectPutter, presigner objectPresigner, bucket, prefix string, opts ...S3Option) *S3Deliverer {
	d := &S3Deliverer{
		client:            client,
		presigner:         presigner,
		bucket:            bucket,
		prefix:            strings.Trim(prefix, "/"),
		presignExpiration: defaultPresignExpiration,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named("delivery")
	return d
}

// Key returns the object key for an artifact: <prefix>/<batch>/<name>.
func (d *S3Deliverer) Key(a Artifact) string {
	batch := "batch"
	if a.Result != nil && a.Result.ID != "" {
		batch = a.Result.ID
	}
	return path.Join(d.prefix, batch, a.Name)
}

func (d *S3Deliverer) Deliver(ctx context.Context, a Artifact) (Receipt, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to stat artifact: %w", err)
	}

	key := d.Key(a)
	_, err = d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(d.bucket),
		Key:                aws.String(key),
		Body:               f,
		ContentLength:      aws.Int64(info.Size()),
		ContentType:        aws.String(pdfContentType),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", a.Name)),
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	presigned, err := d.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(d.presignExpiration))
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to presign %s: %w", key, err)
	}

	d.logger.Info("Artifact uploaded",
		zap.String("bucket", d.bucket),
		zap.String("key", key),
		zap.Int64("size", info.Size()),
	)

	return Receipt{
		Location:  fmt.Sprintf("s3://%s/%s", d.bucket, key),
		URL:       presigned.URL,
		Size:      info.Size(),
		Caption:   Caption(a.Result),
		ExpiresAt: time.Now().Add(d.presignExpiration),
	}, nil
}

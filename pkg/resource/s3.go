package resource

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ajitpratap0/csvload/pkg/config"
	"github.com/ajitpratap0/csvload/pkg/errors"
)

// s3Fetcher opens s3://bucket/key locations. The client is created on first use
// with credentials from the default AWS chain.
type s3Fetcher struct {
	cfg config.S3Config

	once      sync.Once
	client    *s3.Client
	clientErr error
}

func newS3Fetcher(cfg config.S3Config) *s3Fetcher {
	return &s3Fetcher{cfg: cfg}
}

func (f *s3Fetcher) Class() Class {
	return ClassNetwork
}

func (f *s3Fetcher) s3Client(ctx context.Context) (*s3.Client, error) {
	f.once.Do(func() {
		var opts []func(*awsconfig.LoadOptions) error
		if f.cfg.Region != "" {
			opts = append(opts, awsconfig.WithRegion(f.cfg.Region))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			f.clientErr = errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
			return
		}

		f.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if f.cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(f.cfg.Endpoint)
			}
			o.UsePathStyle = f.cfg.UsePathStyle
		})
	})
	return f.client, f.clientErr
}

func (f *s3Fetcher) Fetch(ctx context.Context, loc *Location, _ map[string]string) (*Resource, error) {
	bucket, key, err := bucketAndKey(loc)
	if err != nil {
		return nil, err
	}

	client, err := f.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		var noBucket *types.NoSuchBucket
		if stderrors.As(err, &noKey) || stderrors.As(err, &noBucket) {
			return nil, errors.Wrap(err, errors.ErrorTypeNotFound, "object not found").WithDetail("location", loc.Raw)
		}
		return nil, classifyNetError(err, loc.Raw)
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return NewResource(out.Body, key, aws.ToString(out.ContentType), size), nil
}

// bucketAndKey splits s3:// and gs:// locations
func bucketAndKey(loc *Location) (string, string, error) {
	bucket := loc.URL.Host
	key := strings.TrimPrefix(loc.URL.Path, "/")
	if bucket == "" || key == "" {
		return "", "", errors.Newf(errors.ErrorTypeConfig, "%s location must name a bucket and an object", loc.Scheme).
			WithDetail("location", loc.Raw)
	}
	return bucket, key, nil
}

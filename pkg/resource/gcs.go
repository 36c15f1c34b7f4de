package resource

import (
	"context"
	stderrors "errors"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/csvload/pkg/config"
	"github.com/ajitpratap0/csvload/pkg/errors"
)

// gcsFetcher opens gs://bucket/object locations
type gcsFetcher struct {
	cfg config.GCSConfig

	mu     sync.Mutex
	client *storage.Client
}

func newGCSFetcher(cfg config.GCSConfig) *gcsFetcher {
	return &gcsFetcher{cfg: cfg}
}

func (f *gcsFetcher) Class() Class {
	return ClassNetwork
}

func (f *gcsFetcher) gcsClient(ctx context.Context) (*storage.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.client != nil {
		return f.client, nil
	}

	var opts []option.ClientOption
	if f.cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(f.cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create GCS client")
	}
	f.client = client
	return client, nil
}

func (f *gcsFetcher) Fetch(ctx context.Context, loc *Location, _ map[string]string) (*Resource, error) {
	bucket, object, err := bucketAndKey(loc)
	if err != nil {
		return nil, err
	}

	client, err := f.gcsClient(ctx)
	if err != nil {
		return nil, err
	}

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if stderrors.Is(err, storage.ErrObjectNotExist) || stderrors.Is(err, storage.ErrBucketNotExist) {
			return nil, errors.Wrap(err, errors.ErrorTypeNotFound, "object not found").WithDetail("location", loc.Raw)
		}
		return nil, classifyNetError(err, loc.Raw)
	}

	return NewResource(r, object, r.Attrs.ContentType, r.Attrs.Size), nil
}

// Close releases the GCS client
func (f *gcsFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.client == nil {
		return nil
	}
	err := f.client.Close()
	f.client = nil
	return err
}

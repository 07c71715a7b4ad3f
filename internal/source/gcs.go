package source

import (
	"context"
	"fmt"
	"io"
	"sort"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSOpener streams one object's body from Google Cloud Storage.
type GCSOpener struct {
	client *storage.Client
	Bucket string
	Object string
}

func (o GCSOpener) Open(ctx context.Context) (io.ReadCloser, error) {
	r, err := o.client.Bucket(o.Bucket).Object(o.Object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gs read gs://%s/%s: %w", o.Bucket, o.Object, err)
	}
	return r, nil
}

func (o GCSOpener) Name() string {
	return fmt.Sprintf("gs://%s/%s", o.Bucket, o.Object)
}

// GCSBackend lists objects under a bucket/prefix.
type GCSBackend struct {
	newClient func(ctx context.Context) (*storage.Client, error)
}

func defaultGCSClient(ctx context.Context) (*storage.Client, error) {
	return storage.NewClient(ctx)
}

func (b GCSBackend) List(ctx context.Context, uri string) ([]Opener, error) {
	bucket, prefix, err := ParseObjectURI(uri)
	if err != nil {
		return nil, err
	}

	newClient := b.newClient
	if newClient == nil {
		newClient = defaultGCSClient
	}
	client, err := newClient(ctx)
	if err != nil {
		return nil, err
	}

	var names []string
	it := client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", bucket, prefix, err)
		}
		names = append(names, attrs.Name)
	}

	sort.Strings(names)
	openers := make([]Opener, len(names))
	for i, n := range names {
		openers[i] = GCSOpener{client: client, Bucket: bucket, Object: n}
	}
	return openers, nil
}

func init() {
	Register("gs", func() Backend { return GCSBackend{} })
}

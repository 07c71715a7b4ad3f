package source

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Opener streams one object's body. Unlike the local backend, Open
// issues a network GetObject call, so the returned ReadCloser's lifetime
// is tied to the HTTP response.
type S3Opener struct {
	client *s3.Client
	Bucket string
	Key    string
}

func (o S3Opener) Open(ctx context.Context) (io.ReadCloser, error) {
	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.Bucket),
		Key:    aws.String(o.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 GetObject s3://%s/%s: %w", o.Bucket, o.Key, err)
	}
	return out.Body, nil
}

func (o S3Opener) Name() string {
	return fmt.Sprintf("s3://%s/%s", o.Bucket, o.Key)
}

// S3Backend lists objects under a bucket/prefix via ListObjectsV2.
type S3Backend struct {
	// newClient is overridable in tests.
	newClient func(ctx context.Context) (*s3.Client, error)
}

func defaultS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

func (b S3Backend) List(ctx context.Context, uri string) ([]Opener, error) {
	bucket, prefix, err := ParseObjectURI(uri)
	if err != nil {
		return nil, err
	}

	newClient := b.newClient
	if newClient == nil {
		newClient = defaultS3Client
	}
	client, err := newClient(ctx)
	if err != nil {
		return nil, err
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			// Skip "directory marker" keys (zero-byte objects ending in /).
			if len(*obj.Key) > 0 && (*obj.Key)[len(*obj.Key)-1] == '/' {
				continue
			}
			keys = append(keys, *obj.Key)
		}
	}

	sort.Strings(keys)
	openers := make([]Opener, len(keys))
	for i, k := range keys {
		openers[i] = S3Opener{client: client, Bucket: bucket, Key: k}
	}
	return openers, nil
}

func init() {
	Register("s3", func() Backend { return S3Backend{} })
}

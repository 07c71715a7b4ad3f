package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureOpener streams one blob's body from Azure Blob Storage.
type AzureOpener struct {
	containerURL azblob.ContainerURL
	Container    string
	Blob         string
}

func (o AzureOpener) Open(ctx context.Context) (io.ReadCloser, error) {
	blobURL := o.containerURL.NewBlobURL(o.Blob)
	resp, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return nil, fmt.Errorf("az download az://%s/%s: %w", o.Container, o.Blob, err)
	}
	return resp.Body(azblob.RetryReaderOptions{}), nil
}

func (o AzureOpener) Name() string {
	return fmt.Sprintf("az://%s/%s", o.Container, o.Blob)
}

// AzureBackend lists blobs under a container/prefix. Authentication is
// read from AZURE_STORAGE_ACCOUNT / AZURE_STORAGE_ACCESS_KEY, matching
// the account-key credential model the azblob SDK expects.
type AzureBackend struct{}

func (AzureBackend) List(ctx context.Context, uri string) ([]Opener, error) {
	container, prefix, err := ParseObjectURI(uri)
	if err != nil {
		return nil, err
	}

	account := os.Getenv("AZURE_STORAGE_ACCOUNT")
	key := os.Getenv("AZURE_STORAGE_ACCESS_KEY")
	if account == "" || key == "" {
		return nil, fmt.Errorf("az source requires AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_ACCESS_KEY")
	}
	credential, err := azblob.NewSharedKeyCredential(account, key)
	if err != nil {
		return nil, fmt.Errorf("az credential: %w", err)
	}
	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	containerURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net/%s", account, container))
	if err != nil {
		return nil, fmt.Errorf("az container URL: %w", err)
	}
	cURL := azblob.NewContainerURL(*containerURL, pipeline)

	var names []string
	for marker := (azblob.Marker{}); marker.NotDone(); {
		listResp, err := cURL.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{Prefix: prefix})
		if err != nil {
			return nil, fmt.Errorf("list az://%s/%s: %w", container, prefix, err)
		}
		for _, b := range listResp.Segment.BlobItems {
			names = append(names, b.Name)
		}
		marker = listResp.NextMarker
	}

	sort.Strings(names)
	openers := make([]Opener, len(names))
	for i, n := range names {
		openers[i] = AzureOpener{containerURL: cURL, Container: container, Blob: n}
	}
	return openers, nil
}

func init() {
	Register("az", func() Backend { return AzureBackend{} })
}

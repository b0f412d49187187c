package archive

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// azureSink uploads archives to an Azure Blob Storage container. The
// connection string comes from AZURE_STORAGE_CONNECTION_STRING.
type azureSink struct {
	client    *azblob.Client
	container string
	prefix    string
}

func newAzureSink(container, prefix string) (*azureSink, error) {
	if container == "" {
		return nil, fmt.Errorf("archive: azblob URL has no container")
	}
	connStr := os.Getenv("AZURE_STORAGE_CONNECTION_STRING")
	if connStr == "" {
		return nil, fmt.Errorf("archive: AZURE_STORAGE_CONNECTION_STRING not set")
	}
	client, err := azblob.NewClientFromConnectionString(connStr, nil)
	if err != nil {
		return nil, fmt.Errorf("archive: azure client: %w", err)
	}
	return &azureSink{client: client, container: container, prefix: prefix}, nil
}

func (s *azureSink) Store(ctx context.Context, name string, r io.Reader) error {
	_, err := s.client.UploadStream(ctx, s.container, objectKey(s.prefix, name), r, nil)
	return err
}

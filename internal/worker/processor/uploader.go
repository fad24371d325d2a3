package processor

import (
	"bytes"
	"context"
	"fmt"

	"forge/internal/ports"
)

// StorageUploader adapts a ports.StorageProvider to the orchestrator's
// Uploader contract. The returned URL is the API content route for the
// stored object; gdrive rewrites the object key to its file id, which the
// route resolves transparently.
type StorageUploader struct {
	sp      ports.StorageProvider
	baseURL string
}

func NewStorageUploader(sp ports.StorageProvider, baseURL string) *StorageUploader {
	return &StorageUploader{sp: sp, baseURL: baseURL}
}

func (u *StorageUploader) Upload(ctx context.Context, data []byte, key, contentType string) (string, error) {
	out, err := u.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   key,
		ContentType: contentType,
		Reader:      bytes.NewReader(data),
		Size:        int64(len(data)),
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/outputs/%s", u.baseURL, out.ObjectKey), nil
}

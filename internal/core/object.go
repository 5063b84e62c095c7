package core

import "context"

// ObjectClient stages uploaded export files in object storage between
// the HTTP upload and ingestion.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	GetFile(ctx context.Context, key string) ([]byte, error)
	DeleteFile(ctx context.Context, key string) error
}

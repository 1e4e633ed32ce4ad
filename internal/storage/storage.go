package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("объект не найден")

type Object struct {
	Key         string
	Size        int64
	ContentType string
	Hash        string
}

// Blobs - объектное хранилище раздела файлов.
type Blobs interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (*Object, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// ObjectKey строит "<owner>/<folder|root>/<uuid>-<name>".
func ObjectKey(ownerID string, folderID *string, name string) string {
	folder := "root"
	if folderID != nil && *folderID != "" {
		folder = *folderID
	}
	clean := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if clean == "." || clean == "/" {
		clean = "file"
	}
	return fmt.Sprintf("%s/%s/%s-%s", ownerID, folder, uuid.NewString(), clean)
}

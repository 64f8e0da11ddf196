package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

// UploadOptions place an object. Folder and PublicID form the key; the
// extension comes from ContentType.
type UploadOptions struct {
	Folder       string
	PublicID     string
	ResourceType string
	ContentType  string
}

// Object is a stored file as callers see it.
type Object struct {
	URL string
	ID  string
}

// Store is the archival target for generated media.
type Store interface {
	Upload(ctx context.Context, data []byte, opts UploadOptions) (Object, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, id string) error
}

// ObjectKey builds the storage key for opts.
func ObjectKey(opts UploadOptions) (string, error) {
	id := strings.TrimSpace(opts.PublicID)
	if id == "" {
		return "", errors.New("storage: public id is required")
	}
	key := path.Join(strings.TrimSpace(opts.Folder), id)
	if path.Ext(key) == "" {
		key += extensionFor(opts.ContentType, opts.ResourceType)
	}
	return sanitizeKey(key)
}

func extensionFor(contentType, resourceType string) string {
	mime := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	}
	switch strings.ToLower(resourceType) {
	case "video":
		return ".mp4"
	case "image":
		return ".png"
	}
	return ".bin"
}

package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
)

const photoPrefix = "posts"

// PutPhoto stores a photo for a post under a fresh key and returns the key.
// Keys are never reused so a replaced photo can be removed independently.
func (s *Storage) PutPhoto(ctx context.Context, postID, filename, contentType string, r io.Reader, size int64) (string, error) {
	key := PhotoKey(postID, filename, contentType)
	if err := s.backend.Put(ctx, key, r, size, contentType); err != nil {
		return "", err
	}
	return key, nil
}

// PhotoKey builds posts/<postID>/<uuid><ext>. The extension comes from the
// upload's file name when it is a known type, else from the content type.
func PhotoKey(postID, filename, contentType string) string {
	return fmt.Sprintf("%s/%s/%s%s", photoPrefix, postID, uuid.NewString(), photoExt(filename, contentType))
}

// PhotoContentType is the content type served for a stored photo.
func PhotoContentType(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func photoExt(filename, contentType string) string {
	if ext := strings.ToLower(path.Ext(filename)); ext != "" && mime.TypeByExtension(ext) != "" {
		return ext
	}
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

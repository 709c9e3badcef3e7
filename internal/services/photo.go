package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/foodshare/apiserver/internal/storage"
	"github.com/foodshare/apiserver/types"
	"go.uber.org/zap"
)

// MaxPhotoBytes caps the size of an uploaded post photo.
const MaxPhotoBytes = 5 << 20

// PhotoStorage is the subset of object storage used for post photos.
type PhotoStorage interface {
	PutPhoto(ctx context.Context, postID, filename, contentType string, r io.Reader, size int64) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// PhotoUpload is an image sent by a canteen for one of its posts.
type PhotoUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// PhotosEnabled reports whether photo storage is configured.
func (s *PostService) PhotosEnabled() bool {
	return s.photos != nil
}

// AttachPhoto stores a photo for an open post owned by the calling canteen,
// replacing any previous photo.
func (s *PostService) AttachPhoto(ctx context.Context, principal types.Principal, postID string, upload PhotoUpload) (types.Post, error) {
	if s.photos == nil {
		return types.Post{}, ErrPhotosDisabled
	}
	post, err := s.ownedPost(ctx, principal, postID, "attach photo")
	if err != nil {
		return types.Post{}, err
	}
	if post.Status != types.PostStatusOpen {
		return types.Post{}, ErrNotFound
	}

	contentType := strings.ToLower(strings.TrimSpace(upload.ContentType))
	if !strings.HasPrefix(contentType, "image/") {
		return types.Post{}, invalid("photo must be an image", "photo")
	}
	if upload.Size <= 0 || upload.Size > MaxPhotoBytes {
		return types.Post{}, invalid(fmt.Sprintf("photo must be between 1 byte and %d bytes", MaxPhotoBytes), "photo")
	}

	key, err := s.photos.PutPhoto(ctx, postID, upload.Filename, contentType, upload.Body, upload.Size)
	if err != nil {
		return types.Post{}, fmt.Errorf("store photo: %w", err)
	}

	updated, err := s.repo.SetPhoto(ctx, postID, key)
	if err != nil {
		s.removePhoto(ctx, postID, key)
		return types.Post{}, translate(err, "attach photo")
	}
	if post.PhotoKey != "" && post.PhotoKey != key {
		s.removePhoto(ctx, postID, post.PhotoKey)
	}
	s.publish(ctx, types.PostEventPhotoAttached, updated.ID, &updated)
	return updated, nil
}

// OpenPhoto returns a reader over the photo of a post and its content type.
// The caller closes the reader.
func (s *PostService) OpenPhoto(ctx context.Context, postID string) (io.ReadCloser, string, error) {
	if s.photos == nil {
		return nil, "", ErrPhotosDisabled
	}
	post, err := s.repo.Get(ctx, postID)
	if err != nil {
		return nil, "", translate(err, "open photo")
	}
	if post.PhotoKey == "" {
		return nil, "", ErrNotFound
	}
	rc, err := s.photos.Get(ctx, post.PhotoKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("open photo: %w", err)
	}
	return rc, storage.PhotoContentType(post.PhotoKey), nil
}

func (s *PostService) removePhoto(ctx context.Context, postID, key string) {
	if err := s.photos.Delete(ctx, key); err != nil {
		s.log.Warn("failed to remove photo",
			zap.String("post_id", postID), zap.String("key", key), zap.Error(err))
	}
}

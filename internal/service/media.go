package service

import (
	"context"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// MediaStorage is the opaque blob store for item photos. Failures degrade
// gracefully: records persist without an image.
type MediaStorage interface {
	Put(ctx context.Context, image string) (url string, err error)
	Delete(ctx context.Context, publicID string) (bool, error)
}

// CloudinaryStorage stores photos in Cloudinary.
type CloudinaryStorage struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewCloudinaryStorage creates a new Cloudinary-backed media store
func NewCloudinaryStorage(cloudinaryURL, folder string) (*CloudinaryStorage, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to init cloudinary: %w", err)
	}
	return &CloudinaryStorage{cld: cld, folder: folder}, nil
}

// Put uploads an image (base64 data URI or remote URL) and returns its
// public URL.
func (s *CloudinaryStorage) Put(ctx context.Context, image string) (string, error) {
	resp, err := s.cld.Upload.Upload(ctx, image, uploader.UploadParams{
		Folder: s.folder,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	return resp.SecureURL, nil
}

// Delete removes an uploaded image by public ID.
func (s *CloudinaryStorage) Delete(ctx context.Context, publicID string) (bool, error) {
	resp, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return false, fmt.Errorf("failed to delete image: %w", err)
	}
	return resp.Result == "ok", nil
}

package product

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/eyewear-store/internal/storage"
)

// Image is an upload request for a product picture.
type Image struct {
	Body        io.Reader
	Size        int64
	ContentType string
	Filename    string
}

// Service implements catalog administration on top of a Repository and an
// optional object store for images.
type Service struct {
	repo   Repository
	images storage.Storage
	now    func() time.Time
}

// NewService creates a catalog Service. images may be nil, in which case
// image operations return ErrStorageDisabled.
func NewService(repo Repository, images storage.Storage) *Service {
	return &Service{repo: repo, images: images, now: time.Now}
}

// Get returns a single product.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns a page of products and the total match count.
func (s *Service) List(ctx context.Context, f Filter) ([]Product, int, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.List(ctx, f)
}

// Create validates p, assigns an id and timestamps, and stores it.
func (s *Service) Create(ctx context.Context, p *Product) error {
	p.SKU = strings.TrimSpace(p.SKU)
	if err := p.Validate(); err != nil {
		return err
	}
	now := s.now().UTC()
	p.ID = uuid.New().String()
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := s.repo.Create(ctx, p); err != nil {
		return errors.Wrap(err, "create product")
	}
	return nil
}

// Update replaces the editable fields of an existing product. The image key
// and creation time are preserved.
func (s *Service) Update(ctx context.Context, p *Product) error {
	p.SKU = strings.TrimSpace(p.SKU)
	if err := p.Validate(); err != nil {
		return err
	}
	existing, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	p.ImageKey = existing.ImageKey
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, p); err != nil {
		return errors.Wrap(err, "update product")
	}
	return nil
}

// Delete removes the product and, best effort, its image.
func (s *Service) Delete(ctx context.Context, id string) error {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete product")
	}
	if existing.ImageKey != "" && s.images != nil {
		if err := s.images.Delete(ctx, existing.ImageKey); err != nil {
			zctx.From(ctx).Warn("Orphaned product image",
				zap.String("product_id", id),
				zap.String("key", existing.ImageKey),
				zap.Error(err),
			)
		}
	}
	return nil
}

// UploadImage stores img and points the product at it. If the database update
// fails the new object is removed; on success the previous object is removed.
func (s *Service) UploadImage(ctx context.Context, id string, img Image) (*Product, error) {
	if s.images == nil {
		return nil, ErrStorageDisabled
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	key := imageKey(id, img.Filename, s.now())
	if _, err := s.images.Put(ctx, key, img.Body, storage.PutObjectOptions{
		Size:        img.Size,
		ContentType: img.ContentType,
		Metadata:    map[string]string{"product-id": id},
	}); err != nil {
		return nil, errors.Wrap(err, "store image")
	}

	if err := s.repo.SetImage(ctx, id, key); err != nil {
		if delErr := s.images.Delete(ctx, key); delErr != nil {
			zctx.From(ctx).Warn("Image rollback failed", zap.String("key", key), zap.Error(delErr))
		}
		return nil, errors.Wrap(err, "set product image")
	}

	previous := p.ImageKey
	p.ImageKey = key
	if previous != "" && previous != key {
		if err := s.images.Delete(ctx, previous); err != nil {
			zctx.From(ctx).Warn("Previous image not removed", zap.String("key", previous), zap.Error(err))
		}
	}
	return p, nil
}

// OpenImage streams the product image.
func (s *Service) OpenImage(ctx context.Context, id string) (io.ReadCloser, storage.ObjectInfo, error) {
	if s.images == nil {
		return nil, storage.ObjectInfo{}, ErrStorageDisabled
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	if p.ImageKey == "" {
		return nil, storage.ObjectInfo{}, ErrNoImage
	}
	rc, info, err := s.images.Get(ctx, p.ImageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, storage.ObjectInfo{}, ErrNoImage
		}
		return nil, storage.ObjectInfo{}, errors.Wrap(err, "open image")
	}
	return rc, info, nil
}

// ImageURL returns a presigned download URL for key.
func (s *Service) ImageURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if s.images == nil {
		return "", ErrStorageDisabled
	}
	return s.images.PresignGet(ctx, key, expiry)
}

func imageKey(id, filename string, at time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		ext = ".jpg"
	}
	return fmt.Sprintf("products/%s/%d%s", id, at.UnixNano(), ext)
}

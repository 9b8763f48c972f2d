package product

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xenking/eyewear-store/internal/storage"
	"github.com/xenking/eyewear-store/internal/storage/mocks"
)

// --- Mock implementations ---

type fakeRepo struct {
	byID       map[string]*Product
	created    *Product
	updated    *Product
	deletedID  string
	imageKey   string
	setImgErr  error
	lastFilter Filter
}

func newFakeRepo(products ...Product) *fakeRepo {
	r := &fakeRepo{byID: make(map[string]*Product)}
	for i := range products {
		r.byID[products[i].ID] = &products[i]
	}
	return r
}

func (r *fakeRepo) List(_ context.Context, f Filter) ([]Product, int, error) {
	r.lastFilter = f
	out := make([]Product, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*Product, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) GetByIDs(_ context.Context, ids []string) ([]Product, error) {
	var out []Product
	for _, id := range ids {
		if p, ok := r.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeRepo) Create(_ context.Context, p *Product) error {
	r.created = p
	r.byID[p.ID] = p
	return nil
}

func (r *fakeRepo) Update(_ context.Context, p *Product) error {
	r.updated = p
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) error {
	r.deletedID = id
	delete(r.byID, id)
	return nil
}

func (r *fakeRepo) SetImage(_ context.Context, _ string, key string) error {
	if r.setImgErr != nil {
		return r.setImgErr
	}
	r.imageKey = key
	return nil
}

func (r *fakeRepo) AdjustStock(context.Context, string, int) error { return nil }

// --- Tests ---

func TestService_Create(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	p := validGlasses()
	p.SKU = "  GL-001 "
	require.NoError(t, svc.Create(context.Background(), &p))

	require.NotNil(t, repo.created)
	assert.NotEmpty(t, repo.created.ID)
	assert.Equal(t, "GL-001", repo.created.SKU)
	assert.Equal(t, fixed, repo.created.CreatedAt)
	assert.Equal(t, fixed, repo.created.UpdatedAt)
}

func TestService_CreateRejectsInvalid(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	p := validGlasses()
	p.Stock = -5
	require.Error(t, svc.Create(context.Background(), &p))
	assert.Nil(t, repo.created)
}

func TestService_UpdatePreservesImageAndCreatedAt(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := validGlasses()
	existing.ID = "p1"
	existing.ImageKey = "products/p1/1.jpg"
	existing.CreatedAt = created
	repo := newFakeRepo(existing)
	svc := NewService(repo, nil)

	upd := validGlasses()
	upd.ID = "p1"
	upd.Name = "Aviator Gold"
	require.NoError(t, svc.Update(context.Background(), &upd))

	require.NotNil(t, repo.updated)
	assert.Equal(t, "products/p1/1.jpg", repo.updated.ImageKey)
	assert.Equal(t, created, repo.updated.CreatedAt)
	assert.Equal(t, "Aviator Gold", repo.updated.Name)
}

func TestService_UpdateMissing(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	p := validGlasses()
	p.ID = "nope"
	require.ErrorIs(t, svc.Update(context.Background(), &p), ErrNotFound)
}

func TestService_ListClampsLimit(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	_, _, err := svc.List(context.Background(), Filter{Limit: 1000, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, 20, repo.lastFilter.Limit)
	assert.Equal(t, 0, repo.lastFilter.Offset)
}

func TestService_UploadImage(t *testing.T) {
	existing := validGlasses()
	existing.ID = "p1"
	existing.ImageKey = "products/p1/old.jpg"

	tests := []struct {
		name       string
		setImgErr  error
		setupMocks func(st *mocks.MockStorage)
		wantErr    bool
	}{
		{
			name: "stores object and removes previous",
			setupMocks: func(st *mocks.MockStorage) {
				st.On("Put", mock.Anything, mock.MatchedBy(func(k string) bool {
					return strings.HasPrefix(k, "products/p1/") && strings.HasSuffix(k, ".png")
				}), mock.Anything, mock.MatchedBy(func(o storage.PutObjectOptions) bool {
					return o.ContentType == "image/png" && o.Size == 4
				})).Return(storage.ObjectInfo{}, nil).Once()
				st.On("Delete", mock.Anything, "products/p1/old.jpg").Return(nil).Once()
			},
		},
		{
			name:      "rolls back object when database update fails",
			setImgErr: errors.New("db down"),
			setupMocks: func(st *mocks.MockStorage) {
				st.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{}, nil).Once()
				st.On("Delete", mock.Anything, mock.MatchedBy(func(k string) bool {
					return k != "products/p1/old.jpg"
				})).Return(nil).Once()
			},
			wantErr: true,
		},
		{
			name: "put failure leaves database untouched",
			setupMocks: func(st *mocks.MockStorage) {
				st.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{}, errors.New("bucket gone")).Once()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo(existing)
			repo.setImgErr = tt.setImgErr
			st := new(mocks.MockStorage)
			tt.setupMocks(st)

			svc := NewService(repo, st)
			got, err := svc.UploadImage(context.Background(), "p1", Image{
				Body:        strings.NewReader("\x89PNG"),
				Size:        4,
				ContentType: "image/png",
				Filename:    "front.PNG",
			})

			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, repo.imageKey, got.ImageKey)
			}
			st.AssertExpectations(t)
		})
	}
}

func TestService_UploadImageWithoutStorage(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	_, err := svc.UploadImage(context.Background(), "p1", Image{})
	require.ErrorIs(t, err, ErrStorageDisabled)
}

func TestService_OpenImage(t *testing.T) {
	withImage := validGlasses()
	withImage.ID = "p1"
	withImage.ImageKey = "products/p1/a.jpg"
	noImage := validGlasses()
	noImage.ID = "p2"

	st := new(mocks.MockStorage)
	st.On("Get", mock.Anything, "products/p1/a.jpg").
		Return(io.NopCloser(strings.NewReader("img")), storage.ObjectInfo{ContentType: "image/jpeg", Size: 3}, nil).Once()

	svc := NewService(newFakeRepo(withImage, noImage), st)

	rc, info, err := svc.OpenImage(context.Background(), "p1")
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "image/jpeg", info.ContentType)

	_, _, err = svc.OpenImage(context.Background(), "p2")
	require.ErrorIs(t, err, ErrNoImage)

	st.AssertExpectations(t)
}

func TestService_DeleteRemovesImage(t *testing.T) {
	p := validGlasses()
	p.ID = "p1"
	p.ImageKey = "products/p1/a.jpg"
	repo := newFakeRepo(p)

	st := new(mocks.MockStorage)
	st.On("Delete", mock.Anything, "products/p1/a.jpg").Return(nil).Once()

	svc := NewService(repo, st)
	require.NoError(t, svc.Delete(context.Background(), "p1"))
	assert.Equal(t, "p1", repo.deletedID)
	st.AssertExpectations(t)
}

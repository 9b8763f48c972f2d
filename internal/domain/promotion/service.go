package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Service manages promotions and resolves the campaign currently running.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a promotion Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Current returns the promotion running right now, or nil when there is none.
func (s *Service) Current(ctx context.Context) (*Promotion, error) {
	now := s.now()
	p, err := s.repo.FindRunning(ctx, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "find running promotion")
	}
	// Database and process clocks may disagree.
	if !p.IsRunningAt(now) {
		return nil, nil
	}
	return p, nil
}

// List returns every promotion.
func (s *Service) List(ctx context.Context) ([]Promotion, error) {
	return s.repo.List(ctx)
}

// Get returns one promotion.
func (s *Service) Get(ctx context.Context, id string) (*Promotion, error) {
	return s.repo.GetByID(ctx, id)
}

// Create validates and stores p.
func (s *Service) Create(ctx context.Context, p *Promotion) error {
	normalize(p)
	if err := p.Validate(); err != nil {
		return err
	}
	now := s.now().UTC()
	p.ID = uuid.New().String()
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := s.repo.Create(ctx, p); err != nil {
		return errors.Wrap(err, "create promotion")
	}
	return nil
}

// Update validates and replaces an existing promotion.
func (s *Service) Update(ctx context.Context, p *Promotion) error {
	normalize(p)
	if err := p.Validate(); err != nil {
		return err
	}
	existing, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, p); err != nil {
		return errors.Wrap(err, "update promotion")
	}
	return nil
}

// Delete removes a promotion.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func normalize(p *Promotion) {
	p.StartsAt = p.StartsAt.UTC()
	p.EndsAt = p.EndsAt.UTC()
	for i := range p.Tiers {
		t := &p.Tiers[i]
		t.OriginalPrice = t.OriginalPrice.Round(2)
		t.DiscountedPrice = t.DiscountedPrice.Round(2)
		t.PairPrice = t.PairPrice.Round(2)
	}
}

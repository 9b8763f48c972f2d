// Package auth authenticates admin API calls with first-party API keys.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// ScopeAdmin grants access to the back-office API.
const ScopeAdmin = "admin"

// keyPrefix is prepended to every raw key.
const keyPrefix = "eys_"

// Sentinel errors for authentication.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrKeyNotFound  = errors.New("api key not found")
)

// APIKey is a stored credential. Only the HMAC of the raw key is kept.
type APIKey struct {
	ID        string
	UserID    string
	Name      string
	KeyHash   string
	Scopes    []string
	Active    bool
	CreatedAt time.Time
	// OwnerAdmin reports whether the owning user currently has the admin
	// role. It is read from the user row on lookup and never stored.
	OwnerAdmin bool
}

// Repository provides API key storage keyed by HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKey, error)
	Create(ctx context.Context, k *APIKey) error
}

// Principal is the identity behind an authenticated request.
type Principal struct {
	KeyID  string
	UserID string
	Scopes []string
}

// HasScope reports whether p was granted scope.
func (p *Principal) HasScope(scope string) bool {
	return slices.Contains(p.Scopes, scope)
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, if any.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok
}

// HashKey returns the hex HMAC-SHA256 of raw under pepper.
func HashKey(pepper []byte, raw string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// Keys authenticates and issues API keys.
type Keys struct {
	repo   Repository
	pepper []byte
	now    func() time.Time
}

// NewKeys creates a Keys service with the given repository and HMAC pepper.
func NewKeys(repo Repository, pepper []byte) *Keys {
	return &Keys{repo: repo, pepper: pepper, now: time.Now}
}

// Authenticate resolves a raw key to its principal. Any failure is reported
// as ErrUnauthorized.
func (k *Keys) Authenticate(ctx context.Context, raw string) (*Principal, error) {
	if raw == "" {
		return nil, ErrUnauthorized
	}
	hash := HashKey(k.pepper, raw)

	key, err := k.repo.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, errors.Wrap(err, "find api key")
	}
	if !key.Active {
		return nil, ErrUnauthorized
	}

	// The row must carry exactly the hash we computed.
	want, _ := hex.DecodeString(hash)
	got, err := hex.DecodeString(key.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(want, got) != 1 {
		return nil, ErrUnauthorized
	}

	return &Principal{KeyID: key.ID, UserID: key.UserID, Scopes: grantedScopes(key)}, nil
}

// grantedScopes drops the admin scope from keys whose owner is no longer an
// administrator.
func grantedScopes(key *APIKey) []string {
	if key.OwnerAdmin || !slices.Contains(key.Scopes, ScopeAdmin) {
		return key.Scopes
	}
	return slices.DeleteFunc(slices.Clone(key.Scopes), func(s string) bool { return s == ScopeAdmin })
}

// Issue creates a key for userID and returns the raw value. The raw value is
// not stored and cannot be recovered later.
func (k *Keys) Issue(ctx context.Context, userID, name string, scopes []string) (string, *APIKey, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, errors.Wrap(err, "generate key")
	}
	raw := keyPrefix + hex.EncodeToString(buf)

	key := &APIKey{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		KeyHash:   HashKey(k.pepper, raw),
		Scopes:    scopes,
		Active:    true,
		CreatedAt: k.now().UTC(),
	}
	if err := k.repo.Create(ctx, key); err != nil {
		return "", nil, errors.Wrap(err, "create api key")
	}
	return raw, key, nil
}

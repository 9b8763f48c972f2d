package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type memRepo struct {
	byHash  map[string]*APIKey
	admins  map[string]bool
	findErr error
}

func newMemRepo() *memRepo {
	return &memRepo{byHash: make(map[string]*APIKey), admins: make(map[string]bool)}
}

func (m *memRepo) FindByHash(_ context.Context, hash string) (*APIKey, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	k, ok := m.byHash[hash]
	if !ok {
		return nil, ErrKeyNotFound
	}
	cp := *k
	cp.OwnerAdmin = m.admins[k.UserID]
	return &cp, nil
}

func (m *memRepo) Create(_ context.Context, k *APIKey) error {
	m.byHash[k.KeyHash] = k
	return nil
}

// --- Tests ---

func TestHashKey(t *testing.T) {
	pepper := []byte("pepper")

	h := HashKey(pepper, "secret")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashKey(pepper, "secret"))
	assert.NotEqual(t, h, HashKey([]byte("other"), "secret"))
	assert.NotEqual(t, h, HashKey(pepper, "secret2"))
}

func TestIssueThenAuthenticate(t *testing.T) {
	repo := newMemRepo()
	repo.admins["u1"] = true
	keys := NewKeys(repo, []byte("pepper"))
	ctx := context.Background()

	raw, key, err := keys.Issue(ctx, "u1", "ci", []string{ScopeAdmin})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, keyPrefix))
	assert.NotContains(t, key.KeyHash, raw)

	p, err := keys.Authenticate(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, key.ID, p.KeyID)
	assert.True(t, p.HasScope(ScopeAdmin))
	assert.False(t, p.HasScope("orders"))
}

func TestAuthenticate_DemotedOwner(t *testing.T) {
	repo := newMemRepo()
	repo.admins["u1"] = true
	keys := NewKeys(repo, []byte("pepper"))
	ctx := context.Background()

	raw, key, err := keys.Issue(ctx, "u1", "ci", []string{"orders", ScopeAdmin})
	require.NoError(t, err)

	repo.admins["u1"] = false
	p, err := keys.Authenticate(ctx, raw)
	require.NoError(t, err)
	assert.False(t, p.HasScope(ScopeAdmin))
	assert.True(t, p.HasScope("orders"))
	assert.Equal(t, []string{"orders", ScopeAdmin}, key.Scopes, "stored scopes are left untouched")

	repo.admins["u1"] = true
	p, err = keys.Authenticate(ctx, raw)
	require.NoError(t, err)
	assert.True(t, p.HasScope(ScopeAdmin))
}

func TestAuthenticate_Rejects(t *testing.T) {
	pepper := []byte("pepper")

	tests := []struct {
		name  string
		setup func(r *memRepo)
		raw   string
	}{
		{name: "empty key", raw: ""},
		{name: "unknown key", raw: "eys_unknown"},
		{
			name: "revoked key",
			raw:  "eys_revoked",
			setup: func(r *memRepo) {
				h := HashKey(pepper, "eys_revoked")
				r.byHash[h] = &APIKey{ID: "k", KeyHash: h, Active: false}
			},
		},
		{
			name: "stored hash differs",
			raw:  "eys_stale",
			setup: func(r *memRepo) {
				r.byHash[HashKey(pepper, "eys_stale")] = &APIKey{ID: "k", KeyHash: HashKey(pepper, "other"), Active: true}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			if tt.setup != nil {
				tt.setup(repo)
			}
			_, err := NewKeys(repo, pepper).Authenticate(context.Background(), tt.raw)
			require.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestAuthenticate_RepositoryError(t *testing.T) {
	repo := newMemRepo()
	repo.findErr = errors.New("connection refused")

	_, err := NewKeys(repo, []byte("p")).Authenticate(context.Background(), "eys_x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), &Principal{UserID: "u1"})
	p, ok := PrincipalFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", p.UserID)
}

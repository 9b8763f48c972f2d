package user

import (
	"context"
	"testing"
	"time"

	"github.com/ogen-go/ogen/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/eyewear-store/internal/domain/auth"
)

// --- Mock implementations ---

type memRepo struct {
	byID map[string]*User
}

func newMemRepo(users ...User) *memRepo {
	r := &memRepo{byID: make(map[string]*User)}
	for i := range users {
		r.byID[users[i].ID] = &users[i]
	}
	return r
}

func (m *memRepo) List(_ context.Context, _, _ int) ([]User, int, error) {
	var out []User
	for _, u := range m.byID {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) Create(_ context.Context, u *User) error {
	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memRepo) Update(_ context.Context, u *User) error {
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type fakeIssuer struct {
	userID string
	scopes []string
}

func (f *fakeIssuer) Issue(_ context.Context, userID, name string, scopes []string) (string, *auth.APIKey, error) {
	f.userID = userID
	f.scopes = scopes
	return "eys_raw", &auth.APIKey{ID: "k1", UserID: userID, Name: name, Scopes: scopes}, nil
}

func fixedNow() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }

// --- Tests ---

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		user       User
		wantFields []string
	}{
		{name: "valid", user: User{Email: "a@example.com", Role: RoleAdmin}},
		{name: "bad email", user: User{Email: "nope", Role: RoleCustomer}, wantFields: []string{"email"}},
		{name: "display name form", user: User{Email: "mallory <mallory@example.com>", Role: RoleCustomer}, wantFields: []string{"email"}},
		{name: "angle brackets only", user: User{Email: "<mallory@example.com>", Role: RoleCustomer}, wantFields: []string{"email"}},
		{name: "empty email and role", user: User{}, wantFields: []string{"email", "role"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.user.Validate()
			if len(tt.wantFields) == 0 {
				require.NoError(t, err)
				return
			}
			var verr *validate.Error
			require.ErrorAs(t, err, &verr)
			var got []string
			for _, f := range verr.Fields {
				got = append(got, f.Name)
			}
			assert.Equal(t, tt.wantFields, got)
		})
	}
}

func TestCreate(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, &fakeIssuer{})
	svc.now = fixedNow

	u := &User{Email: "  Jane@Example.COM ", Name: " Jane "}
	require.NoError(t, svc.Create(context.Background(), u))

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "jane@example.com", u.Email)
	assert.Equal(t, "Jane", u.Name)
	assert.Equal(t, RoleCustomer, u.Role)
	assert.Equal(t, fixedNow(), u.CreatedAt)

	err := svc.Create(context.Background(), &User{Email: "jane@example.com"})
	require.ErrorIs(t, err, ErrEmailTaken)

	err = svc.Create(context.Background(), &User{Email: "Jane <jane@example.com>"})
	var verr *validate.Error
	require.ErrorAs(t, err, &verr)
	assert.Len(t, repo.byID, 1)
}

func TestUpdate_PreservesCreatedAt(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := newMemRepo(User{ID: "u1", Email: "a@example.com", Role: RoleCustomer, CreatedAt: created})
	svc := NewService(repo, &fakeIssuer{})
	svc.now = fixedNow

	err := svc.Update(context.Background(), &User{ID: "u1", Email: "b@example.com", Role: RoleAdmin})
	require.NoError(t, err)

	got := repo.byID["u1"]
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, fixedNow(), got.UpdatedAt)
	assert.Equal(t, RoleAdmin, got.Role)
}

func TestUpdate_NotFound(t *testing.T) {
	svc := NewService(newMemRepo(), &fakeIssuer{})
	err := svc.Update(context.Background(), &User{ID: "missing", Email: "a@example.com", Role: RoleAdmin})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	repo := newMemRepo(User{ID: "u1"})
	svc := NewService(repo, &fakeIssuer{})

	require.NoError(t, svc.Delete(context.Background(), "u1"))
	_, err := svc.Get(context.Background(), "u1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIssueKey(t *testing.T) {
	repo := newMemRepo(
		User{ID: "admin", Email: "admin@example.com", Role: RoleAdmin},
		User{ID: "cust", Email: "cust@example.com", Role: RoleCustomer},
	)

	tests := []struct {
		name    string
		userID  string
		keyName string
		scopes  []string
		wantErr func(t *testing.T, err error)
	}{
		{name: "admin key", userID: "admin", keyName: "deploy", scopes: []string{auth.ScopeAdmin}},
		{name: "scopeless customer key", userID: "cust", keyName: "app"},
		{
			name: "customer cannot hold admin scope", userID: "cust", keyName: "x", scopes: []string{auth.ScopeAdmin},
			wantErr: func(t *testing.T, err error) { require.ErrorIs(t, err, auth.ErrForbidden) },
		},
		{
			name: "unknown scope", userID: "admin", keyName: "x", scopes: []string{"root"},
			wantErr: func(t *testing.T, err error) {
				var verr *validate.Error
				require.ErrorAs(t, err, &verr)
			},
		},
		{
			name: "blank name", userID: "admin", keyName: "  ",
			wantErr: func(t *testing.T, err error) {
				var verr *validate.Error
				require.ErrorAs(t, err, &verr)
			},
		},
		{
			name: "unknown user", userID: "ghost", keyName: "x",
			wantErr: func(t *testing.T, err error) { require.ErrorIs(t, err, ErrNotFound) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer := &fakeIssuer{}
			raw, key, err := NewService(repo, issuer).IssueKey(context.Background(), tt.userID, tt.keyName, tt.scopes)
			if tt.wantErr != nil {
				tt.wantErr(t, err)
				assert.Empty(t, issuer.userID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "eys_raw", raw)
			assert.Equal(t, tt.userID, key.UserID)
			assert.Equal(t, tt.userID, issuer.userID)
		})
	}
}

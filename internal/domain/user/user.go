// Package user manages store accounts and their API keys.
package user

import (
	"context"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/ogen-go/ogen/validate"

	"github.com/xenking/eyewear-store/internal/domain/auth"
)

// Sentinel errors for user operations.
var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)

// Role is a user's access level.
type Role string

// Roles.
const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

// knownScopes lists scopes that may be granted to a key.
var knownScopes = []string{auth.ScopeAdmin}

// User is a store account.
type User struct {
	ID        string
	Email     string
	Name      string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks field constraints and collects every failure.
func (u *User) Validate() error {
	var fields []validate.FieldError
	if addr, err := mail.ParseAddress(u.Email); err != nil || addr.Address != u.Email {
		fields = append(fields, validate.FieldError{Name: "email", Error: errors.New("invalid email address")})
	}
	if err := (validate.String{MaxLength: 200, MaxLengthSet: true}).Validate(u.Name); err != nil {
		fields = append(fields, validate.FieldError{Name: "name", Error: err})
	}
	if !u.Role.Valid() {
		fields = append(fields, validate.FieldError{Name: "role", Error: errors.Errorf("unknown role %q", u.Role)})
	}
	if len(fields) > 0 {
		return &validate.Error{Fields: fields}
	}
	return nil
}

// Repository defines persistence operations for users.
type Repository interface {
	List(ctx context.Context, limit, offset int) ([]User, int, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id string) error
}

// KeyIssuer creates API keys.
type KeyIssuer interface {
	Issue(ctx context.Context, userID, name string, scopes []string) (string, *auth.APIKey, error)
}

// Service implements user administration.
type Service struct {
	repo Repository
	keys KeyIssuer
	now  func() time.Time
}

// NewService creates a user Service.
func NewService(repo Repository, keys KeyIssuer) *Service {
	return &Service{repo: repo, keys: keys, now: time.Now}
}

// List returns a page of users and the total count.
func (s *Service) List(ctx context.Context, limit, offset int) ([]User, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// Create validates and stores a new user. Role defaults to customer.
func (s *Service) Create(ctx context.Context, u *User) error {
	normalize(u)
	if u.Role == "" {
		u.Role = RoleCustomer
	}
	if err := u.Validate(); err != nil {
		return err
	}
	now := s.now().UTC()
	u.ID = uuid.New().String()
	u.CreatedAt = now
	u.UpdatedAt = now
	return s.repo.Create(ctx, u)
}

// Update replaces the mutable fields of an existing user.
func (s *Service) Update(ctx context.Context, u *User) error {
	current, err := s.repo.GetByID(ctx, u.ID)
	if err != nil {
		return err
	}
	normalize(u)
	if err := u.Validate(); err != nil {
		return err
	}
	u.CreatedAt = current.CreatedAt
	u.UpdatedAt = s.now().UTC()
	return s.repo.Update(ctx, u)
}

// Delete removes a user and, through the schema, its API keys.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// IssueKey creates an API key for an existing user. The admin scope may only
// be granted to admins.
func (s *Service) IssueKey(ctx context.Context, userID, name string, scopes []string) (string, *auth.APIKey, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return "", nil, err
	}

	var fields []validate.FieldError
	if err := (validate.String{MinLength: 1, MinLengthSet: true, MaxLength: 100, MaxLengthSet: true}).Validate(strings.TrimSpace(name)); err != nil {
		fields = append(fields, validate.FieldError{Name: "name", Error: err})
	}
	for _, sc := range scopes {
		if !slices.Contains(knownScopes, sc) {
			fields = append(fields, validate.FieldError{Name: "scopes", Error: errors.Errorf("unknown scope %q", sc)})
		}
	}
	if len(fields) > 0 {
		return "", nil, &validate.Error{Fields: fields}
	}
	if slices.Contains(scopes, auth.ScopeAdmin) && u.Role != RoleAdmin {
		return "", nil, errors.Wrap(auth.ErrForbidden, "admin scope requires admin role")
	}

	return s.keys.Issue(ctx, u.ID, strings.TrimSpace(name), scopes)
}

func normalize(u *User) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Name = strings.TrimSpace(u.Name)
}

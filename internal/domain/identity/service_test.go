package identity

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vitalab/vitalab/internal/platform/auth"
	"github.com/vitalab/vitalab/internal/platform/httperr"
)

type mockUserRepo struct {
	users map[uuid.UUID]*User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return &pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"}
		}
		if existing.Email == u.Email {
			return &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) GetByLogin(_ context.Context, identifier string) (*User, error) {
	for _, u := range m.users {
		if u.Username == identifier || u.Email == identifier {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockUserRepo) Update(_ context.Context, u *User) error {
	stored, ok := m.users[u.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	cp := *u
	cp.PasswordHash = stored.PasswordHash
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	u, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.PasswordHash = hash
	return nil
}

func (m *mockUserRepo) StampLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	if u, ok := m.users[id]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func (m *mockUserRepo) List(_ context.Context, limit, offset int) ([]*User, int, error) {
	var items []*User
	for _, u := range m.users {
		cp := *u
		items = append(items, &cp)
	}
	total := len(items)
	if offset > len(items) {
		offset = len(items)
	}
	items = items[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	return items, total, nil
}

func newTestService(repo UserRepository) *Service {
	tm := auth.NewTokenManager([]byte("test-secret"), 30*time.Minute, 7*24*time.Hour)
	return NewService(repo, tm, 30*time.Minute)
}

func wantStatus(t *testing.T, err error, status int) *httperr.Error {
	t.Helper()
	he, ok := httperr.As(err)
	if !ok {
		t.Fatalf("expected *httperr.Error, got %T: %v", err, err)
	}
	if he.Status != status {
		t.Fatalf("expected status %d, got %d (%s)", status, he.Status, he.Message)
	}
	return he
}

func TestRegister(t *testing.T) {
	svc := newTestService(newMockUserRepo())

	resp, err := svc.Register(context.Background(), RegisterRequest{
		Username: "jdoe",
		Email:    "Jane@Example.com",
		Password: "s3curepass",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	u := resp.User
	if u.Role != auth.RoleUser {
		t.Errorf("expected role user, got %s", u.Role)
	}
	if !u.IsActive || u.IsVerified {
		t.Errorf("expected active unverified account, got active=%v verified=%v", u.IsActive, u.IsVerified)
	}
	if u.Email != "jane@example.com" {
		t.Errorf("expected lowercased email, got %s", u.Email)
	}
	if u.LastLoginAt == nil {
		t.Error("expected last login stamped on registration")
	}
	if resp.Tokens.AccessToken == "" || resp.Tokens.RefreshToken == "" {
		t.Error("expected a token pair")
	}
	if resp.Tokens.TokenType != "bearer" {
		t.Errorf("expected bearer token type, got %s", resp.Tokens.TokenType)
	}
	if resp.Tokens.ExpiresIn != 1800 {
		t.Errorf("expected expires_in 1800, got %d", resp.Tokens.ExpiresIn)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc := newTestService(newMockUserRepo())
	cases := []struct {
		name string
		req  RegisterRequest
	}{
		{"short username", RegisterRequest{Username: "ab", Email: "a@b.co", Password: "s3curepass"}},
		{"bad email", RegisterRequest{Username: "jdoe", Email: "not-an-email", Password: "s3curepass"}},
		{"short password", RegisterRequest{Username: "jdoe", Email: "a@b.co", Password: "s3c"}},
		{"password without digit", RegisterRequest{Username: "jdoe", Email: "a@b.co", Password: "passwords"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.req)
			he := wantStatus(t, err, http.StatusBadRequest)
			if he.Code != httperr.CodeValidation {
				t.Errorf("expected VALIDATION_ERROR, got %s", he.Code)
			}
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	svc := newTestService(newMockUserRepo())
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{Username: "jdoe", Email: "jane@example.com", Password: "s3curepass"}); err != nil {
		t.Fatalf("first register: %v", err)
	}

	_, err := svc.Register(ctx, RegisterRequest{Username: "jdoe", Email: "other@example.com", Password: "s3curepass"})
	he := wantStatus(t, err, http.StatusConflict)
	if !strings.Contains(he.Message, "username") {
		t.Errorf("expected username conflict, got %q", he.Message)
	}

	_, err = svc.Register(ctx, RegisterRequest{Username: "other", Email: "jane@example.com", Password: "s3curepass"})
	he = wantStatus(t, err, http.StatusConflict)
	if !strings.Contains(he.Message, "email") {
		t.Errorf("expected email conflict, got %q", he.Message)
	}
}

func TestLogin(t *testing.T) {
	svc := newTestService(newMockUserRepo())
	ctx := context.Background()
	if _, err := svc.Register(ctx, RegisterRequest{Username: "jdoe", Email: "jane@example.com", Password: "s3curepass"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	for _, identifier := range []string{"jdoe", "jane@example.com"} {
		resp, err := svc.Login(ctx, LoginRequest{Username: identifier, Password: "s3curepass"})
		if err != nil {
			t.Fatalf("login as %q: %v", identifier, err)
		}
		if resp.User.Username != "jdoe" {
			t.Errorf("login as %q returned user %s", identifier, resp.User.Username)
		}
	}
}

func TestLogin_GenericFailures(t *testing.T) {
	repo := newMockUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	reg, err := svc.Register(ctx, RegisterRequest{Username: "jdoe", Email: "jane@example.com", Password: "s3curepass"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// Unknown user, wrong password and deactivated account must be
	// indistinguishable.
	var messages []string
	for _, tc := range []struct {
		name string
		prep func()
		req  LoginRequest
	}{
		{"unknown user", func() {}, LoginRequest{Username: "ghost", Password: "s3curepass"}},
		{"wrong password", func() {}, LoginRequest{Username: "jdoe", Password: "wrongpass1"}},
		{"inactive account", func() {
			repo.users[reg.User.ID].IsActive = false
		}, LoginRequest{Username: "jdoe", Password: "s3curepass"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tc.prep()
			_, err := svc.Login(ctx, tc.req)
			he := wantStatus(t, err, http.StatusUnauthorized)
			messages = append(messages, he.Message)
		})
	}
	for i := 1; i < len(messages); i++ {
		if messages[i] != messages[0] {
			t.Errorf("failure messages differ: %q vs %q", messages[0], messages[i])
		}
	}
}

func TestRefresh(t *testing.T) {
	repo := newMockUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	reg, err := svc.Register(ctx, RegisterRequest{Username: "jdoe", Email: "jane@example.com", Password: "s3curepass"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	tokens, err := svc.Refresh(ctx, reg.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Error("expected a fresh token pair")
	}

	if _, err := svc.Refresh(ctx, reg.Tokens.AccessToken); err == nil {
		t.Error("expected access token to be rejected by refresh")
	} else {
		wantStatus(t, err, http.StatusUnauthorized)
	}

	repo.users[reg.User.ID].IsActive = false
	if _, err := svc.Refresh(ctx, reg.Tokens.RefreshToken); err == nil {
		t.Error("expected refresh for deactivated user to fail")
	}
}

func TestChangePassword(t *testing.T) {
	svc := newTestService(newMockUserRepo())
	ctx := context.Background()
	reg, err := svc.Register(ctx, RegisterRequest{Username: "jdoe", Email: "jane@example.com", Password: "s3curepass"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	id := reg.User.ID

	err = svc.ChangePassword(ctx, id, "wrongpass1", "newpass123")
	wantStatus(t, err, http.StatusUnauthorized)

	err = svc.ChangePassword(ctx, id, "s3curepass", "short")
	wantStatus(t, err, http.StatusBadRequest)

	if err := svc.ChangePassword(ctx, id, "s3curepass", "newpass123"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := svc.Login(ctx, LoginRequest{Username: "jdoe", Password: "s3curepass"}); err == nil {
		t.Error("expected old password to stop working")
	}
	if _, err := svc.Login(ctx, LoginRequest{Username: "jdoe", Password: "newpass123"}); err != nil {
		t.Errorf("login with new password: %v", err)
	}
}

func TestSetRole(t *testing.T) {
	svc := newTestService(newMockUserRepo())
	ctx := context.Background()
	reg, err := svc.Register(ctx, RegisterRequest{Username: "jdoe", Email: "jane@example.com", Password: "s3curepass"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	u, err := svc.SetRole(ctx, reg.User.ID, auth.RoleLabTechnician)
	if err != nil {
		t.Fatalf("set role: %v", err)
	}
	if u.Role != auth.RoleLabTechnician {
		t.Errorf("expected lab_technician, got %s", u.Role)
	}

	_, err = svc.SetRole(ctx, reg.User.ID, "superuser")
	wantStatus(t, err, http.StatusBadRequest)

	_, err = svc.SetRole(ctx, uuid.New(), auth.RoleAdmin)
	wantStatus(t, err, http.StatusNotFound)
}

func TestResolve(t *testing.T) {
	repo := newMockUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	reg, err := svc.Register(ctx, RegisterRequest{Username: "jdoe", Email: "jane@example.com", Password: "s3curepass"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	p, err := svc.Resolve(ctx, reg.User.ID.String())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.Username != "jdoe" || p.Role != auth.RoleUser {
		t.Errorf("unexpected principal %+v", p)
	}

	if _, err := svc.Resolve(ctx, "not-a-uuid"); err == nil {
		t.Error("expected malformed subject to fail")
	}
	if _, err := svc.Resolve(ctx, uuid.NewString()); err == nil {
		t.Error("expected unknown subject to fail")
	}
	repo.users[reg.User.ID].IsActive = false
	if _, err := svc.Resolve(ctx, reg.User.ID.String()); err == nil {
		t.Error("expected deactivated user to fail resolution")
	}
}

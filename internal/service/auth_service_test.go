package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/crams-api/internal/models"
	appErrors "github.com/noah-isme/crams-api/pkg/errors"
)

type mockAuthRepo struct {
	users     map[string]*models.User
	auditLogs []*models.AuditLog
}

func (m *mockAuthRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *mockAuthRepo) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &mockAuthRepo{users: map[string]*models.User{
		"adv-1":  {ID: "adv-1", Email: "advisor@example.com", FullName: "Ada Advisor", Role: models.RoleAdvisor, Active: true, PasswordHash: string(hash)},
		"gone-1": {ID: "gone-1", Email: "gone@example.com", Role: models.RoleStudent, Active: false, PasswordHash: string(hash)},
	}}
	svc := NewAuthService(repo, nil, nil, AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, Issuer: "crams-test"})
	return svc, repo
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	svc, repo := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "advisor@example.com", Password: "password123", IP: "127.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, models.RoleAdvisor, resp.User.Role)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionLogin, repo.auditLogs[0].Action)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "adv-1", claims.UserID)
	assert.True(t, claims.Can(models.CapRegistrationReview))
}

func TestAuthServiceLoginFailures(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, models.LoginRequest{Email: "advisor@example.com", Password: "wrong"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = svc.Login(ctx, models.LoginRequest{Email: "nobody@example.com", Password: "password123"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = svc.Login(ctx, models.LoginRequest{Email: "gone@example.com", Password: "password123"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInactiveAccount))

	_, err = svc.Login(ctx, models.LoginRequest{Email: "not-an-email", Password: "x"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestAuthServiceValidateTokenRejectsForeignTokens(t *testing.T) {
	svc, _ := newAuthFixture(t)
	user := &models.User{ID: "adv-1", Role: models.RoleAdvisor}

	other := NewAuthService(nil, nil, nil, AuthConfig{AccessTokenSecret: "other", Issuer: "crams-test"})
	forged, _, err := other.GenerateAccessToken(user)
	require.NoError(t, err)
	_, err = svc.ValidateToken(forged)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	wrongIssuer := NewAuthService(nil, nil, nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "elsewhere"})
	token, _, err := wrongIssuer.GenerateAccessToken(user)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	expired := NewAuthService(nil, nil, nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "crams-test"})
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err = expired.GenerateAccessToken(user)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{UserID: "adv-1", Role: models.RoleAdvisor})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(unsigned)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceMe(t *testing.T) {
	svc, _ := newAuthFixture(t)

	info, err := svc.Me(context.Background(), advisor)
	require.NoError(t, err)
	assert.Equal(t, "Ada Advisor", info.FullName)

	_, err = svc.Me(context.Background(), &models.Actor{UserID: "ghost", Role: models.RoleStudent})
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	_, err = svc.Me(context.Background(), nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

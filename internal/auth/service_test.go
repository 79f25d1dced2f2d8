package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/users"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/mailer"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/security"
)

var testJWT = config.JWTConfig{
	Secret:                 "secret",
	Issuer:                 "storefront",
	ExpirationMinutes:      30,
	RefreshTokenTTLMinutes: 600,
}

type fixture struct {
	db       *gorm.DB
	svc      Service
	otp      *stubOTPStore
	mail     *stubMailer
	sessions *stubSessionManager
}

func newFixture(t *testing.T, requireVerified bool) *fixture {
	t.Helper()
	dsn := "file:auth_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{NowFunc: func() time.Time { return time.Now().UTC() }})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	f := &fixture{
		db:       conn,
		otp:      newStubOTPStore(),
		mail:     &stubMailer{},
		sessions: newStubSessionManager(),
	}
	svc, err := NewService(ServiceParams{
		UserRepo:             users.NewRepository(conn),
		Tx:                   dbpkg.Wrap(conn),
		Outbox:               outbox.NewService(outbox.NewRepository(conn), nil),
		OTPStore:             f.otp,
		Mailer:               f.mail,
		SessionManager:       f.sessions,
		JWTConfig:            testJWT,
		PasswordConfig:       config.PasswordConfig{},
		OTPConfig:            config.OTPConfig{TTL: 10 * time.Minute, Digits: 6},
		RequireVerifiedEmail: requireVerified,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) signup(t *testing.T, email string) *SignupResponse {
	t.Helper()
	resp, err := f.svc.Signup(context.Background(), SignupRequest{
		Name:     "Asha Rao",
		Email:    email,
		Password: "correct-horse",
	})
	require.NoError(t, err)
	return resp
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code(), "unexpected error %v", err)
}

func TestSignupStoresOTPAndEmitsEvent(t *testing.T) {
	f := newFixture(t, true)

	resp := f.signup(t, " Asha@Example.com ")
	require.Equal(t, "asha@example.com", resp.User.Email)
	require.False(t, resp.User.EmailVerified)
	require.Equal(t, 600, resp.OTPExpiresInSecs)

	entry, ok := f.otp.values["otp:asha@example.com"]
	require.True(t, ok)
	require.Len(t, entry.value, 6)
	require.Equal(t, 10*time.Minute, entry.ttl)

	require.Len(t, f.mail.sent, 1)
	require.Equal(t, "asha@example.com", f.mail.sent[0].To)
	require.Contains(t, f.mail.sent[0].HTML, entry.value)

	var events []models.OutboxEvent
	require.NoError(t, f.db.Find(&events).Error)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventUserSignedUp, events[0].EventType)
	require.Equal(t, resp.User.ID, events[0].AggregateID)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	var data payloads.UserSignedUpEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, "asha@example.com", data.Email)
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	f := newFixture(t, true)
	f.signup(t, "dup@example.com")

	_, err := f.svc.Signup(context.Background(), SignupRequest{
		Name:     "Other",
		Email:    "DUP@example.com",
		Password: "another-password",
	})
	requireCode(t, err, pkgerrors.CodeConflict)
}

func TestSignupValidatesInput(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.svc.Signup(context.Background(), SignupRequest{Name: "A", Email: "a@example.com", Password: "short"})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.Signup(context.Background(), SignupRequest{Name: " ", Email: "a@example.com", Password: "long-enough"})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestVerifyOTPFlow(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.signup(t, "buyer@example.com")
	code := f.otp.values["otp:buyer@example.com"].value

	_, err := f.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "buyer@example.com", OTP: wrongCode(code)})
	requireCode(t, err, pkgerrors.CodeValidation)
	require.Equal(t, otpIncorrectMessage, pkgerrors.As(err).Message())

	user, err := f.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "buyer@example.com", OTP: code})
	require.NoError(t, err)
	require.True(t, user.EmailVerified)

	_, err = f.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "buyer@example.com", OTP: code})
	requireCode(t, err, pkgerrors.CodeValidation)
	require.Equal(t, otpInvalidMessage, pkgerrors.As(err).Message())
}

func TestVerifyOTPExpiredOrUnknown(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "ghost@example.com", OTP: "123456"})
	requireCode(t, err, pkgerrors.CodeValidation)

	f.signup(t, "late@example.com")
	delete(f.otp.values, "otp:late@example.com")
	_, err = f.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "late@example.com", OTP: "123456"})
	requireCode(t, err, pkgerrors.CodeValidation)
	require.Equal(t, otpInvalidMessage, pkgerrors.As(err).Message())
}

func TestResendOTPReplacesCode(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.signup(t, "again@example.com")
	f.otp.values["otp:again@example.com"] = otpEntry{value: "stale"}

	_, err := f.svc.ResendOTP(ctx, ResendOTPRequest{Email: "again@example.com"})
	require.NoError(t, err)
	require.NotEqual(t, "stale", f.otp.values["otp:again@example.com"].value)
	require.Len(t, f.mail.sent, 2)

	_, err = f.svc.ResendOTP(ctx, ResendOTPRequest{Email: "missing@example.com"})
	requireCode(t, err, pkgerrors.CodeNotFound)

	code := f.otp.values["otp:again@example.com"].value
	_, err = f.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "again@example.com", OTP: code})
	require.NoError(t, err)
	_, err = f.svc.ResendOTP(ctx, ResendOTPRequest{Email: "again@example.com"})
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.signup(t, "gate@example.com")

	_, err := f.svc.Login(ctx, LoginRequest{Email: "gate@example.com", Password: "correct-horse"})
	requireCode(t, err, pkgerrors.CodeForbidden)

	code := f.otp.values["otp:gate@example.com"].value
	_, err = f.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "gate@example.com", OTP: code})
	require.NoError(t, err)

	resp, err := f.svc.Login(ctx, LoginRequest{Email: "GATE@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.RefreshToken)
	require.NotNil(t, resp.User.LastLoginAt)

	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, enums.UserRoleCustomer, claims.Role)
	require.Equal(t, resp.User.ID, claims.UserID)
	require.Equal(t, resp.User.ID, f.sessions.sessions[claims.ID].userID)
}

func TestLoginWithoutVerificationFlag(t *testing.T) {
	f := newFixture(t, false)
	f.signup(t, "open@example.com")
	require.NoError(t, f.db.Model(&models.User{}).Where("email = ?", "open@example.com").Update("is_admin", true).Error)

	resp, err := f.svc.Login(context.Background(), LoginRequest{Email: "open@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	require.NoError(t, err)
	require.True(t, claims.IsAdmin())
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t, false)
	f.signup(t, "who@example.com")

	_, err := f.svc.Login(context.Background(), LoginRequest{Email: "who@example.com", Password: "wrong-password"})
	requireCode(t, err, pkgerrors.CodeUnauthorized)

	_, err = f.svc.Login(context.Background(), LoginRequest{Email: "nobody@example.com", Password: "correct-horse"})
	requireCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestLoginUpgradesOutdatedHash(t *testing.T) {
	f := newFixture(t, false)
	f.signup(t, "old@example.com")

	legacy, err := security.HashPassword("correct-horse", config.PasswordConfig{ArgonTime: 2})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.User{}).Where("email = ?", "old@example.com").Update("password_hash", legacy).Error)

	_, err = f.svc.Login(context.Background(), LoginRequest{Email: "old@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	var stored models.User
	require.NoError(t, f.db.Where("email = ?", "old@example.com").First(&stored).Error)
	require.NotEqual(t, legacy, stored.PasswordHash)
	require.False(t, security.NeedsRehash(stored.PasswordHash, config.PasswordConfig{}))
}

func TestRefreshRotatesAndLogoutRevokes(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.signup(t, "rot@example.com")

	login, err := f.svc.Login(ctx, LoginRequest{Email: "rot@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	claims, err := pkgAuth.ParseAccessToken(testJWT, login.AccessToken)
	require.NoError(t, err)

	refreshed, err := f.svc.Refresh(ctx, RefreshRequest{AccessID: claims.ID, RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	require.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	newClaims, err := pkgAuth.ParseAccessToken(testJWT, refreshed.AccessToken)
	require.NoError(t, err)
	require.Equal(t, claims.UserID, newClaims.UserID)
	require.NotEqual(t, claims.ID, newClaims.ID)

	_, err = f.svc.Refresh(ctx, RefreshRequest{AccessID: claims.ID, RefreshToken: login.RefreshToken})
	requireCode(t, err, pkgerrors.CodeUnauthorized)

	require.NoError(t, f.svc.Logout(ctx, newClaims.ID))
	_, ok := f.sessions.sessions[newClaims.ID]
	require.False(t, ok)

	requireCode(t, f.svc.Logout(ctx, ""), pkgerrors.CodeUnauthorized)
}

func TestSessionReturnsUser(t *testing.T) {
	f := newFixture(t, false)
	resp := f.signup(t, "me@example.com")

	got, err := f.svc.Session(context.Background(), resp.User.ID)
	require.NoError(t, err)
	require.Equal(t, "me@example.com", got.User.Email)

	_, err = f.svc.Session(context.Background(), uuid.New())
	requireCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

type otpEntry struct {
	value string
	ttl   time.Duration
}

type stubOTPStore struct {
	values map[string]otpEntry
}

func newStubOTPStore() *stubOTPStore {
	return &stubOTPStore{values: map[string]otpEntry{}}
}

func (s *stubOTPStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	s.values[key] = otpEntry{value: value.(string), ttl: ttl}
	return nil
}

func (s *stubOTPStore) Get(_ context.Context, key string) (string, error) {
	entry, ok := s.values[key]
	if !ok {
		return "", redislib.Nil
	}
	return entry.value, nil
}

func (s *stubOTPStore) GetDel(_ context.Context, key string) (string, error) {
	entry, ok := s.values[key]
	if !ok {
		return "", redislib.Nil
	}
	delete(s.values, key)
	return entry.value, nil
}

func (s *stubOTPStore) OTPKey(email string) string {
	return "otp:" + email
}

type stubMailer struct {
	sent []mailer.Message
}

func (m *stubMailer) Send(_ context.Context, msg mailer.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

type stubSession struct {
	userID  uuid.UUID
	refresh string
}

type stubSessionManager struct {
	sessions map[string]stubSession
}

func newStubSessionManager() *stubSessionManager {
	return &stubSessionManager{sessions: map[string]stubSession{}}
}

func (s *stubSessionManager) Generate(_ context.Context, accessID string, userID uuid.UUID) (string, error) {
	token := "refresh-" + uuid.NewString()
	s.sessions[accessID] = stubSession{userID: userID, refresh: token}
	return token, nil
}

func (s *stubSessionManager) Rotate(ctx context.Context, oldAccessID, provided string) (string, string, uuid.UUID, error) {
	current, ok := s.sessions[oldAccessID]
	if !ok || current.refresh != provided {
		return "", "", uuid.Nil, session.ErrInvalidRefreshToken
	}
	delete(s.sessions, oldAccessID)
	newID := session.NewAccessID()
	token, err := s.Generate(ctx, newID, current.userID)
	return newID, token, current.userID, err
}

func (s *stubSessionManager) Revoke(_ context.Context, accessID string) error {
	if accessID == "" {
		return errors.New("access id is required")
	}
	delete(s.sessions, accessID)
	return nil
}

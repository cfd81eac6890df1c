package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	iauth "github.com/davitran/hubsync/internal/auth"
	"github.com/davitran/hubsync/internal/database/testutil"
	"github.com/davitran/hubsync/internal/services"
	"github.com/davitran/hubsync/pkg/crypto"
	"github.com/davitran/hubsync/pkg/mail"
)

type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) last(t *testing.T) mail.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.messages)
	return m.messages[len(m.messages)-1]
}

type accountFixture struct {
	router *gin.Engine
	users  *services.UserService
	jwt    *iauth.JWTService
	mailer *recordingMailer
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users, err := services.NewUserService(testutil.MustOpenTestDB(t))
	require.NoError(t, err)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret", Issuer: "hubsync"})
	require.NoError(t, err)

	resetSvc, err := iauth.NewResetTokenService(iauth.ResetTokenConfig{Secret: "test-secret"})
	require.NoError(t, err)

	mailer := &recordingMailer{}

	handler, err := NewAccountHandler(users, jwtSvc, resetSvc, mailer, AccountConfig{
		BaseURL:             "http://localhost:8000",
		AllowedEmailDomains: []string{"gmail.com", "yahoo.com"},
	})
	require.NoError(t, err)

	router := gin.New()
	accounts := router.Group("/accounts")
	accounts.POST("/:action", handler.Dispatch)
	accounts.GET("/:action/:token", handler.DispatchWithToken)
	accounts.POST("/:action/:uid/:token", handler.DispatchWithUID)

	return &accountFixture{router: router, users: users, jwt: jwtSvc, mailer: mailer}
}

func (f *accountFixture) post(t *testing.T, path string, payload any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *accountFixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *accountFixture) register(t *testing.T, email, username string) {
	t.Helper()

	rec := f.post(t, "/accounts/register", gin.H{
		"email":      email,
		"username":   username,
		"first_name": "A",
		"last_name":  "B",
		"password":   "Abc12345!",
		"password2":  "Abc12345!",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func dataField(t *testing.T, rec *httptest.ResponseRecorder, key string) string {
	t.Helper()

	body := decodeBody(t, rec)
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "missing data envelope: %s", rec.Body.String())
	value, _ := data[key].(string)
	return value
}

func errorFields(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	body := decodeBody(t, rec)
	errInfo, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error envelope: %s", rec.Body.String())
	fields, _ := errInfo["fields"].(map[string]any)
	return fields
}

func TestRegisterIssuesTokensAndVerificationEmail(t *testing.T) {
	f := newAccountFixture(t)

	rec := f.post(t, "/accounts/register", gin.H{
		"email":      "ada@gmail.com",
		"username":   "ada_l",
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"password":   "Abc12345!",
		"password2":  "Abc12345!",
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, dataField(t, rec, "access_token"))
	assert.NotEmpty(t, dataField(t, rec, "refresh_token"))

	user, err := f.users.GetByEmail(context.Background(), "ada@gmail.com")
	require.NoError(t, err)
	assert.True(t, user.IsActive)
	assert.False(t, user.IsEmailVerified)
	require.NotNil(t, user.EmailVerificationToken)

	msg := f.mailer.last(t)
	assert.Equal(t, []string{"ada@gmail.com"}, msg.To)
	assert.Equal(t, "Verify your Email", msg.Subject)
	assert.Contains(t, msg.Body, "/accounts/verify-email/"+*user.EmailVerificationToken+"/")
}

func TestRegisterRejectsDisallowedDomain(t *testing.T) {
	f := newAccountFixture(t)

	rec := f.post(t, "/accounts/register", gin.H{
		"email":     "ada@example.com",
		"username":  "ada_l",
		"password":  "Abc12345!",
		"password2": "Abc12345!",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	fields := errorFields(t, rec)
	assert.Contains(t, fields, "email")
}

func TestRegisterTakenUsernameSuggestsAlternatives(t *testing.T) {
	f := newAccountFixture(t)
	f.register(t, "ada@gmail.com", "ada_l")

	rec := f.post(t, "/accounts/register", gin.H{
		"email":     "grace@gmail.com",
		"username":  "ada_l",
		"password":  "Abc12345!",
		"password2": "Abc12345!",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	fields := errorFields(t, rec)
	messages, ok := fields["username"].([]any)
	require.True(t, ok, rec.Body.String())
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "Suggested usernames: ada_l")
}

func TestRegisterWeakPassword(t *testing.T) {
	f := newAccountFixture(t)

	rec := f.post(t, "/accounts/register", gin.H{
		"email":     "ada@gmail.com",
		"username":  "ada_l",
		"password":  "nodigits!",
		"password2": "nodigits!",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	fields := errorFields(t, rec)
	assert.Contains(t, fields, "password")
}

func TestLoginSuccess(t *testing.T) {
	f := newAccountFixture(t)
	f.register(t, "ada@gmail.com", "ada_l")

	rec := f.post(t, "/accounts/login", gin.H{
		"email":    "ada@gmail.com",
		"password": "Abc12345!",
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Login successful.", dataField(t, rec, "message"))
	assert.NotEmpty(t, dataField(t, rec, "access_token"))
	assert.NotEmpty(t, dataField(t, rec, "refresh_token"))
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newAccountFixture(t)
	f.register(t, "ada@gmail.com", "ada_l")

	wrongPassword := f.post(t, "/accounts/login", gin.H{
		"email":    "ada@gmail.com",
		"password": "Wrong123!",
	}, nil)
	unknownEmail := f.post(t, "/accounts/login", gin.H{
		"email":    "nobody@gmail.com",
		"password": "Abc12345!",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, wrongPassword.Code)
	assert.Equal(t, http.StatusBadRequest, unknownEmail.Code)
	assert.JSONEq(t, wrongPassword.Body.String(), unknownEmail.Body.String())
	assert.Contains(t, wrongPassword.Body.String(), "Invalid email or password.")
}

func TestVerifyEmailRoundTrip(t *testing.T) {
	f := newAccountFixture(t)
	f.register(t, "ada@gmail.com", "ada_l")
	ctx := context.Background()

	user, err := f.users.GetByEmail(ctx, "ada@gmail.com")
	require.NoError(t, err)
	require.NotNil(t, user.EmailVerificationToken)

	rec := f.get(t, "/accounts/verify-email/"+*user.EmailVerificationToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	verified, err := f.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, verified.IsEmailVerified)
	assert.Nil(t, verified.EmailVerificationToken)

	// The consumed token no longer verifies anything.
	rec = f.get(t, "/accounts/verify-email/"+*user.EmailVerificationToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_TOKEN")
}

func TestVerifyEmailUnknownToken(t *testing.T) {
	f := newAccountFixture(t)

	rec := f.get(t, "/accounts/verify-email/not-a-real-token")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_TOKEN")
}

func TestResetPasswordFlow(t *testing.T) {
	f := newAccountFixture(t)
	f.register(t, "ada@gmail.com", "ada_l")
	ctx := context.Background()

	rec := f.post(t, "/accounts/reset-password", gin.H{"email": "ada@gmail.com"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Password reset link sent to your email.", dataField(t, rec, "message"))

	msg := f.mailer.last(t)
	assert.Equal(t, "Reset Password", msg.Subject)

	user, err := f.users.GetByEmail(ctx, "ada@gmail.com")
	require.NoError(t, err)

	// Rebuild the link segments rather than scraping the email body.
	uid := iauth.EncodeUID(user.ID)
	resetSvc, err := iauth.NewResetTokenService(iauth.ResetTokenConfig{Secret: "test-secret"})
	require.NoError(t, err)
	token := resetSvc.MakeToken(user)
	assert.Contains(t, msg.Body, fmt.Sprintf("/accounts/reset-password-confirm/%s/", uid))

	rec = f.post(t, "/accounts/reset-password-confirm/"+uid+"/"+token, gin.H{
		"new_password":     "Newpass1!",
		"confirm_password": "Newpass1!",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Password reset successful.", dataField(t, rec, "message"))

	updated, err := f.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, crypto.VerifyPassword(updated.Password, "Newpass1!"))

	// The password change invalidated the old token.
	rec = f.post(t, "/accounts/reset-password-confirm/"+uid+"/"+token, gin.H{
		"new_password":     "Another1!",
		"confirm_password": "Another1!",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_TOKEN")
}

func TestResetPasswordUnknownEmail(t *testing.T) {
	f := newAccountFixture(t)

	rec := f.post(t, "/accounts/reset-password", gin.H{"email": "nobody@gmail.com"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Account not found.")
}

func TestResetPasswordConfirmRejectsSamePassword(t *testing.T) {
	f := newAccountFixture(t)
	f.register(t, "ada@gmail.com", "ada_l")

	user, err := f.users.GetByEmail(context.Background(), "ada@gmail.com")
	require.NoError(t, err)

	resetSvc, err := iauth.NewResetTokenService(iauth.ResetTokenConfig{Secret: "test-secret"})
	require.NoError(t, err)

	rec := f.post(t, "/accounts/reset-password-confirm/"+iauth.EncodeUID(user.ID)+"/"+resetSvc.MakeToken(user), gin.H{
		"new_password":     "Abc12345!",
		"confirm_password": "Abc12345!",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "New password cannot be the same as the old password.")
}

func TestChangePassword(t *testing.T) {
	f := newAccountFixture(t)
	f.register(t, "ada@gmail.com", "ada_l")
	ctx := context.Background()

	user, err := f.users.GetByEmail(ctx, "ada@gmail.com")
	require.NoError(t, err)
	pair, err := f.jwt.IssuePair(user.ID)
	require.NoError(t, err)
	authz := map[string]string{"Authorization": "Bearer " + pair.AccessToken}

	rec := f.post(t, "/accounts/change-password", gin.H{
		"old_password":     "Abc12345!",
		"new_password":     "Newpass1!",
		"confirm_password": "Newpass1!",
	}, authz)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated, err := f.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, crypto.VerifyPassword(updated.Password, "Newpass1!"))
}

func TestChangePasswordWrongOldPasswordLeavesHashUnchanged(t *testing.T) {
	f := newAccountFixture(t)
	f.register(t, "ada@gmail.com", "ada_l")
	ctx := context.Background()

	user, err := f.users.GetByEmail(ctx, "ada@gmail.com")
	require.NoError(t, err)
	oldHash := user.Password
	pair, err := f.jwt.IssuePair(user.ID)
	require.NoError(t, err)

	rec := f.post(t, "/accounts/change-password", gin.H{
		"old_password":     "Wrong123!",
		"new_password":     "Newpass1!",
		"confirm_password": "Newpass1!",
	}, map[string]string{"Authorization": "Bearer " + pair.AccessToken})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Old password is not correct.")

	reloaded, err := f.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, oldHash, reloaded.Password)
}

func TestChangePasswordRequiresBearerToken(t *testing.T) {
	f := newAccountFixture(t)

	rec := f.post(t, "/accounts/change-password", gin.H{
		"old_password":     "Abc12345!",
		"new_password":     "Newpass1!",
		"confirm_password": "Newpass1!",
	}, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnknownActionRejected(t *testing.T) {
	f := newAccountFixture(t)

	rec := f.post(t, "/accounts/destroy-everything", gin.H{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ACCOUNT_ACTION_UNSUPPORTED")

	rec = f.get(t, "/accounts/frobnicate/some-token")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ACCOUNT_ACTION_UNSUPPORTED")
}

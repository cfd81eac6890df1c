package handlers

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/davitran/hubsync/internal/auth"
	"github.com/davitran/hubsync/internal/middleware"
	"github.com/davitran/hubsync/internal/models"
	"github.com/davitran/hubsync/internal/services"
	"github.com/davitran/hubsync/pkg/crypto"
	"github.com/davitran/hubsync/pkg/errors"
	"github.com/davitran/hubsync/pkg/logger"
	"github.com/davitran/hubsync/pkg/mail"
	"github.com/davitran/hubsync/pkg/metrics"
	"github.com/davitran/hubsync/pkg/response"
)

const verificationTokenBytes = 32

// AccountConfig carries the account workflow settings sourced from the
// application configuration.
type AccountConfig struct {
	// BaseURL is the externally reachable origin embedded in email links.
	BaseURL string
	// AllowedEmailDomains is the registration email domain allow-list.
	AllowedEmailDomains []string
}

// AccountHandler serves the account workflow: registration, login, email
// verification, and the password reset/change flows. Actions are routed
// through explicit dispatch tables keyed by the :action path segment.
type AccountHandler struct {
	users  *services.UserService
	jwt    *iauth.JWTService
	reset  *iauth.ResetTokenService
	mailer mail.Mailer
	cfg    AccountConfig

	postActions  map[string]gin.HandlerFunc
	tokenActions map[string]gin.HandlerFunc
	resetActions map[string]gin.HandlerFunc
}

// NewAccountHandler wires the account workflow against its collaborators.
func NewAccountHandler(users *services.UserService, jwt *iauth.JWTService, reset *iauth.ResetTokenService, mailer mail.Mailer, cfg AccountConfig) (*AccountHandler, error) {
	if users == nil || jwt == nil || reset == nil || mailer == nil {
		return nil, stderrors.New("account handler: all collaborators are required")
	}

	h := &AccountHandler{
		users:  users,
		jwt:    jwt,
		reset:  reset,
		mailer: mailer,
		cfg:    cfg,
	}

	h.postActions = map[string]gin.HandlerFunc{
		"register":        h.register,
		"login":           h.login,
		"reset-password":  h.resetPassword,
		"change-password": h.changePassword,
	}
	h.tokenActions = map[string]gin.HandlerFunc{
		"verify-email": h.verifyEmail,
	}
	h.resetActions = map[string]gin.HandlerFunc{
		"reset-password-confirm": h.resetPasswordConfirm,
	}

	return h, nil
}

// Dispatch routes POST /accounts/:action/.
func (h *AccountHandler) Dispatch(c *gin.Context) {
	h.dispatch(c, h.postActions)
}

// DispatchWithToken routes GET /accounts/:action/:token/.
func (h *AccountHandler) DispatchWithToken(c *gin.Context) {
	h.dispatch(c, h.tokenActions)
}

// DispatchWithUID routes POST /accounts/:action/:uid/:token/.
func (h *AccountHandler) DispatchWithUID(c *gin.Context) {
	h.dispatch(c, h.resetActions)
}

func (h *AccountHandler) dispatch(c *gin.Context, table map[string]gin.HandlerFunc) {
	action := strings.Trim(c.Param("action"), "/")

	handler, ok := table[action]
	if !ok {
		metrics.AccountActions.WithLabelValues(action, "unsupported").Inc()
		response.Error(c, errors.ErrUnsupportedAction)
		return
	}

	handler(c)

	result := "success"
	if c.Writer.Status() >= http.StatusBadRequest {
		result = "failure"
	}
	metrics.AccountActions.WithLabelValues(action, result).Inc()
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Username  string `json:"username" validate:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password" validate:"required"`
	Password2 string `json:"password2" validate:"required"`
}

// register creates a new unverified account, emails a verification link, and
// returns a session token pair. All policy failures are reported together,
// field by field.
func (h *AccountHandler) register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := c.Request.Context()
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)

	fields := make(map[string][]string)

	if err := services.ValidateEmailDomain(req.Email, h.cfg.AllowedEmailDomains); err != nil {
		fields["email"] = append(fields["email"], errors.FromError(err).Message)
	} else if taken, err := h.users.EmailTaken(ctx, req.Email); err != nil {
		response.Error(c, err)
		return
	} else if taken {
		fields["email"] = append(fields["email"], "An account with this email already exists.")
	}

	if err := services.ValidateUsernameFormat(req.Username); err != nil {
		fields["username"] = append(fields["username"], errors.FromError(err).Message)
	} else if taken, err := h.users.UsernameTaken(ctx, req.Username); err != nil {
		response.Error(c, err)
		return
	} else if taken {
		suggestions, err := h.users.SuggestUsernames(ctx, req.Username)
		if err != nil {
			response.Error(c, err)
			return
		}
		fields["username"] = append(fields["username"],
			fmt.Sprintf("This username is already taken. Suggested usernames: %s", strings.Join(suggestions, ", ")))
	}

	if !services.PasswordsMatch(req.Password, req.Password2) {
		fields["password"] = append(fields["password"], "Passwords do not match.")
	} else if err := services.ValidatePassword(req.Password); err != nil {
		fields["password"] = append(fields["password"], errors.FromError(err).Message)
	}

	if len(fields) > 0 {
		response.Error(c, errors.NewValidation(fields))
		return
	}

	user, err := h.users.Create(ctx, services.CreateUserInput{
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	})
	if err != nil {
		// Lost the race against a concurrent registration.
		switch {
		case stderrors.Is(err, services.ErrDuplicateEmail):
			response.Error(c, errors.NewValidation(map[string][]string{
				"email": {"An account with this email already exists."},
			}))
		case stderrors.Is(err, services.ErrDuplicateUsername):
			response.Error(c, errors.NewValidation(map[string][]string{
				"username": {"This username is already taken."},
			}))
		default:
			response.Error(c, err)
		}
		return
	}

	token, err := crypto.GenerateToken(verificationTokenBytes)
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}
	if err := h.users.SetVerificationToken(ctx, user, token); err != nil {
		response.Error(c, err)
		return
	}

	link := fmt.Sprintf("%s/accounts/verify-email/%s/", strings.TrimRight(h.cfg.BaseURL, "/"), token)
	h.sendMail(c, user.Email, "Verify your Email",
		fmt.Sprintf("Click the link below to verify your account:\n%s", link))

	pair, err := h.jwt.IssuePair(user.ID)
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message":       "User registered successfully. Check your email for verification.",
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// login authenticates by email and password. Every failure mode returns the
// same generic message so the endpoint is not an account oracle.
func (h *AccountHandler) login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := c.Request.Context()

	user, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil || !user.IsActive || !crypto.VerifyPassword(user.Password, req.Password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, errors.ErrInvalidCredentials)
		return
	}

	pair, err := h.jwt.IssuePair(user.ID)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	response.Success(c, http.StatusOK, gin.H{
		"message":       "Login successful.",
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

// verifyEmail consumes a pending verification token. Unknown tokens fail
// rather than silently succeeding.
func (h *AccountHandler) verifyEmail(c *gin.Context) {
	ctx := c.Request.Context()
	token := strings.Trim(c.Param("token"), "/")

	user, err := h.users.GetByVerificationToken(ctx, token)
	if err != nil {
		response.Error(c, errors.ErrInvalidToken)
		return
	}

	if err := h.users.MarkEmailVerified(ctx, user); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Email successfully verified. You can now log in.",
	})
}

type resetPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// resetPassword emails a reset link carrying the encoded account id and a
// stateless reset token.
func (h *AccountHandler) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := c.Request.Context()

	user, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		response.Error(c, errors.ErrAccountNotFound)
		return
	}

	uid := iauth.EncodeUID(user.ID)
	token := h.reset.MakeToken(user)
	link := fmt.Sprintf("%s/accounts/reset-password-confirm/%s/%s/", strings.TrimRight(h.cfg.BaseURL, "/"), uid, token)
	h.sendMail(c, user.Email, "Reset Password",
		fmt.Sprintf("Click the link to reset your password: %s", link))

	response.Success(c, http.StatusOK, gin.H{
		"message": "Password reset link sent to your email.",
	})
}

type resetPasswordConfirmRequest struct {
	NewPassword     string `json:"new_password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

// resetPasswordConfirm completes the reset flow. The token verifies against
// the account's current state, so it stops working once the password changes.
func (h *AccountHandler) resetPasswordConfirm(c *gin.Context) {
	var req resetPasswordConfirmRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := c.Request.Context()

	id, err := iauth.DecodeUID(c.Param("uid"))
	if err != nil {
		response.Error(c, errors.ErrInvalidToken)
		return
	}

	user, err := h.users.GetByID(ctx, id)
	if err != nil {
		response.Error(c, errors.ErrInvalidToken)
		return
	}

	if err := h.reset.CheckToken(user, strings.Trim(c.Param("token"), "/")); err != nil {
		response.Error(c, errors.ErrInvalidToken)
		return
	}

	if crypto.VerifyPassword(user.Password, req.NewPassword) {
		response.Error(c, errors.NewBadRequest("New password cannot be the same as the old password."))
		return
	}
	if !services.PasswordsMatch(req.NewPassword, req.ConfirmPassword) {
		response.Error(c, errors.NewBadRequest("Passwords do not match."))
		return
	}
	if err := services.ValidatePassword(req.NewPassword); err != nil {
		response.Error(c, err)
		return
	}

	if err := h.users.SetPassword(ctx, user, req.NewPassword); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Password reset successful.",
	})
}

type changePasswordRequest struct {
	OldPassword     string `json:"old_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

// changePassword replaces the password of the authenticated account. The
// route sits in the public group, so the bearer token is checked here.
func (h *AccountHandler) changePassword(c *gin.Context) {
	user, ok := h.authenticate(c)
	if !ok {
		return
	}

	var req changePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if !crypto.VerifyPassword(user.Password, req.OldPassword) {
		response.Error(c, errors.NewBadRequest("Old password is not correct."))
		return
	}
	if !services.PasswordsMatch(req.NewPassword, req.ConfirmPassword) {
		response.Error(c, errors.NewBadRequest("Password and confirm password do not match."))
		return
	}
	if req.NewPassword == req.OldPassword {
		response.Error(c, errors.NewBadRequest("New password must be different from the old password."))
		return
	}
	if err := services.ValidatePassword(req.NewPassword); err != nil {
		response.Error(c, err)
		return
	}

	if err := h.users.SetPassword(c.Request.Context(), user, req.NewPassword); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Password changed successfully.",
	})
}

func (h *AccountHandler) authenticate(c *gin.Context) (*models.User, bool) {
	token, ok := middleware.BearerToken(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return nil, false
	}

	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil {
		c.Header("WWW-Authenticate", "Bearer")
		response.Error(c, errors.ErrUnauthorized)
		return nil, false
	}

	user, err := h.users.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return nil, false
	}

	return user, true
}

// sendMail delivers a notification without failing the request. Delivery
// problems are logged and the workflow continues.
func (h *AccountHandler) sendMail(c *gin.Context, to, subject, body string) {
	err := h.mailer.Send(c.Request.Context(), mail.Message{
		To:      []string{to},
		Subject: subject,
		Body:    body,
	})
	if err != nil && !stderrors.Is(err, mail.ErrSMTPDisabled) {
		logger.WithModule("accounts").Warn("send mail",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}

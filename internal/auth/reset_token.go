package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/davitran/hubsync/internal/models"
)

// DefaultResetTokenTTL is the fallback validity window for reset tokens.
const DefaultResetTokenTTL = time.Hour

// ErrResetTokenInvalid covers forged, malformed, expired, and stale tokens.
var ErrResetTokenInvalid = errors.New("reset token: invalid or expired")

// ResetTokenService issues and checks stateless password reset tokens.
//
// A token is an HMAC over the account's current state (id, password hash,
// email) and an issuance timestamp. Nothing is stored: checking recomputes
// the signature from the account as it is now, so changing the password
// invalidates every previously issued token. That derivation is deliberate,
// not an optimisation.
type ResetTokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// ResetTokenConfig bundles construction parameters for ResetTokenService.
type ResetTokenConfig struct {
	Secret string
	TTL    time.Duration
	Clock  func() time.Time
}

// NewResetTokenService builds a ResetTokenService.
func NewResetTokenService(cfg ResetTokenConfig) (*ResetTokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("reset token: secret must be provided")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &ResetTokenService{
		secret: []byte(cfg.Secret),
		ttl:    ttl,
		now:    now,
	}, nil
}

// EncodeUID returns the URL-safe reversible encoding of a numeric account id.
func EncodeUID(id uint) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatUint(uint64(id), 10)))
}

// DecodeUID reverses EncodeUID.
func DecodeUID(encoded string) (uint, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return 0, fmt.Errorf("reset token: decode uid: %w", err)
	}

	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("reset token: parse uid: %w", err)
	}

	return uint(id), nil
}

// MakeToken issues a reset token bound to the account's current state.
func (s *ResetTokenService) MakeToken(user *models.User) string {
	ts := s.now().Unix()
	return fmt.Sprintf("%s-%s", strconv.FormatInt(ts, 36), s.signature(user, ts))
}

// CheckToken verifies a token against the account's current state and the
// validity window.
func (s *ResetTokenService) CheckToken(user *models.User, token string) error {
	tsPart, sigPart, found := strings.Cut(strings.TrimSpace(token), "-")
	if !found {
		return ErrResetTokenInvalid
	}

	ts, err := strconv.ParseInt(tsPart, 36, 64)
	if err != nil {
		return ErrResetTokenInvalid
	}

	now := s.now()
	issued := time.Unix(ts, 0)
	if issued.After(now) || now.Sub(issued) > s.ttl {
		return ErrResetTokenInvalid
	}

	expected := s.signature(user, ts)
	if !hmac.Equal([]byte(expected), []byte(sigPart)) {
		return ErrResetTokenInvalid
	}

	return nil
}

func (s *ResetTokenService) signature(user *models.User, ts int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%d|%s|%s|%d", user.ID, user.Password, user.Email, ts)
	return hex.EncodeToString(mac.Sum(nil))
}

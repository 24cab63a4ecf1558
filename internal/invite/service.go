// Package invite issues INVITE/RESET links and redeems them.
package invite

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"backoffice/backend/internal/apperr"
	"backoffice/backend/internal/audit"
	credentialdomain "backoffice/backend/internal/credential/domain"
	"backoffice/backend/internal/notify"
	userdomain "backoffice/backend/internal/user/domain"
	userrepo "backoffice/backend/internal/user/repository"
)

// ErrDeliveryFailed is returned when the token was stored but its notification could not be sent.
// The token stays valid; a new request issues another one.
var ErrDeliveryFailed = errors.New("notification delivery failed")

// SetPasswordPath is the front-end route that receives the token query parameter.
const SetPasswordPath = "/definir-senha"

const (
	DefaultInviteTTL = 24 * time.Hour
	DefaultResetTTL  = 2 * time.Hour
)

// TokenStore is the subset of credential.Store used by the service.
type TokenStore interface {
	Issue(ctx context.Context, userID string, purpose credentialdomain.Purpose, ttl time.Duration) (string, *credentialdomain.Token, error)
	Consume(ctx context.Context, plaintext string) (*userdomain.User, error)
	Lookup(ctx context.Context, plaintext string) (*credentialdomain.Token, error)
}

// UserRepo is the minimal user repository needed by the service.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
}

// RequestResult describes an issued token. It never carries the plaintext.
type RequestResult struct {
	TokenID   string
	UserID    string
	Purpose   credentialdomain.Purpose
	ExpiresAt time.Time
	Delivered bool
}

// Service implements invite and password-reset requests and token redemption.
type Service struct {
	tokens    TokenStore
	users     UserRepo
	notifier  notify.Notifier
	audit     audit.AuditLogger
	inviteTTL time.Duration
	resetTTL  time.Duration
	now       func() time.Time
}

// NewService returns a Service. Non-positive TTLs select DefaultInviteTTL/DefaultResetTTL;
// auditLogger may be nil.
func NewService(tokens TokenStore, users UserRepo, notifier notify.Notifier, auditLogger audit.AuditLogger, inviteTTL, resetTTL time.Duration) *Service {
	if inviteTTL <= 0 {
		inviteTTL = DefaultInviteTTL
	}
	if resetTTL <= 0 {
		resetTTL = DefaultResetTTL
	}
	return &Service{
		tokens:    tokens,
		users:     users,
		notifier:  notifier,
		audit:     auditLogger,
		inviteTTL: inviteTTL,
		resetTTL:  resetTTL,
		now:       time.Now,
	}
}

// Request issues a purpose token for user and sends the link built on baseURL. When delivery
// fails the result is still returned, together with an error wrapping ErrDeliveryFailed.
func (s *Service) Request(ctx context.Context, user *userdomain.User, purpose credentialdomain.Purpose, ttl time.Duration, baseURL string) (*RequestResult, error) {
	if user == nil || user.ID == "" {
		return nil, apperr.Validation("user is required")
	}
	if err := validateBaseURL(baseURL); err != nil {
		return nil, err
	}
	plaintext, tok, err := s.tokens.Issue(ctx, user.ID, purpose, ttl)
	if err != nil {
		return nil, err
	}
	res := &RequestResult{TokenID: tok.ID, UserID: user.ID, Purpose: tok.Purpose, ExpiresAt: tok.ExpiresAt}
	s.logEvent(ctx, user.ID, audit.ActionTokenIssued, map[string]string{"purpose": string(purpose), "token_id": tok.ID})

	kind := notify.KindReset
	if purpose == credentialdomain.PurposeInvite {
		kind = notify.KindInvite
	}
	msg, err := notify.RenderLinkMessage(kind, user.Email, notify.LinkData{
		Name:     user.Name,
		Link:     BuildLink(baseURL, plaintext),
		TTLHours: ttlHours(ttl),
	})
	if err == nil {
		if s.notifier == nil {
			err = notify.ErrNotConfigured
		} else {
			err = s.notifier.Send(ctx, msg)
		}
	}
	if err != nil {
		log.Printf("invite: deliver %s token %s: %v", purpose, tok.ID, err)
		s.logEvent(ctx, user.ID, audit.ActionNotificationFailed, map[string]string{"purpose": string(purpose), "token_id": tok.ID})
		return res, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	res.Delivered = true
	return res, nil
}

// Redeem consumes plaintext and returns the account it authorizes one credential change for.
// It does not change any credential itself.
func (s *Service) Redeem(ctx context.Context, plaintext string) (*userdomain.User, error) {
	u, err := s.tokens.Consume(ctx, plaintext)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, u.ID, audit.ActionTokenRedeemed, nil)
	return u, nil
}

// Owner returns the account a token was issued to without consuming it. The token's
// expiry and use are not checked; the user is nil when the account no longer exists.
func (s *Service) Owner(ctx context.Context, plaintext string) (*userdomain.User, error) {
	t, err := s.tokens.Lookup(ctx, plaintext)
	if err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, t.UserID)
}

// Invite creates the account for email when it does not exist (unverified, no password) and
// sends it an INVITE link.
func (s *Service) Invite(ctx context.Context, email, name, baseURL string) (*RequestResult, error) {
	email = userdomain.NormalizeEmail(email)
	if err := userdomain.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := validateBaseURL(baseURL); err != nil {
		return nil, err
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		if u, err = s.createUser(ctx, email, name); err != nil {
			return nil, err
		}
	}
	return s.Request(ctx, u, credentialdomain.PurposeInvite, s.inviteTTL, baseURL)
}

func (s *Service) createUser(ctx context.Context, email, name string) (*userdomain.User, error) {
	now := s.now().UTC()
	u := &userdomain.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	err := s.users.Create(ctx, u)
	if errors.Is(err, userrepo.ErrDuplicateEmail) {
		// Concurrent invite for the same address; use the row that won.
		existing, gerr := s.users.GetByEmail(ctx, email)
		if gerr != nil {
			return nil, gerr
		}
		if existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// RequestReset sends a RESET link to email. An unknown address yields (nil, nil) and nothing
// is sent, so callers cannot tell registered addresses apart.
func (s *Service) RequestReset(ctx context.Context, email, baseURL string) (*RequestResult, error) {
	email = userdomain.NormalizeEmail(email)
	if err := userdomain.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := validateBaseURL(baseURL); err != nil {
		return nil, err
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, nil
	}
	return s.Request(ctx, u, credentialdomain.PurposeReset, s.resetTTL, baseURL)
}

// BuildLink returns the set-password URL for plaintext under baseURL.
func BuildLink(baseURL, plaintext string) string {
	return strings.TrimRight(baseURL, "/") + SetPasswordPath + "?token=" + url.QueryEscape(plaintext)
}

func validateBaseURL(baseURL string) error {
	if strings.TrimSpace(baseURL) == "" {
		return apperr.Validation("base url is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.Validation("base url %q must be an absolute http(s) url", baseURL)
	}
	return nil
}

// ttlHours rounds ttl up to whole hours for the email wording.
func ttlHours(ttl time.Duration) int {
	h := int(ttl / time.Hour)
	if ttl%time.Hour > 0 {
		h++
	}
	return h
}

func (s *Service) logEvent(ctx context.Context, userID, action string, metadata map[string]string) {
	if s.audit == nil {
		return
	}
	s.audit.LogEvent(ctx, userID, action, audit.ResourceCredentialToken, metadata)
}

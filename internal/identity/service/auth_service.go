package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"backoffice/backend/internal/apperr"
	"backoffice/backend/internal/audit"
	"backoffice/backend/internal/mfa"
	mfadomain "backoffice/backend/internal/mfa/domain"
	mfarepo "backoffice/backend/internal/mfa/repository"
	"backoffice/backend/internal/policy/engine"
	"backoffice/backend/internal/security"
	userdomain "backoffice/backend/internal/user/domain"
)

// Sentinel errors for auth service; handler maps them to gRPC codes.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrInvalidCode        = errors.New("invalid verification code")
	ErrSetupNotStarted    = errors.New("two-factor setup not started")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("credential state changed concurrently")
	ErrTooManyAttempts    = errors.New("too many invalid codes, try again later")
)

// bcryptMaxPasswordBytes is the longest input bcrypt accepts.
const bcryptMaxPasswordBytes = 72

// Principal is the authenticated caller. The transport layer builds it from a validated session
// token and passes it explicitly.
type Principal struct {
	UserID string
}

// LoginResult holds either a session (MFARequired false) or a pending second-factor challenge.
type LoginResult struct {
	UserID             string
	SessionToken       string
	ExpiresAt          time.Time
	MFARequired        bool
	ChallengeID        string
	ChallengeExpiresAt time.Time
}

// TwoFactorSetup is returned by BeginTwoFactorSetup. Secret and URI are empty when AlreadyEnabled.
type TwoFactorSetup struct {
	AlreadyEnabled bool
	Secret         string
	URI            string
}

// UserRepo is the user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	SetPassword(ctx context.Context, userID, passwordHash string, at time.Time) (bool, error)
	SetPendingTwoFactorSecret(ctx context.Context, userID, secret string, at time.Time) (bool, error)
	EnableTwoFactor(ctx context.Context, userID, secret string, at time.Time) (bool, error)
	DisableTwoFactor(ctx context.Context, userID, secret string, at time.Time) (bool, error)
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

// TokenRedeemer redeems INVITE/RESET tokens (invite.Service).
type TokenRedeemer interface {
	Owner(ctx context.Context, plaintext string) (*userdomain.User, error)
	Redeem(ctx context.Context, plaintext string) (*userdomain.User, error)
}

// Config holds the auth service tunables.
type Config struct {
	TOTPIssuer   string
	ChallengeTTL time.Duration
	MaxAttempts  int
}

// AuthService implements password login, the TOTP second factor, 2FA enrollment and password setting.
type AuthService struct {
	userRepo   UserRepo
	redeemer   TokenRedeemer
	challenges mfarepo.Repository
	totp       *mfa.TOTP
	hasher     *security.Hasher
	tokens     *security.TokenProvider
	policy     engine.Evaluator
	audit      audit.AuditLogger
	cfg        Config
	now        func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies. policy and auditLogger may be nil.
func NewAuthService(
	userRepo UserRepo,
	redeemer TokenRedeemer,
	challenges mfarepo.Repository,
	totp *mfa.TOTP,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	policy engine.Evaluator,
	auditLogger audit.AuditLogger,
	cfg Config,
) *AuthService {
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = mfarepo.DefaultChallengeTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = mfarepo.DefaultMaxAttempts
	}
	if cfg.TOTPIssuer == "" {
		cfg.TOTPIssuer = "Backoffice"
	}
	return &AuthService{
		userRepo:   userRepo,
		redeemer:   redeemer,
		challenges: challenges,
		totp:       totp,
		hasher:     hasher,
		tokens:     tokens,
		policy:     policy,
		audit:      auditLogger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// WithClock replaces the clock used for TOTP steps, challenge expiry and timestamps.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// Login verifies email and password. Accounts with 2FA enabled get a challenge instead of a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = userdomain.NormalizeEmail(email)
	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.HasPassword() {
		s.hasher.CompareDummy([]byte(password))
		userID := ""
		if u != nil {
			userID = u.ID
		}
		s.logEvent(ctx, userID, audit.ActionLoginFailure, audit.ResourceSession, map[string]string{"reason": "unknown_or_no_password"})
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(u.PasswordHash, []byte(password)); err != nil {
		s.logEvent(ctx, u.ID, audit.ActionLoginFailure, audit.ResourceSession, map[string]string{"reason": "password_mismatch"})
		return nil, ErrInvalidCredentials
	}
	if !u.EmailVerified {
		s.logEvent(ctx, u.ID, audit.ActionLoginFailure, audit.ResourceSession, map[string]string{"reason": "email_not_verified"})
		return nil, ErrEmailNotVerified
	}
	if u.TwoFactorEnabled {
		return s.beginChallenge(ctx, u)
	}
	return s.issueSession(ctx, u, "password")
}

func (s *AuthService) beginChallenge(ctx context.Context, u *userdomain.User) (*LoginResult, error) {
	id, err := security.GenerateOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("generate challenge: %w", err)
	}
	c := &mfadomain.LoginChallenge{
		ID:        id,
		UserID:    u.ID,
		Email:     u.Email,
		ExpiresAt: s.now().UTC().Add(s.cfg.ChallengeTTL),
	}
	if err := s.challenges.Create(ctx, c); err != nil {
		return nil, err
	}
	s.logEvent(ctx, u.ID, audit.ActionLoginMFARequired, audit.ResourceSession, nil)
	return &LoginResult{UserID: u.ID, MFARequired: true, ChallengeID: c.ID, ChallengeExpiresAt: c.ExpiresAt}, nil
}

// CompleteSecondFactor verifies code for the account held by challengeID and issues the session.
// Wrong codes are counted; the challenge is dropped after Config.MaxAttempts failures.
func (s *AuthService) CompleteSecondFactor(ctx context.Context, challengeID, code string) (*LoginResult, error) {
	if challengeID == "" {
		return nil, ErrUnauthorized
	}
	c, err := s.challenges.GetByID(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrUnauthorized
	}
	u, err := s.userRepo.GetByID(ctx, c.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.TwoFactorEnabled || u.TwoFactorSecret == "" {
		_, _ = s.challenges.Delete(ctx, challengeID)
		return nil, ErrUnauthorized
	}
	if !s.totp.Verify(u.TwoFactorSecret, code, s.now()) {
		exceeded, err := s.challenges.RecordFailure(ctx, challengeID, s.cfg.MaxAttempts)
		if err != nil {
			log.Printf("auth: record mfa failure for user %s: %v", u.ID, err)
		}
		s.logEvent(ctx, u.ID, audit.ActionMFAFailure, audit.ResourceSession, map[string]string{"attempts_exceeded": fmt.Sprint(exceeded)})
		return nil, ErrInvalidCode
	}
	deleted, err := s.challenges.Delete(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if !deleted {
		// Completed by a concurrent request.
		return nil, ErrUnauthorized
	}
	s.logEvent(ctx, u.ID, audit.ActionMFASuccess, audit.ResourceSession, nil)
	return s.issueSession(ctx, u, "totp")
}

func (s *AuthService) issueSession(ctx context.Context, u *userdomain.User, method string) (*LoginResult, error) {
	if err := s.userRepo.UpdateLastLogin(ctx, u.ID, s.now().UTC()); err != nil {
		return nil, err
	}
	token, expiresAt, err := s.tokens.IssueSession(u.ID, u.Email, s.evaluate(ctx, u).Roles)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	s.logEvent(ctx, u.ID, audit.ActionLoginSuccess, audit.ResourceSession, map[string]string{"method": method})
	return &LoginResult{UserID: u.ID, SessionToken: token, ExpiresAt: expiresAt}, nil
}

// BeginTwoFactorSetup provisions a TOTP secret for the caller without enabling it. A pending
// secret is returned again; an enabled account gets AlreadyEnabled and keeps its secret.
func (s *AuthService) BeginTwoFactorSetup(ctx context.Context, p Principal) (*TwoFactorSetup, error) {
	u, err := s.loadPrincipal(ctx, p)
	if err != nil {
		return nil, err
	}
	if u.TwoFactorEnabled && u.TwoFactorSecret != "" {
		return &TwoFactorSetup{AlreadyEnabled: true}, nil
	}
	if pending := u.PendingTwoFactorSecret(); pending != "" {
		return s.setupFor(u, pending), nil
	}
	secret, err := s.totp.Provision()
	if err != nil {
		return nil, fmt.Errorf("provision secret: %w", err)
	}
	applied, err := s.userRepo.SetPendingTwoFactorSecret(ctx, u.ID, secret, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !applied {
		// Another request provisioned first; hand out its secret.
		u, err = s.loadPrincipal(ctx, p)
		if err != nil {
			return nil, err
		}
		if u.TwoFactorEnabled && u.TwoFactorSecret != "" {
			return &TwoFactorSetup{AlreadyEnabled: true}, nil
		}
		if pending := u.PendingTwoFactorSecret(); pending != "" {
			return s.setupFor(u, pending), nil
		}
		return nil, ErrConflict
	}
	s.logEvent(ctx, u.ID, audit.ActionMFASetupStarted, audit.ResourceTwoFactor, nil)
	return s.setupFor(u, secret), nil
}

func (s *AuthService) setupFor(u *userdomain.User, secret string) *TwoFactorSetup {
	return &TwoFactorSetup{Secret: secret, URI: s.totp.URI(s.cfg.TOTPIssuer, u.Email, secret)}
}

// ConfirmTwoFactorEnable enables 2FA once code matches the pending secret.
func (s *AuthService) ConfirmTwoFactorEnable(ctx context.Context, p Principal, code string) error {
	u, err := s.loadPrincipal(ctx, p)
	if err != nil {
		return err
	}
	secret := u.PendingTwoFactorSecret()
	if secret == "" {
		return ErrSetupNotStarted
	}
	if err := s.checkManageLock(ctx, u.ID); err != nil {
		return err
	}
	if !s.totp.Verify(secret, code, s.now()) {
		exceeded := s.recordManageFailure(ctx, u)
		s.logEvent(ctx, u.ID, audit.ActionMFAFailure, audit.ResourceTwoFactor, map[string]string{"step": "enable", "attempts_exceeded": fmt.Sprint(exceeded)})
		return ErrInvalidCode
	}
	s.clearManageFailures(ctx, u.ID)
	applied, err := s.userRepo.EnableTwoFactor(ctx, u.ID, secret, s.now().UTC())
	if err != nil {
		return err
	}
	if !applied {
		return ErrConflict
	}
	s.logEvent(ctx, u.ID, audit.ActionMFAEnabled, audit.ResourceTwoFactor, nil)
	return nil
}

// DisableTwoFactor clears the flag and the secret together after verifying code against the
// current secret. A pending (unconfirmed) setup is cancelled the same way.
func (s *AuthService) DisableTwoFactor(ctx context.Context, p Principal, code string) error {
	u, err := s.loadPrincipal(ctx, p)
	if err != nil {
		return err
	}
	if err := s.checkManageLock(ctx, u.ID); err != nil {
		return err
	}
	if u.TwoFactorSecret == "" || !s.totp.Verify(u.TwoFactorSecret, code, s.now()) {
		exceeded := s.recordManageFailure(ctx, u)
		s.logEvent(ctx, u.ID, audit.ActionMFAFailure, audit.ResourceTwoFactor, map[string]string{"step": "disable", "attempts_exceeded": fmt.Sprint(exceeded)})
		return ErrInvalidCode
	}
	s.clearManageFailures(ctx, u.ID)
	applied, err := s.userRepo.DisableTwoFactor(ctx, u.ID, u.TwoFactorSecret, s.now().UTC())
	if err != nil {
		return err
	}
	if !applied {
		return ErrConflict
	}
	s.logEvent(ctx, u.ID, audit.ActionMFADisabled, audit.ResourceTwoFactor, nil)
	return nil
}

// Wrong codes on the enable/disable endpoints are counted per account in the challenge store.
// After MaxAttempts failures the account is locked out of both for ChallengeTTL.
func manageFailuresKey(userID string) string { return "2fa-manage:" + userID }
func manageLockKey(userID string) string     { return "2fa-lock:" + userID }

func (s *AuthService) checkManageLock(ctx context.Context, userID string) error {
	lock, err := s.challenges.GetByID(ctx, manageLockKey(userID))
	if err != nil {
		return err
	}
	if lock != nil {
		return ErrTooManyAttempts
	}
	return nil
}

func (s *AuthService) recordManageFailure(ctx context.Context, u *userdomain.User) bool {
	key := manageFailuresKey(u.ID)
	expiresAt := s.now().Add(s.cfg.ChallengeTTL)
	counter, err := s.challenges.GetByID(ctx, key)
	if err == nil && counter == nil {
		err = s.challenges.Create(ctx, &mfadomain.LoginChallenge{ID: key, UserID: u.ID, Email: u.Email, ExpiresAt: expiresAt})
	}
	exceeded := false
	if err == nil {
		exceeded, err = s.challenges.RecordFailure(ctx, key, s.cfg.MaxAttempts)
	}
	if err == nil && exceeded {
		err = s.challenges.Create(ctx, &mfadomain.LoginChallenge{ID: manageLockKey(u.ID), UserID: u.ID, Email: u.Email, ExpiresAt: expiresAt})
	}
	if err != nil {
		log.Printf("auth: record 2fa management failure for user %s: %v", u.ID, err)
	}
	return exceeded
}

func (s *AuthService) clearManageFailures(ctx context.Context, userID string) {
	if _, err := s.challenges.Delete(ctx, manageFailuresKey(userID)); err != nil {
		log.Printf("auth: clear 2fa management failures for user %s: %v", userID, err)
	}
}

// SetPassword stores a new password digest for user and marks the email verified. user is the
// account returned by a redeemed INVITE/RESET token.
func (s *AuthService) SetPassword(ctx context.Context, user *userdomain.User, newPassword string) error {
	if user == nil || user.ID == "" {
		return apperr.Validation("user is required")
	}
	if err := s.validatePassword(ctx, user, newPassword); err != nil {
		return err
	}
	return s.storePassword(ctx, user, newPassword)
}

// RedeemAndSetPassword validates newPassword against the policy of the token's account, then
// redeems token and sets the password. A rejected password leaves the token unused.
func (s *AuthService) RedeemAndSetPassword(ctx context.Context, token, newPassword string) (*userdomain.User, error) {
	if err := s.validatePassword(ctx, nil, newPassword); err != nil {
		return nil, err
	}
	owner, err := s.redeemer.Owner(ctx, token)
	if err != nil {
		return nil, err
	}
	if owner != nil {
		if err := s.validatePassword(ctx, owner, newPassword); err != nil {
			return nil, err
		}
	}
	u, err := s.redeemer.Redeem(ctx, token)
	if err != nil {
		return nil, err
	}
	// The account read before consuming may be gone or replaced by the time Redeem returns.
	if owner == nil || owner.ID != u.ID {
		if err := s.validatePassword(ctx, u, newPassword); err != nil {
			return nil, err
		}
	}
	if err := s.storePassword(ctx, u, newPassword); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *AuthService) storePassword(ctx context.Context, u *userdomain.User, password string) error {
	hash, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	applied, err := s.userRepo.SetPassword(ctx, u.ID, hash, s.now().UTC())
	if err != nil {
		return err
	}
	if !applied {
		return ErrUnauthorized
	}
	u.PasswordHash = hash
	u.EmailVerified = true
	s.logEvent(ctx, u.ID, audit.ActionPasswordSet, audit.ResourcePassword, nil)
	return nil
}

func (s *AuthService) validatePassword(ctx context.Context, u *userdomain.User, password string) error {
	minLen := s.evaluate(ctx, u).MinPasswordLength
	if utf8.RuneCountInString(password) < minLen {
		return apperr.Validation("password must be at least %d characters", minLen)
	}
	if len(password) > bcryptMaxPasswordBytes {
		return apperr.Validation("password must be at most %d bytes", bcryptMaxPasswordBytes)
	}
	return nil
}

// evaluate returns the credential policy for u, falling back to defaults without an engine.
func (s *AuthService) evaluate(ctx context.Context, u *userdomain.User) engine.CredentialPolicy {
	out := engine.CredentialPolicy{MinPasswordLength: engine.PasswordMinLengthFloor}
	if s.policy == nil {
		return out
	}
	p, err := s.policy.EvaluateCredentials(ctx, u)
	if err != nil {
		log.Printf("auth: policy evaluation failed, using defaults: %v", err)
		return out
	}
	if p.MinPasswordLength > out.MinPasswordLength {
		out.MinPasswordLength = p.MinPasswordLength
	}
	out.Roles = p.Roles
	return out
}

func (s *AuthService) loadPrincipal(ctx context.Context, p Principal) (*userdomain.User, error) {
	if p.UserID == "" {
		return nil, ErrUnauthorized
	}
	u, err := s.userRepo.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUnauthorized
	}
	return u, nil
}

func (s *AuthService) logEvent(ctx context.Context, userID, action, resource string, metadata map[string]string) {
	if s.audit == nil {
		return
	}
	s.audit.LogEvent(ctx, userID, action, resource, metadata)
}

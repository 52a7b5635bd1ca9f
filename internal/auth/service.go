package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"cambria.dev/dashboard/internal/obs"
)

// CodeLedger keeps one-time password reset codes.
type CodeLedger interface {
	Store(ctx context.Context, email, code, userID string) error
	Redeem(ctx context.Context, email, code string) (userID string, ok bool, err error)
}

// Mailer delivers password reset codes.
type Mailer interface {
	SendResetCode(ctx context.Context, to, name, code string) error
}

// Service handles sign-in, session verification and password recovery.
type Service struct {
	users   UserStore
	tokens  *Tokens
	codes   CodeLedger
	mailer  Mailer
	now     func() time.Time
	newCode func() (string, error)
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithCodeGenerator overrides reset code generation (useful for tests).
func WithCodeGenerator(fn func() (string, error)) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.newCode = fn
		}
	}
}

// NewService constructs Service. mailer may be nil, in which case codes are only logged at debug level.
func NewService(users UserStore, tokens *Tokens, codes CodeLedger, mailer Mailer, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if tokens == nil {
		return nil, errors.New("token signer is required")
	}
	if codes == nil {
		return nil, errors.New("reset code ledger is required")
	}
	svc := &Service{
		users:   users,
		tokens:  tokens,
		codes:   codes,
		mailer:  mailer,
		now:     time.Now,
		newCode: sixDigitCode,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Session is an issued session token.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

// Login checks credentials and issues a session. Every failure is ErrUnauthorized
// so callers cannot tell which check failed.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, ErrUnauthorized
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrUnauthorized
		}
		return Session{}, err
	}
	if user.Status != StatusActive || !VerifyPassword(user.PasswordHash, user.PasswordSalt, password) {
		return Session{}, ErrUnauthorized
	}
	now := s.now().UTC()
	user, err = s.users.Update(ctx, user.ID, UserUpdate{LastLoginAt: &now})
	if err != nil {
		return Session{}, err
	}
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Authenticate resolves a session token to an active user.
func (s *Service) Authenticate(ctx context.Context, token string) (User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return User{}, ErrInvalidToken
	}
	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrInvalidToken
		}
		return User{}, err
	}
	if user.Status != StatusActive {
		return User{}, ErrInvalidToken
	}
	return user, nil
}

// ForgotPassword issues and mails a reset code when email belongs to an active user.
// Unknown or inactive accounts return nil as well, so responses do not reveal registration.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if user.Status != StatusActive {
		return nil
	}
	code, err := s.newCode()
	if err != nil {
		return fmt.Errorf("generate reset code: %w", err)
	}
	if err := s.codes.Store(ctx, email, code, user.ID); err != nil {
		return fmt.Errorf("store reset code: %w", err)
	}
	obs.ObserveResetCode("issued")
	if s.mailer == nil {
		obs.Logger().Debug("reset code issued without mailer", zap.String("email", email))
		return nil
	}
	if err := s.mailer.SendResetCode(ctx, user.Email, user.Name, code); err != nil {
		return fmt.Errorf("send reset code: %w", err)
	}
	return nil
}

// ResetPassword redeems code for email and sets newPassword on the owning user.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" || newPassword == "" {
		return fmt.Errorf("%w: email, code and new password are required", ErrInvalidInput)
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	userID, ok, err := s.codes.Redeem(ctx, email, code)
	if err != nil {
		return err
	}
	if !ok {
		obs.ObserveResetCode("rejected")
		return ErrInvalidCode
	}
	hash, salt, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if _, err := s.users.Update(ctx, userID, UserUpdate{PasswordHash: &hash, PasswordSalt: &salt}); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidCode
		}
		return err
	}
	obs.ObserveResetCode("redeemed")
	return nil
}

func sixDigitCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

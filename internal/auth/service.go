package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nerrad567/homedash-core/internal/session"
)

// Tokens is what a successful sign-in or refresh hands back to a client.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	SessionID    string    `json:"-"`
	User         *User     `json:"user"`
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// LoginObserver is notified of sign-in outcomes (metrics).
type LoginObserver interface {
	LoginAttempt(success bool)
}

// Service is the homedash identity provider: sign in with email and
// password, refresh, sign out, and notify subscribers when a session ends.
// It implements session.Provider.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Service struct {
	users    UserRepository
	tokens   TokenRepository
	cfg      ServiceConfig
	logger   *slog.Logger
	observer LoginObserver

	mu     sync.Mutex
	subs   map[int]func(sessionID string)
	nextID int
}

// NewService builds a Service. logger may be nil.
func NewService(users UserRepository, tokens TokenRepository, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 24 * time.Hour
	}
	return &Service{
		users:  users,
		tokens: tokens,
		cfg:    cfg,
		logger: logger,
		subs:   make(map[int]func(string)),
	}
}

// SetObserver installs a login observer.
func (s *Service) SetObserver(o LoginObserver) {
	s.observer = o
}

// SignIn checks email and password and opens a new session.
//
// Unknown email, wrong password and inactive account all return
// ErrInvalidCredentials so a caller cannot tell which accounts exist.
func (s *Service) SignIn(ctx context.Context, email, password, deviceInfo string) (*Tokens, error) {
	tokens, err := s.signIn(ctx, email, password, deviceInfo)
	if s.observer != nil {
		s.observer.LoginAttempt(err == nil)
	}
	return tokens, err
}

func (s *Service) signIn(ctx context.Context, email, password, deviceInfo string) (*Tokens, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			burnPasswordCheck(password)
			s.logger.Info("sign-in failed", "reason", "unknown email")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unreadable", "user_id", user.ID, "error", err)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		s.logger.Info("sign-in failed", "reason", "wrong password", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		s.logger.Info("sign-in failed", "reason", "inactive", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	raw, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	rt := &RefreshToken{
		UserID:     user.ID,
		TokenHash:  HashToken(raw),
		DeviceInfo: deviceInfo,
		ExpiresAt:  time.Now().Add(s.cfg.RefreshTTL),
	}
	if err := s.tokens.Create(ctx, rt); err != nil {
		return nil, err
	}

	s.logger.Info("signed in", "user_id", user.ID, "session_id", rt.FamilyID)
	return s.issue(user, rt.FamilyID, raw)
}

// Refresh exchanges a refresh token for a new pair. Presenting a token
// that was already rotated revokes the whole session.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (*Tokens, error) {
	rt, err := s.tokens.GetByTokenHash(ctx, HashToken(rawRefresh))
	if err != nil {
		return nil, err
	}
	if rt.Revoked {
		s.logger.Warn("refresh token reuse, revoking session", "session_id", rt.FamilyID, "user_id", rt.UserID)
		if err := s.endSession(ctx, rt.FamilyID); err != nil {
			return nil, err
		}
		return nil, ErrTokenReuse
	}
	if time.Now().After(rt.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	user, err := s.users.GetByID(ctx, rt.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	raw, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	next := &RefreshToken{
		UserID:     user.ID,
		FamilyID:   rt.FamilyID,
		TokenHash:  HashToken(raw),
		DeviceInfo: rt.DeviceInfo,
		ExpiresAt:  time.Now().Add(s.cfg.RefreshTTL),
	}
	if err := s.tokens.RotateRefreshToken(ctx, rt.ID, next); err != nil {
		return nil, err
	}
	return s.issue(user, rt.FamilyID, raw)
}

// SignOut ends a session. Every subscriber learns about it, so connected
// clients on that session drop back to the login view.
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrTokenInvalid
	}
	if err := s.endSession(ctx, sessionID); err != nil {
		return err
	}
	s.logger.Info("signed out", "session_id", sessionID)
	return nil
}

// SignOutEverywhere ends every session of a user.
func (s *Service) SignOutEverywhere(ctx context.Context, userID string) error {
	families, err := s.tokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, f := range families {
		s.notify(f)
	}
	return nil
}

func (s *Service) endSession(ctx context.Context, sessionID string) error {
	if err := s.tokens.RevokeFamily(ctx, sessionID); err != nil {
		return err
	}
	s.notify(sessionID)
	return nil
}

// Authenticate validates an access token and returns its claims. The
// session must still be open and the account active.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Claims, *User, error) {
	claims, err := ParseToken(accessToken, s.cfg.Secret)
	if err != nil {
		return nil, nil, err
	}
	active, err := s.tokens.FamilyActive(ctx, claims.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if !active {
		return nil, nil, ErrTokenRevoked
	}
	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, ErrUserInactive
	}
	return claims, user, nil
}

// Resolve implements session.Provider.
func (s *Service) Resolve(ctx context.Context, accessToken string) (session.Identity, error) {
	claims, user, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return session.Identity{}, err
	}
	return session.Identity{
		Principal: PrincipalOf(user),
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// SubscribeSessions implements session.Provider.
func (s *Service) SubscribeSessions(fn func(sessionID string)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// notify runs subscribers outside the lock so they may unsubscribe.
func (s *Service) notify(sessionID string) {
	s.mu.Lock()
	fns := make([]func(string), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(sessionID)
	}
}

// PurgeExpired deletes expired refresh tokens.
func (s *Service) PurgeExpired(ctx context.Context) {
	n, err := s.tokens.DeleteExpired(ctx)
	if err != nil {
		s.logger.Warn("purging expired tokens failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Debug("purged expired tokens", "count", n)
	}
}

// PurgeLoop calls PurgeExpired every interval until ctx ends.
func (s *Service) PurgeLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.PurgeExpired(ctx)
		}
	}
}

func (s *Service) issue(user *User, sessionID, rawRefresh string) (*Tokens, error) {
	access, expires, err := GenerateAccessToken(user, sessionID, s.cfg.Secret, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	return &Tokens{
		AccessToken:  access,
		RefreshToken: rawRefresh,
		ExpiresAt:    expires,
		SessionID:    sessionID,
		User:         user,
	}, nil
}

// PrincipalOf converts an account to the principal the rest of the
// system sees.
func PrincipalOf(u *User) session.Principal {
	return session.Principal{
		UserID:      u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        string(u.Role),
	}
}

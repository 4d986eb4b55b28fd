package auth

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/SalahElkadim/alc/internal/config"
	"github.com/SalahElkadim/alc/internal/logger"
	"github.com/SalahElkadim/alc/internal/model"
	apperrors "github.com/SalahElkadim/alc/pkg/errors"
)

type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, userID int64) (*model.User, error)
	RecordLoginFailure(ctx context.Context, userID int64, maxAttempts int, lockFor time.Duration) (*time.Time, error)
	RecordLoginSuccess(ctx context.Context, userID int64, at time.Time) error
}

type Service struct {
	users     UserStore
	sessions  SessionStore
	tokens    *TokenManager
	blacklist Blacklist
	cfg       config.AuthConfig
	now       func() time.Time
	log       zerolog.Logger
}

func NewService(cfg *config.Config, users UserStore, sessions SessionStore, tokens *TokenManager, blacklist Blacklist) *Service {
	return &Service{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		blacklist: blacklist,
		cfg:       cfg.Auth,
		now:       time.Now,
		log:       logger.Get(),
	}
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

func invalidCredentials() error {
	return apperrors.Wrap(apperrors.KindUnauthorized, apperrors.ErrInvalidCredentials, "Invalid email or password")
}

func locked(until time.Time) error {
	appErr := apperrors.Wrap(apperrors.KindLocked, apperrors.ErrAccountLocked,
		"Account is temporarily locked due to too many failed login attempts")
	appErr.Details = map[string]interface{}{"locked_until": until}
	return appErr
}

// Login verifies credentials and registers a new device session. For
// single-device accounts every earlier session is deactivated in the same
// transaction that stores the new one, so only the new tokens stay usable.
func (s *Service) Login(ctx context.Context, email, password string, client model.ClientInfo) (*model.LoginResponse, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return nil, invalidCredentials()
		}
		return nil, err
	}

	now := s.now()
	if user.IsLocked(now) {
		return nil, locked(*user.LockedUntil)
	}
	if !user.IsActive {
		return nil, apperrors.New(apperrors.KindUnauthorized, "Account is disabled")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		until, recErr := s.users.RecordLoginFailure(ctx, user.ID, s.cfg.MaxFailedLogins, s.cfg.LockoutDuration)
		if recErr != nil {
			s.log.Error().Err(recErr).Int64("user_id", user.ID).Msg("Failed to record login failure")
		}
		if until != nil {
			s.log.Warn().Int64("user_id", user.ID).Time("locked_until", *until).Msg("Account locked")
			return nil, locked(*until)
		}
		return nil, invalidCredentials()
	}

	pair, access, _, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	session := &model.UserSession{
		UserID:            user.ID,
		SessionKey:        access.ID,
		DeviceFingerprint: Fingerprint(client),
		IPAddress:         client.IP,
		UserAgent:         client.UserAgent,
		CreatedAt:         now,
		LastActivity:      now,
	}
	if err := s.sessions.ReplaceSessions(ctx, session, !user.AllowsMultipleDevices()); err != nil {
		return nil, err
	}

	if err := s.users.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		s.log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to record login")
	}

	s.log.Info().Int64("user_id", user.ID).Str("ip", client.IP).Str("fingerprint", session.DeviceFingerprint).Msg("User logged in")

	return &model.LoginResponse{TokenPair: pair, User: user}, nil
}

// Refresh rotates the token pair and moves the device session onto the new
// access token id.
func (s *Service) Refresh(ctx context.Context, refreshToken string, client model.ClientInfo) (*model.TokenPair, error) {
	claims, err := s.tokens.Parse(refreshToken, TokenRefresh)
	if err != nil {
		return nil, err
	}

	revoked, err := s.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, apperrors.Wrap(apperrors.KindUnauthorized, apperrors.ErrTokenRevoked, "Token has been revoked")
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return nil, apperrors.New(apperrors.KindUnauthorized, apperrors.ErrInvalidToken.Error())
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, apperrors.New(apperrors.KindUnauthorized, "Account is disabled")
	}

	pair, access, _, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	now := s.now()
	moved, err := s.sessions.RekeySession(ctx, user.ID, claims.SessionID, access.ID, now)
	if err != nil {
		return nil, err
	}
	if !moved {
		if !user.AllowsMultipleDevices() {
			return nil, apperrors.SessionExpired()
		}
		session := &model.UserSession{
			UserID:            user.ID,
			SessionKey:        access.ID,
			DeviceFingerprint: Fingerprint(client),
			IPAddress:         client.IP,
			UserAgent:         client.UserAgent,
			CreatedAt:         now,
			LastActivity:      now,
		}
		if err := s.sessions.ReplaceSessions(ctx, session, false); err != nil {
			return nil, err
		}
	}

	if err := s.blacklist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		s.log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to revoke rotated refresh token")
	}

	return &pair, nil
}

// Logout deactivates the caller's session first, then blacklists the refresh token.
func (s *Service) Logout(ctx context.Context, access *Claims, refreshToken string) error {
	if err := s.sessions.DeactivateSession(ctx, access.UserID, access.ID); err != nil {
		return err
	}

	if refreshToken == "" {
		return nil
	}

	refresh, err := s.tokens.Parse(refreshToken, TokenRefresh)
	if err != nil {
		return apperrors.ValidationError{Field: "refresh", Value: "", Message: "invalid refresh token"}
	}
	if refresh.UserID != access.UserID {
		return apperrors.ValidationError{Field: "refresh", Value: "", Message: "token does not belong to this user"}
	}

	if err := s.blacklist.Revoke(ctx, refresh.ID, refresh.ExpiresAt.Time); err != nil {
		return err
	}

	s.log.Info().Int64("user_id", access.UserID).Msg("User logged out")
	return nil
}

// Sessions lists the user's active sessions that saw activity within the idle window.
func (s *Service) Sessions(ctx context.Context, userID int64) ([]model.UserSession, error) {
	return s.sessions.ListActiveSessions(ctx, userID, s.now().Add(-s.cfg.IdleWindow))
}

// Authorize checks that an access token still owns a live session. Accounts
// allowed on several devices are not checked.
func (s *Service) Authorize(ctx context.Context, claims *Claims) error {
	if claims.AllowsMultipleDevices() {
		return nil
	}

	active, err := s.sessions.IsSessionActive(ctx, claims.UserID, claims.ID)
	if err != nil {
		return err
	}
	if !active {
		return apperrors.SessionExpired()
	}
	return nil
}

func (s *Service) Touch(ctx context.Context, sessionKey string) {
	if err := s.sessions.TouchSession(ctx, sessionKey, s.now()); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn().Err(err).Msg("Failed to update session activity")
	}
}

func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

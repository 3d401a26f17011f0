package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fleetops/tripshare-api/internal/models"
	appErrors "github.com/fleetops/tripshare-api/pkg/errors"
)

type tokenStore interface {
	Create(ctx context.Context, token *models.ConfirmationToken) error
	GetByToken(ctx context.Context, token string) (*models.ConfirmationToken, error)
	Consume(ctx context.Context, token, outcome string) error
	MarkExpired(ctx context.Context, token string) error
}

// TokenService issues and redeems single-use confirmation tokens for
// out-of-band (email link) actions.
type TokenService struct {
	repo   tokenStore
	logger *zap.Logger
}

// NewTokenService constructs the service.
func NewTokenService(repo tokenStore, logger *zap.Logger) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{repo: repo, logger: logger}
}

// Issue creates a token for the subject with expiry now+ttl and
// returns it for embedding in a notification.
func (s *TokenService) Issue(ctx context.Context, subject string, purpose models.TokenPurpose, ttl time.Duration) (*models.ConfirmationToken, error) {
	value, err := generateToken()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate token")
	}
	token := &models.ConfirmationToken{
		Token:     value,
		Subject:   subject,
		Purpose:   purpose,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	if err := s.repo.Create(ctx, token); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store token")
	}
	return token, nil
}

// Lookup returns the token record without consuming it.
func (s *TokenService) Lookup(ctx context.Context, value string) (*models.ConfirmationToken, error) {
	record, err := s.repo.GetByToken(ctx, value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load token")
	}
	return record, nil
}

// Redeem atomically consumes the token, recording the action taken.
// Exactly one of any concurrent redemptions succeeds; the rest observe
// AlreadyConsumed. Presenting an expired token marks it so it is never
// silently reusable later.
func (s *TokenService) Redeem(ctx context.Context, value, action string) (*models.ConfirmationToken, error) {
	err := s.repo.Consume(ctx, value, action)
	if err == nil {
		return s.Lookup(ctx, value)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to redeem token")
	}

	// The compare-and-set lost; classify why.
	record, err := s.repo.GetByToken(ctx, value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load token")
	}
	if record.Consumed {
		return nil, appErrors.ErrAlreadyConsumed
	}
	if !record.ExpiresAt.After(time.Now().UTC()) {
		if err := s.repo.MarkExpired(ctx, value); err != nil {
			s.logger.Warn("failed to mark token expired", zap.Error(err))
		}
		return nil, appErrors.ErrTokenExpired
	}
	return nil, appErrors.Clone(appErrors.ErrConflict, "token could not be redeemed")
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/tripshare-api/internal/models"
	appErrors "github.com/fleetops/tripshare-api/pkg/errors"
)

type tokenRepoStub struct {
	tokens map[string]*models.ConfirmationToken
	err    error
}

func newTokenRepoStub() *tokenRepoStub {
	return &tokenRepoStub{tokens: make(map[string]*models.ConfirmationToken)}
}

func (s *tokenRepoStub) Create(ctx context.Context, token *models.ConfirmationToken) error {
	if s.err != nil {
		return s.err
	}
	copied := *token
	s.tokens[token.Token] = &copied
	return nil
}

func (s *tokenRepoStub) GetByToken(ctx context.Context, token string) (*models.ConfirmationToken, error) {
	if s.err != nil {
		return nil, s.err
	}
	record, ok := s.tokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *record
	return &copied, nil
}

func (s *tokenRepoStub) Consume(ctx context.Context, token, outcome string) error {
	if s.err != nil {
		return s.err
	}
	record, ok := s.tokens[token]
	if !ok || record.Consumed || !record.ExpiresAt.After(time.Now().UTC()) {
		return sql.ErrNoRows
	}
	now := time.Now().UTC()
	record.Consumed = true
	record.ConsumedAt = &now
	record.Outcome = &outcome
	return nil
}

func (s *tokenRepoStub) MarkExpired(ctx context.Context, token string) error {
	record, ok := s.tokens[token]
	if !ok {
		return sql.ErrNoRows
	}
	now := time.Now().UTC()
	outcome := "expired"
	record.Consumed = true
	record.ConsumedAt = &now
	record.Outcome = &outcome
	return nil
}

func TestTokenServiceIssueGeneratesUniqueValues(t *testing.T) {
	repo := newTokenRepoStub()
	svc := NewTokenService(repo, nil)

	first, err := svc.Issue(context.Background(), "trip-1", models.TokenPurposeTripApproval, time.Hour)
	require.NoError(t, err)
	second, err := svc.Issue(context.Background(), "trip-2", models.TokenPurposeTripApproval, time.Hour)
	require.NoError(t, err)

	assert.Len(t, first.Token, 64)
	assert.NotEqual(t, first.Token, second.Token)
	assert.Equal(t, "trip-1", first.Subject)
}

func TestTokenServiceRedeemOnce(t *testing.T) {
	repo := newTokenRepoStub()
	svc := NewTokenService(repo, nil)
	issued, err := svc.Issue(context.Background(), "trip-1", models.TokenPurposeTripApproval, time.Hour)
	require.NoError(t, err)

	record, err := svc.Redeem(context.Background(), issued.Token, "approve")
	require.NoError(t, err)
	assert.True(t, record.Consumed)
	require.NotNil(t, record.Outcome)
	assert.Equal(t, "approve", *record.Outcome)
}

func TestTokenServiceSecondRedeemAlreadyConsumed(t *testing.T) {
	repo := newTokenRepoStub()
	svc := NewTokenService(repo, nil)
	issued, err := svc.Issue(context.Background(), "trip-1", models.TokenPurposeTripApproval, time.Hour)
	require.NoError(t, err)

	_, err = svc.Redeem(context.Background(), issued.Token, "approve")
	require.NoError(t, err)

	_, err = svc.Redeem(context.Background(), issued.Token, "reject")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyConsumed.Code, appErrors.FromError(err).Code)

	// The first outcome sticks.
	record, err := svc.Lookup(context.Background(), issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "approve", *record.Outcome)
}

func TestTokenServiceRedeemExpiredToken(t *testing.T) {
	repo := newTokenRepoStub()
	svc := NewTokenService(repo, nil)
	issued, err := svc.Issue(context.Background(), "trip-1", models.TokenPurposeTripApproval, -time.Minute)
	require.NoError(t, err)

	_, err = svc.Redeem(context.Background(), issued.Token, "approve")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTokenExpired.Code, appErrors.FromError(err).Code)

	// Presenting an expired token retires it.
	record := repo.tokens[issued.Token]
	assert.True(t, record.Consumed)
	assert.Equal(t, "expired", *record.Outcome)
}

func TestTokenServiceRedeemUnknownToken(t *testing.T) {
	svc := NewTokenService(newTokenRepoStub(), nil)
	_, err := svc.Redeem(context.Background(), "nope", "approve")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

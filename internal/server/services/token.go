// Package services contains server-side business logic. This file implements
// TokenService, which issues, rotates, and revokes the access/refresh token
// pairs backed by server-stored sessions.
package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/dmitrijs2005/tglinker/internal/common"
	"github.com/dmitrijs2005/tglinker/internal/dbx"
	"github.com/dmitrijs2005/tglinker/internal/logging"
	"github.com/dmitrijs2005/tglinker/internal/server/auth"
	"github.com/dmitrijs2005/tglinker/internal/server/config"
	"github.com/dmitrijs2005/tglinker/internal/server/models"
	"github.com/dmitrijs2005/tglinker/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenService mints and verifies token pairs. Refresh tokens are single-use:
// every redemption deletes the old session, and any verification failure
// destroys the session rather than leaving it live.
type TokenService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	jwtSecret   []byte
	accessTTL   time.Duration
	refreshTTL  time.Duration
}

// NewTokenService constructs a TokenService using repositories and server config.
func NewTokenService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *TokenService {
	return &TokenService{
		db:          db,
		repomanager: m,
		logger:      logger.With("module", "token_service"),
		jwtSecret:   []byte(cfg.JWTSecret),
		accessTTL:   cfg.AccessTokenTTL,
		refreshTTL:  cfg.RefreshTokenTTL,
	}
}

// hashToken produces the one-way hash under which a refresh token is stored.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Issue creates a new session row and returns a fresh token pair for the
// identity.
func (s *TokenService) Issue(ctx context.Context, userID, email string) (*TokenPair, error) {
	return s.issue(ctx, s.db, userID, email)
}

func (s *TokenService) issue(ctx context.Context, tx dbx.DBTX, userID, email string) (*TokenPair, error) {
	accessToken, err := auth.GenerateAccessToken(userID, email, s.jwtSecret, s.accessTTL)
	if err != nil {
		return nil, common.ErrorInternal
	}

	sessionID := uuid.NewString()
	refreshToken, err := auth.GenerateRefreshToken(userID, email, sessionID, s.jwtSecret, s.refreshTTL)
	if err != nil {
		return nil, common.ErrorInternal
	}

	session := &models.Session{
		ID:               sessionID,
		UserID:           userID,
		RefreshTokenHash: hashToken(refreshToken),
		ExpiresAt:        time.Now().Add(s.refreshTTL),
	}
	if err := s.repomanager.Sessions(tx).Create(ctx, session); err != nil {
		return nil, common.ErrorInternal
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// verifySession runs the shared verification path of Refresh and Revoke:
// signature/type check, session lookup, expiry check, and hash comparison.
// Fail-closed: an expired session or a hash mismatch deletes the session
// before the error is returned.
func (s *TokenService) verifySession(ctx context.Context, refreshToken string) (*models.Session, *auth.Claims, error) {
	claims, err := auth.ParseTokenOfType(refreshToken, auth.TokenTypeRefresh, s.jwtSecret)
	if err != nil {
		return nil, nil, common.ErrInvalidToken
	}

	repo := s.repomanager.Sessions(s.db)
	session, err := repo.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrSessionNotFound
		}
		return nil, nil, common.ErrorInternal
	}

	if session.ExpiresAt.Before(time.Now()) {
		_ = repo.Delete(ctx, session.ID)
		return nil, nil, common.ErrSessionExpired
	}

	presented := hashToken(refreshToken)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(session.RefreshTokenHash)) != 1 {
		// A signed token for a live session with the wrong hash means a
		// stale rotated token was replayed. Destroy the lineage.
		_ = repo.Delete(ctx, session.ID)
		s.logger.Error(ctx, "refresh token reuse detected",
			"user_id", session.UserID, "session_id", session.ID)
		return nil, nil, common.ErrTokenReuse
	}

	return session, claims, nil
}

// Refresh redeems a refresh token exactly once: it deletes the old session
// and issues a fresh pair in one transaction. The delete is the single-use
// gate: when two redeemers race past verification, only the one whose
// transaction actually removes the row gets a new pair, and the other fails
// with ErrSessionNotFound.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	session, claims, err := s.verifySession(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Sessions(tx).Delete(ctx, session.ID); err != nil {
			return err
		}
		var issueErr error
		pair, issueErr = s.issue(ctx, tx, claims.UserID, claims.Email)
		return issueErr
	}); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrSessionNotFound
		}
		return nil, common.ErrorInternal
	}
	return pair, nil
}

// Revoke runs the same verification path as Refresh and then deletes the
// session only.
func (s *TokenService) Revoke(ctx context.Context, refreshToken string) error {
	session, _, err := s.verifySession(ctx, refreshToken)
	if err != nil {
		return err
	}
	if err := s.repomanager.Sessions(s.db).Delete(ctx, session.ID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrSessionNotFound
		}
		return common.ErrorInternal
	}
	return nil
}

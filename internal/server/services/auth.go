package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/dmitrijs2005/tglinker/internal/common"
	"github.com/dmitrijs2005/tglinker/internal/cryptox"
	"github.com/dmitrijs2005/tglinker/internal/dbx"
	"github.com/dmitrijs2005/tglinker/internal/logging"
	"github.com/dmitrijs2005/tglinker/internal/server/config"
	"github.com/dmitrijs2005/tglinker/internal/server/email"
	"github.com/dmitrijs2005/tglinker/internal/server/models"
	"github.com/dmitrijs2005/tglinker/internal/server/repositories/repomanager"
)

const confirmationTokenBytes = 32

// AuthService implements the credential store: signup with email
// confirmation, login, password changes, and account removal.
type AuthService struct {
	db          dbx.DBTX
	repomanager repomanager.RepositoryManager
	tokens      *TokenService
	mailer      email.Sender
	logger      logging.Logger
	cfg         *config.Config
}

// NewAuthService wires the credential store over the given repositories,
// token service, and mail sender.
func NewAuthService(db dbx.DBTX, m repomanager.RepositoryManager, tokens *TokenService, mailer email.Sender, cfg *config.Config, logger logging.Logger) *AuthService {
	return &AuthService{
		db:          db,
		repomanager: m,
		tokens:      tokens,
		mailer:      mailer,
		cfg:         cfg,
		logger:      logger.With("module", "auth_service"),
	}
}

// NormalizeEmail canonicalizes an address for storage and lookup.
func NormalizeEmail(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func (s *AuthService) validateCredentials(addr, password string) error {
	if addr == "" {
		return fmt.Errorf("%w: email is required", common.ErrorValidation)
	}
	if _, err := mail.ParseAddress(addr); err != nil {
		return fmt.Errorf("%w: invalid email address", common.ErrorValidation)
	}
	if len(password) < s.cfg.MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrorValidation, s.cfg.MinPasswordLength)
	}
	return nil
}

// Signup registers a new unverified identity and emails a confirmation link.
// A failed email send does not roll the signup back.
func (s *AuthService) Signup(ctx context.Context, addr, password string) (*models.User, error) {
	addr = NormalizeEmail(addr)
	if err := s.validateCredentials(addr, password); err != nil {
		return nil, err
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return nil, common.ErrorInternal
	}

	token, err := common.MakeRandHexString(confirmationTokenBytes)
	if err != nil {
		return nil, common.ErrorInternal
	}

	user := &models.User{
		Email:             addr,
		PasswordHash:      hash,
		EmailVerified:     false,
		ConfirmationToken: &token,
	}

	created, err := s.repomanager.Users(s.db).Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, common.ErrorInternal
	}

	link := fmt.Sprintf("%s/confirm-email?token=%s", s.cfg.FrontendURL, token)
	body := fmt.Sprintf("Welcome! Please confirm your email address by following this link:\n\n%s\n", link)
	if err := s.mailer.Send(ctx, addr, "Confirm your email", body); err != nil {
		s.logger.Error(ctx, "confirmation email send failed", "user_id", created.ID, "error", err.Error())
	}

	return created, nil
}

// ConfirmEmail redeems a single-use confirmation token.
func (s *AuthService) ConfirmEmail(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("%w: token is required", common.ErrorValidation)
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByConfirmationToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidToken
		}
		return common.ErrorInternal
	}

	if err := repo.MarkEmailVerified(ctx, user.ID); err != nil {
		return common.ErrorInternal
	}
	return nil
}

// Login verifies credentials and issues a token pair. An unverified email is
// reported distinctly unless UnifyLoginErrors hides it.
func (s *AuthService) Login(ctx context.Context, addr, password string) (*TokenPair, error) {
	addr = NormalizeEmail(addr)

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}

	if !cryptox.CheckPassword(password, user.PasswordHash) {
		return nil, common.ErrorUnauthorized
	}

	if !user.EmailVerified {
		if s.cfg.UnifyLoginErrors {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrEmailNotConfirmed
	}

	return s.tokens.Issue(ctx, user.ID, user.Email)
}

// ChangePassword verifies the current password and replaces the hash.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	if len(next) < s.cfg.MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrorValidation, s.cfg.MinPasswordLength)
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorUnauthorized
		}
		return common.ErrorInternal
	}

	if !cryptox.CheckPassword(current, user.PasswordHash) {
		return common.ErrorUnauthorized
	}

	hash, err := cryptox.HashPassword(next)
	if err != nil {
		return common.ErrorInternal
	}
	if err := repo.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return common.ErrorInternal
	}
	return nil
}

// Profile returns the identity behind an access token subject.
func (s *AuthService) Profile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, common.ErrorInternal
	}
	return user, nil
}

// DeleteAccount removes the identity. Sessions and linked accounts cascade
// at the storage level.
func (s *AuthService) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.repomanager.Users(s.db).Delete(ctx, userID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return common.ErrorInternal
	}
	return nil
}

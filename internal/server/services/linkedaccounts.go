package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tglinker/internal/common"
	"github.com/dmitrijs2005/tglinker/internal/cryptox"
	"github.com/dmitrijs2005/tglinker/internal/dbx"
	"github.com/dmitrijs2005/tglinker/internal/logging"
	"github.com/dmitrijs2005/tglinker/internal/server/config"
	"github.com/dmitrijs2005/tglinker/internal/server/models"
	"github.com/dmitrijs2005/tglinker/internal/server/queue"
	"github.com/dmitrijs2005/tglinker/internal/server/repositories/linkedaccounts"
	"github.com/dmitrijs2005/tglinker/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// LinkedAccountService manages external identity bindings on behalf of their
// owners and hands handshake work to the queue. Session strings are
// encrypted before they reach the repository and decrypted on the way out.
type LinkedAccountService struct {
	db          dbx.DBTX
	repomanager repomanager.RepositoryManager
	queue       queue.Queue
	logger      logging.Logger
	cfg         *config.Config
}

func NewLinkedAccountService(db dbx.DBTX, m repomanager.RepositoryManager, q queue.Queue, cfg *config.Config, logger logging.Logger) *LinkedAccountService {
	return &LinkedAccountService{
		db:          db,
		repomanager: m,
		queue:       q,
		cfg:         cfg,
		logger:      logger.With("module", "linked_account_service"),
	}
}

// NormalizePhone strips formatting from a phone number, keeping digits and a
// single leading plus. All lookups and pending-state keys use this form.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range phone {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func validatePhone(phone string) error {
	digits := strings.TrimPrefix(phone, "+")
	if len(digits) < 7 {
		return fmt.Errorf("%w: invalid phone number", common.ErrorValidation)
	}
	return nil
}

func (s *LinkedAccountService) enqueue(ctx context.Context, name string, payload any, maxAttempts int) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", common.ErrorInternal
	}
	job := &queue.Job{
		ID:          uuid.NewString(),
		Name:        name,
		Payload:     body,
		MaxAttempts: maxAttempts,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger.Error(ctx, "enqueue failed", "job", name, "error", err.Error())
		return "", common.ErrEnqueueFailed
	}
	return job.ID, nil
}

// RequestCode submits a handshake-start job for the owner's phone. Returns
// the job id for correlation.
func (s *LinkedAccountService) RequestCode(ctx context.Context, owner models.Owner, phone string) (string, error) {
	phone = NormalizePhone(phone)
	if err := validatePhone(phone); err != nil {
		return "", err
	}
	return s.enqueue(ctx, models.JobRequestCode,
		&models.RequestCodeJob{Phone: phone, Owner: owner}, s.cfg.RequestCodeAttempts)
}

// VerifyCode submits a handshake-completion job with the user-entered code.
func (s *LinkedAccountService) VerifyCode(ctx context.Context, owner models.Owner, phone, code string) (string, error) {
	phone = NormalizePhone(phone)
	if err := validatePhone(phone); err != nil {
		return "", err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("%w: code is required", common.ErrorValidation)
	}
	return s.enqueue(ctx, models.JobVerifyCode,
		&models.VerifyCodeJob{Phone: phone, Code: code, Owner: owner}, s.cfg.VerifyCodeAttempts)
}

func (s *LinkedAccountService) key() ([]byte, error) {
	return cryptox.DeriveKey(s.cfg.SessionSecret)
}

func (s *LinkedAccountService) decryptInto(account *models.LinkedAccount, key []byte) error {
	if account.SessionString == nil {
		return nil
	}
	plain, err := cryptox.DecryptString(*account.SessionString, key)
	if err != nil {
		return err
	}
	account.SessionString = &plain
	return nil
}

// List returns the owner's accounts with session strings decrypted.
func (s *LinkedAccountService) List(ctx context.Context, userID string) ([]*models.LinkedAccount, error) {
	key, err := s.key()
	if err != nil {
		return nil, err
	}
	accounts, err := s.repomanager.LinkedAccounts(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, common.ErrorInternal
	}
	for _, a := range accounts {
		if err := s.decryptInto(a, key); err != nil {
			return nil, err
		}
	}
	return accounts, nil
}

// Get returns one of the owner's accounts with its session decrypted.
func (s *LinkedAccountService) Get(ctx context.Context, userID, id string) (*models.LinkedAccount, error) {
	key, err := s.key()
	if err != nil {
		return nil, err
	}
	account, err := s.repomanager.LinkedAccounts(s.db).Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, common.ErrorInternal
	}
	if err := s.decryptInto(account, key); err != nil {
		return nil, err
	}
	return account, nil
}

// Create binds a phone to the owner directly, encrypting any provided
// session string. Used for importing an already-authorized session.
func (s *LinkedAccountService) Create(ctx context.Context, userID, phone string, sessionString *string, status models.LinkedAccountStatus) (*models.LinkedAccount, error) {
	phone = NormalizePhone(phone)
	if err := validatePhone(phone); err != nil {
		return nil, err
	}
	key, err := s.key()
	if err != nil {
		return nil, err
	}

	account := &models.LinkedAccount{
		UserID: userID,
		Phone:  phone,
		Status: status,
	}
	if sessionString != nil {
		enc, err := cryptox.EncryptString(*sessionString, key)
		if err != nil {
			return nil, common.ErrorInternal
		}
		account.SessionString = &enc
	}
	if account.Status == "" {
		account.Status = models.LinkedAccountPending
	}

	created, err := s.repomanager.LinkedAccounts(s.db).Create(ctx, account)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, common.ErrorInternal
	}
	created.SessionString = sessionString
	return created, nil
}

// UpdateInput carries the caller-mutable fields of an account.
type UpdateInput struct {
	Phone         *string
	SessionString *string
	ClearSession  bool
	Status        *models.LinkedAccountStatus
}

// Update applies a partial update to the owner's account. A provided session
// string is encrypted before storage.
func (s *LinkedAccountService) Update(ctx context.Context, userID, id string, in UpdateInput) (*models.LinkedAccount, error) {
	key, err := s.key()
	if err != nil {
		return nil, err
	}

	patch := linkedaccounts.Patch{ClearSession: in.ClearSession, Status: in.Status}
	if in.Phone != nil {
		phone := NormalizePhone(*in.Phone)
		if err := validatePhone(phone); err != nil {
			return nil, err
		}
		patch.Phone = &phone
	}
	if in.SessionString != nil {
		enc, err := cryptox.EncryptString(*in.SessionString, key)
		if err != nil {
			return nil, common.ErrorInternal
		}
		patch.SessionString = &enc
	}

	updated, err := s.repomanager.LinkedAccounts(s.db).Update(ctx, userID, id, patch)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, common.ErrorInternal
	}
	if err := s.decryptInto(updated, key); err != nil {
		return nil, err
	}
	return updated, nil
}

// Remove deletes the owner's account by id.
func (s *LinkedAccountService) Remove(ctx context.Context, userID, id string) error {
	if err := s.repomanager.LinkedAccounts(s.db).Delete(ctx, userID, id); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return common.ErrorInternal
	}
	return nil
}

package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dmitrijs2005/tglinker/internal/common"
	"github.com/dmitrijs2005/tglinker/internal/dbx"
	"github.com/dmitrijs2005/tglinker/internal/logging"
	"github.com/dmitrijs2005/tglinker/internal/server/config"
	"github.com/dmitrijs2005/tglinker/internal/server/models"
	"github.com/dmitrijs2005/tglinker/internal/server/queue"
	"github.com/dmitrijs2005/tglinker/internal/server/repositories/linkedaccounts"
	"github.com/dmitrijs2005/tglinker/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tglinker/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/tglinker/internal/server/repositories/users"
	"github.com/google/uuid"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.Default())
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SessionSecret = "test-session-secret"
	return cfg
}

type fakeUsersRepo struct {
	mu      sync.Mutex
	byID    map[string]*models.User
	byEmail map[string]*models.User
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]*models.User),
	}
}

func (r *fakeUsersRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[user.Email]; ok {
		return nil, common.ErrorAlreadyExists
	}
	stored := *user
	stored.ID = uuid.NewString()
	r.byID[stored.ID] = &stored
	r.byEmail[stored.Email] = &stored
	return &stored, nil
}

func (r *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byEmail[email]; ok {
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (r *fakeUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (r *fakeUsersRepo) GetByConfirmationToken(ctx context.Context, token string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.ConfirmationToken != nil && *u.ConfirmationToken == token {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *fakeUsersRepo) MarkEmailVerified(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.EmailVerified = true
	u.ConfirmationToken = nil
	return nil
}

func (r *fakeUsersRepo) UpdatePasswordHash(ctx context.Context, id string, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (r *fakeUsersRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	delete(r.byEmail, u.Email)
	delete(r.byID, id)
	return nil
}

type fakeSessionsRepo struct {
	mu      sync.Mutex
	byID    map[string]*models.Session
	getHook func(id string)
}

func newFakeSessionsRepo() *fakeSessionsRepo {
	return &fakeSessionsRepo{byID: make(map[string]*models.Session)}
}

func (r *fakeSessionsRepo) Create(ctx context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *session
	r.byID[stored.ID] = &stored
	return nil
}

func (r *fakeSessionsRepo) Get(ctx context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	s, ok := r.byID[id]
	var copied models.Session
	if ok {
		copied = *s
	}
	hook := r.getHook
	r.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &copied, nil
}

func (r *fakeSessionsRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *fakeSessionsRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

type fakeAccountsRepo struct {
	mu     sync.Mutex
	byID   map[string]*models.LinkedAccount
	nextID int
}

func newFakeAccountsRepo() *fakeAccountsRepo {
	return &fakeAccountsRepo{byID: make(map[string]*models.LinkedAccount)}
}

func (r *fakeAccountsRepo) ListByUser(ctx context.Context, userID string) ([]*models.LinkedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.LinkedAccount
	for _, a := range r.byID {
		if a.UserID == userID {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeAccountsRepo) Create(ctx context.Context, account *models.LinkedAccount) (*models.LinkedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if a.UserID == account.UserID && a.Phone == account.Phone {
			return nil, common.ErrorAlreadyExists
		}
	}
	stored := *account
	r.nextID++
	stored.ID = fmt.Sprintf("acc-%d", r.nextID)
	r.byID[stored.ID] = &stored
	copied := stored
	return &copied, nil
}

func (r *fakeAccountsRepo) Get(ctx context.Context, userID, id string) (*models.LinkedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.byID[id]; ok && a.UserID == userID {
		copied := *a
		return &copied, nil
	}
	return nil, common.ErrorNotFound
}

func (r *fakeAccountsRepo) GetByUserAndPhone(ctx context.Context, userID, phone string) (*models.LinkedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if a.UserID == userID && a.Phone == phone {
			copied := *a
			return &copied, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *fakeAccountsRepo) applyPatch(a *models.LinkedAccount, patch linkedaccounts.Patch) {
	if patch.Phone != nil {
		a.Phone = *patch.Phone
	}
	if patch.ClearSession {
		a.SessionString = nil
	} else if patch.SessionString != nil {
		a.SessionString = patch.SessionString
	}
	if patch.Status != nil {
		a.Status = *patch.Status
	}
}

func (r *fakeAccountsRepo) Update(ctx context.Context, userID, id string, patch linkedaccounts.Patch) (*models.LinkedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok || a.UserID != userID {
		return nil, common.ErrorNotFound
	}
	r.applyPatch(a, patch)
	copied := *a
	return &copied, nil
}

func (r *fakeAccountsRepo) Upsert(ctx context.Context, userID, phone string, patch linkedaccounts.Patch) (*models.LinkedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if a.UserID == userID && a.Phone == phone {
			r.applyPatch(a, patch)
			copied := *a
			return &copied, nil
		}
	}
	r.nextID++
	a := &models.LinkedAccount{
		ID: fmt.Sprintf("acc-%d", r.nextID), UserID: userID, Phone: phone,
		Status: models.LinkedAccountPending,
	}
	r.applyPatch(a, patch)
	r.byID[a.ID] = a
	copied := *a
	return &copied, nil
}

func (r *fakeAccountsRepo) Delete(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.byID[id]; ok && a.UserID == userID {
		delete(r.byID, id)
		return nil
	}
	return common.ErrorNotFound
}

type fakeRepoManager struct {
	users    *fakeUsersRepo
	sessions *fakeSessionsRepo
	accounts *fakeAccountsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		users:    newFakeUsersRepo(),
		sessions: newFakeSessionsRepo(),
		accounts: newFakeAccountsRepo(),
	}
}

func (m *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository                  { return m.users }
func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessions.Repository            { return m.sessions }
func (m *fakeRepoManager) LinkedAccounts(db dbx.DBTX) linkedaccounts.Repository {
	return m.accounts
}

var _ repomanager.RepositoryManager = (*fakeRepoManager)(nil)

type fakeQueue struct {
	mu         sync.Mutex
	jobs       []*queue.Job
	enqueueErr error
}

func (q *fakeQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Consume(ctx context.Context, h queue.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type fakeMailer struct {
	mu      sync.Mutex
	sent    []sentMail
	sendErr error
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/dmitrijs2005/tglinker/internal/common"
	"github.com/dmitrijs2005/tglinker/internal/cryptox"
	"github.com/dmitrijs2005/tglinker/internal/dbx"
	"github.com/dmitrijs2005/tglinker/internal/logging"
	"github.com/dmitrijs2005/tglinker/internal/server/config"
	"github.com/dmitrijs2005/tglinker/internal/server/models"
	"github.com/dmitrijs2005/tglinker/internal/server/queue"
	"github.com/dmitrijs2005/tglinker/internal/server/repositories/linkedaccounts"
	"github.com/dmitrijs2005/tglinker/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tglinker/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/tglinker/internal/server/repositories/users"
	"github.com/dmitrijs2005/tglinker/internal/server/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	connectSession string
	sentCode       *telegram.SentCode
	sendCodeErr    error
	signInErr      error
	exported       string
	exportErr      error

	signInPhone  string
	signInCode   string
	signInHash   string
	disconnected bool
}

func (c *fakeClient) Connect(ctx context.Context, session string) error {
	c.connectSession = session
	return nil
}

func (c *fakeClient) Disconnect(ctx context.Context) error {
	c.disconnected = true
	return nil
}

func (c *fakeClient) SendCode(ctx context.Context, phone string) (*telegram.SentCode, error) {
	if c.sendCodeErr != nil {
		return nil, c.sendCodeErr
	}
	return c.sentCode, nil
}

func (c *fakeClient) SignIn(ctx context.Context, phone, code, phoneCodeHash string) error {
	c.signInPhone, c.signInCode, c.signInHash = phone, code, phoneCodeHash
	return c.signInErr
}

func (c *fakeClient) ExportSession(ctx context.Context) (string, error) {
	if c.exportErr != nil {
		return "", c.exportErr
	}
	return c.exported, nil
}

type fakeDialer struct {
	client  *fakeClient
	dialErr error
}

func (d *fakeDialer) Dial(creds telegram.Credentials) (telegram.Client, error) {
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return d.client, nil
}

type fakeAccountsRepo struct {
	byUserPhone map[string]*models.LinkedAccount
	upserts     []linkedaccounts.Patch
	upsertPhone []string
	upsertErr   error
}

func newFakeAccountsRepo() *fakeAccountsRepo {
	return &fakeAccountsRepo{byUserPhone: make(map[string]*models.LinkedAccount)}
}

func (r *fakeAccountsRepo) key(userID, phone string) string { return userID + "|" + phone }

func (r *fakeAccountsRepo) ListByUser(ctx context.Context, userID string) ([]*models.LinkedAccount, error) {
	return nil, nil
}

func (r *fakeAccountsRepo) Create(ctx context.Context, account *models.LinkedAccount) (*models.LinkedAccount, error) {
	r.byUserPhone[r.key(account.UserID, account.Phone)] = account
	return account, nil
}

func (r *fakeAccountsRepo) Get(ctx context.Context, userID, id string) (*models.LinkedAccount, error) {
	return nil, common.ErrorNotFound
}

func (r *fakeAccountsRepo) GetByUserAndPhone(ctx context.Context, userID, phone string) (*models.LinkedAccount, error) {
	if a, ok := r.byUserPhone[r.key(userID, phone)]; ok {
		return a, nil
	}
	return nil, common.ErrorNotFound
}

func (r *fakeAccountsRepo) Update(ctx context.Context, userID, id string, patch linkedaccounts.Patch) (*models.LinkedAccount, error) {
	return nil, common.ErrorNotFound
}

func (r *fakeAccountsRepo) Upsert(ctx context.Context, userID, phone string, patch linkedaccounts.Patch) (*models.LinkedAccount, error) {
	if r.upsertErr != nil {
		return nil, r.upsertErr
	}
	r.upserts = append(r.upserts, patch)
	r.upsertPhone = append(r.upsertPhone, phone)
	account, ok := r.byUserPhone[r.key(userID, phone)]
	if !ok {
		account = &models.LinkedAccount{UserID: userID, Phone: phone, Status: models.LinkedAccountPending}
		r.byUserPhone[r.key(userID, phone)] = account
	}
	if patch.SessionString != nil {
		account.SessionString = patch.SessionString
	}
	if patch.Status != nil {
		account.Status = *patch.Status
	}
	return account, nil
}

func (r *fakeAccountsRepo) Delete(ctx context.Context, userID, id string) error {
	return common.ErrorNotFound
}

type fakeRepoManager struct {
	accounts *fakeAccountsRepo
}

func (m *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository                  { return nil }
func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessions.Repository            { return nil }
func (m *fakeRepoManager) LinkedAccounts(db dbx.DBTX) linkedaccounts.Repository {
	return m.accounts
}

var _ repomanager.RepositoryManager = (*fakeRepoManager)(nil)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SessionSecret = "test-session-secret"
	cfg.TelegramAPIID = 12345
	cfg.TelegramAPIHash = "hash"
	return cfg
}

func newTestPool(t *testing.T, client *fakeClient) (*Pool, *fakeAccountsRepo) {
	t.Helper()
	repo := newFakeAccountsRepo()
	pool := NewPool(nil, &fakeRepoManager{accounts: repo}, queue.NewMemoryQueue(1),
		&fakeDialer{client: client}, testConfig(), logging.NewSlogLogger(slog.Default()))
	return pool, repo
}

func requestJob(t *testing.T, phone, ownerID string) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(&models.RequestCodeJob{
		Phone: phone,
		Owner: models.Owner{ID: ownerID, Email: "u@example.com"},
	})
	require.NoError(t, err)
	return &queue.Job{ID: "j1", Name: models.JobRequestCode, Payload: payload, MaxAttempts: 3}
}

func verifyJob(t *testing.T, phone, code, ownerID string) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(&models.VerifyCodeJob{
		Phone: phone,
		Code:  code,
		Owner: models.Owner{ID: ownerID, Email: "u@example.com"},
	})
	require.NoError(t, err)
	return &queue.Job{ID: "j2", Name: models.JobVerifyCode, Payload: payload, MaxAttempts: 2}
}

func TestRequestCodeStoresPendingState(t *testing.T) {
	client := &fakeClient{sentCode: &telegram.SentCode{PhoneCodeHash: "pch-1"}}
	pool, repo := newTestPool(t, client)
	ctx := context.Background()

	require.NoError(t, pool.handle(ctx, requestJob(t, "+1000", "u1")))

	st := pool.stripeFor("+1000")
	auth, ok := st.pending["+1000"]
	require.True(t, ok)
	assert.Equal(t, "pch-1", auth.phoneCodeHash)
	assert.Equal(t, "u1", auth.ownerID)
	assert.False(t, client.disconnected)

	require.Len(t, repo.upserts, 1)
	require.NotNil(t, repo.upserts[0].Status)
	assert.Equal(t, models.LinkedAccountPending, *repo.upserts[0].Status)
}

func TestRequestCodeMissingCredentials(t *testing.T) {
	client := &fakeClient{sentCode: &telegram.SentCode{PhoneCodeHash: "pch"}}
	pool, _ := newTestPool(t, client)
	pool.cfg.TelegramAPIHash = ""

	err := pool.handle(context.Background(), requestJob(t, "+1000", "u1"))
	assert.ErrorIs(t, err, common.ErrMissingSecret)
}

func TestRequestCodeEmptyCorrelationToken(t *testing.T) {
	client := &fakeClient{sentCode: &telegram.SentCode{}}
	pool, _ := newTestPool(t, client)

	err := pool.handle(context.Background(), requestJob(t, "+1000", "u1"))
	assert.ErrorIs(t, err, common.ErrProtocol)
	assert.True(t, client.disconnected)

	st := pool.stripeFor("+1000")
	assert.Empty(t, st.pending)
}

func TestRequestCodeFailsWhenMarkPendingFails(t *testing.T) {
	client := &fakeClient{sentCode: &telegram.SentCode{PhoneCodeHash: "pch"}}
	pool, repo := newTestPool(t, client)
	repo.upsertErr = errors.New("db down")

	// The job must fail so the queue retries it, not report success with the
	// account never marked pending.
	err := pool.handle(context.Background(), requestJob(t, "+1000", "u1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.upsertErr)
	assert.True(t, client.disconnected)

	st := pool.stripeFor("+1000")
	assert.Empty(t, st.pending)
}

func TestRequestCodeExternalFailure(t *testing.T) {
	client := &fakeClient{sendCodeErr: errors.New("flood wait")}
	pool, _ := newTestPool(t, client)

	err := pool.handle(context.Background(), requestJob(t, "+1000", "u1"))
	assert.ErrorIs(t, err, common.ErrExternalCall)
	assert.True(t, client.disconnected)
}

func TestRequestCodeResumesStoredSession(t *testing.T) {
	client := &fakeClient{sentCode: &telegram.SentCode{PhoneCodeHash: "pch"}}
	pool, repo := newTestPool(t, client)

	key, err := cryptox.DeriveKey(pool.cfg.SessionSecret)
	require.NoError(t, err)
	enc, err := cryptox.EncryptString("resumable-session", key)
	require.NoError(t, err)
	repo.byUserPhone["u1|+1000"] = &models.LinkedAccount{
		UserID: "u1", Phone: "+1000", SessionString: &enc,
		Status: models.LinkedAccountActive,
	}

	require.NoError(t, pool.handle(context.Background(), requestJob(t, "+1000", "u1")))
	assert.Equal(t, "resumable-session", client.connectSession)
}

func TestRequestCodeReplacesStaleHandshake(t *testing.T) {
	first := &fakeClient{sentCode: &telegram.SentCode{PhoneCodeHash: "pch-old"}}
	pool, _ := newTestPool(t, first)
	ctx := context.Background()

	require.NoError(t, pool.handle(ctx, requestJob(t, "+1000", "u1")))

	second := &fakeClient{sentCode: &telegram.SentCode{PhoneCodeHash: "pch-new"}}
	pool.dialer = &fakeDialer{client: second}
	require.NoError(t, pool.handle(ctx, requestJob(t, "+1000", "u1")))

	assert.True(t, first.disconnected)
	st := pool.stripeFor("+1000")
	assert.Equal(t, "pch-new", st.pending["+1000"].phoneCodeHash)
}

func TestVerifyCodeWithoutRequest(t *testing.T) {
	pool, _ := newTestPool(t, &fakeClient{})

	err := pool.handle(context.Background(), verifyJob(t, "+1000", "12345", "u1"))
	assert.ErrorIs(t, err, common.ErrNotRequested)
}

func TestVerifyCodeOwnerMismatch(t *testing.T) {
	client := &fakeClient{sentCode: &telegram.SentCode{PhoneCodeHash: "pch"}}
	pool, _ := newTestPool(t, client)
	ctx := context.Background()

	require.NoError(t, pool.handle(ctx, requestJob(t, "+1000", "u1")))

	err := pool.handle(ctx, verifyJob(t, "+1000", "12345", "u2"))
	assert.ErrorIs(t, err, common.ErrNotRequested)

	// u1's handshake survives u2's attempt.
	st := pool.stripeFor("+1000")
	assert.Contains(t, st.pending, "+1000")
	assert.False(t, client.disconnected)
}

func TestVerifyCodeSuccess(t *testing.T) {
	client := &fakeClient{
		sentCode: &telegram.SentCode{PhoneCodeHash: "pch"},
		exported: "exported-session",
	}
	pool, repo := newTestPool(t, client)
	ctx := context.Background()

	require.NoError(t, pool.handle(ctx, requestJob(t, "+1000", "u1")))
	require.NoError(t, pool.handle(ctx, verifyJob(t, "+1000", " 12345 ", "u1")))

	assert.Equal(t, "12345", client.signInCode)
	assert.Equal(t, "pch", client.signInHash)
	assert.True(t, client.disconnected)

	st := pool.stripeFor("+1000")
	assert.Empty(t, st.pending)

	account := repo.byUserPhone["u1|+1000"]
	require.NotNil(t, account)
	assert.Equal(t, models.LinkedAccountActive, account.Status)
	require.NotNil(t, account.SessionString)

	key, err := cryptox.DeriveKey(pool.cfg.SessionSecret)
	require.NoError(t, err)
	plain, err := cryptox.DecryptString(*account.SessionString, key)
	require.NoError(t, err)
	assert.Equal(t, "exported-session", plain)
}

func TestVerifyCodeFailureConsumesHandshake(t *testing.T) {
	client := &fakeClient{
		sentCode:  &telegram.SentCode{PhoneCodeHash: "pch"},
		signInErr: errors.New("code invalid"),
	}
	pool, repo := newTestPool(t, client)
	ctx := context.Background()

	require.NoError(t, pool.handle(ctx, requestJob(t, "+1000", "u1")))

	err := pool.handle(ctx, verifyJob(t, "+1000", "00000", "u1"))
	assert.ErrorIs(t, err, common.ErrExternalCall)
	assert.True(t, client.disconnected)

	st := pool.stripeFor("+1000")
	assert.Empty(t, st.pending)

	// The account stays pending, no secret stored.
	account := repo.byUserPhone["u1|+1000"]
	require.NotNil(t, account)
	assert.Equal(t, models.LinkedAccountPending, account.Status)
	assert.Nil(t, account.SessionString)
}

func TestUnknownJobIsDropped(t *testing.T) {
	pool, _ := newTestPool(t, &fakeClient{})
	err := pool.handle(context.Background(), &queue.Job{ID: "x", Name: "bogus"})
	assert.NoError(t, err)
}

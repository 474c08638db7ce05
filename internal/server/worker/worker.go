// Package worker runs the linking worker pool: queue consumers that drive
// the phone-verification handshake against the external messaging network.
//
// The handshake spans two jobs. A request-code job opens a connection,
// requests a login code, and parks the live connection as per-phone pending
// state. A verify-code job picks that connection back up, completes the
// sign-in, and persists the exported session encrypted. Pending state is
// transient: a restart loses it and the user simply requests a new code.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/dmitrijs2005/tglinker/internal/common"
	"github.com/dmitrijs2005/tglinker/internal/cryptox"
	"github.com/dmitrijs2005/tglinker/internal/dbx"
	"github.com/dmitrijs2005/tglinker/internal/logging"
	"github.com/dmitrijs2005/tglinker/internal/server/config"
	"github.com/dmitrijs2005/tglinker/internal/server/models"
	"github.com/dmitrijs2005/tglinker/internal/server/queue"
	"github.com/dmitrijs2005/tglinker/internal/server/repositories/linkedaccounts"
	"github.com/dmitrijs2005/tglinker/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tglinker/internal/server/telegram"
)

const pendingStripes = 16

// pendingAuth is one in-flight handshake: the live connection plus the
// correlation hash returned by the code request, owned by a single user.
type pendingAuth struct {
	client        telegram.Client
	phoneCodeHash string
	ownerID       string
}

// stripe guards a shard of the pending map. Jobs for the same phone always
// hit the same stripe, so two handshakes for one phone serialize while
// unrelated phones proceed in parallel.
type stripe struct {
	mu      sync.Mutex
	pending map[string]*pendingAuth
}

// Pool is the linking worker pool.
type Pool struct {
	db          dbx.DBTX
	repomanager repomanager.RepositoryManager
	queue       queue.Queue
	dialer      telegram.Dialer
	cfg         *config.Config
	logger      logging.Logger

	stripes [pendingStripes]stripe
}

func NewPool(db dbx.DBTX, m repomanager.RepositoryManager, q queue.Queue, dialer telegram.Dialer, cfg *config.Config, logger logging.Logger) *Pool {
	p := &Pool{
		db:          db,
		repomanager: m,
		queue:       q,
		dialer:      dialer,
		cfg:         cfg,
		logger:      logger.With("module", "linking_worker"),
	}
	for i := range p.stripes {
		p.stripes[i].pending = make(map[string]*pendingAuth)
	}
	return p
}

func (p *Pool) stripeFor(phone string) *stripe {
	h := fnv.New32a()
	h.Write([]byte(phone))
	return &p.stripes[h.Sum32()%pendingStripes]
}

// Run starts the configured number of consumers and blocks until ctx is
// cancelled and they drain.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := p.queue.Consume(ctx, p.handle); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error(ctx, "consumer stopped", "worker", n, "error", err.Error())
			}
		}(i)
	}
	wg.Wait()
}

func (p *Pool) handle(ctx context.Context, job *queue.Job) error {
	switch job.Name {
	case models.JobRequestCode:
		var payload models.RequestCodeJob
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			p.logger.Error(ctx, "undecodable request-code payload", "job_id", job.ID, "error", err.Error())
			return nil
		}
		return p.handleRequestCode(ctx, &payload)
	case models.JobVerifyCode:
		var payload models.VerifyCodeJob
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			p.logger.Error(ctx, "undecodable verify-code payload", "job_id", job.ID, "error", err.Error())
			return nil
		}
		return p.handleVerifyCode(ctx, &payload)
	default:
		p.logger.Warn(ctx, "unknown job", "job_id", job.ID, "job", job.Name)
		return nil
	}
}

func (p *Pool) credentials() (telegram.Credentials, error) {
	if p.cfg.TelegramAPIID == 0 || p.cfg.TelegramAPIHash == "" {
		return telegram.Credentials{}, common.ErrMissingSecret
	}
	return telegram.Credentials{APIID: p.cfg.TelegramAPIID, APIHash: p.cfg.TelegramAPIHash}, nil
}

// storedSession loads and decrypts the session previously linked to
// (owner, phone), if any. Resuming it lets a re-link skip a full login.
func (p *Pool) storedSession(ctx context.Context, ownerID, phone string) (string, error) {
	account, err := p.repomanager.LinkedAccounts(p.db).GetByUserAndPhone(ctx, ownerID, phone)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", nil
		}
		return "", err
	}
	if account.SessionString == nil {
		return "", nil
	}
	key, err := cryptox.DeriveKey(p.cfg.SessionSecret)
	if err != nil {
		return "", err
	}
	plain, err := cryptox.DecryptString(*account.SessionString, key)
	if err != nil {
		// An undecryptable stored session is treated as absent so the
		// handshake can start over and replace it.
		p.logger.Warn(ctx, "stored session undecryptable, starting fresh",
			"user_id", ownerID, "error", err.Error())
		return "", nil
	}
	return plain, nil
}

func (p *Pool) handleRequestCode(ctx context.Context, job *models.RequestCodeJob) error {
	creds, err := p.credentials()
	if err != nil {
		return err
	}

	st := p.stripeFor(job.Phone)
	st.mu.Lock()
	defer st.mu.Unlock()

	session, err := p.storedSession(ctx, job.Owner.ID, job.Phone)
	if err != nil {
		return err
	}

	client, err := p.dialer.Dial(creds)
	if err != nil {
		return fmt.Errorf("%w: dial: %w", common.ErrExternalCall, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.TelegramCallTimeout)
	defer cancel()

	if err := client.Connect(callCtx, session); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("%w: connect: %w", common.ErrExternalCall, err)
	}

	sent, err := client.SendCode(callCtx, job.Phone)
	if err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("%w: send code: %w", common.ErrExternalCall, err)
	}
	if sent.PhoneCodeHash == "" {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("%w: empty phone code hash", common.ErrProtocol)
	}

	// A new request supersedes any stale handshake for the same phone.
	if stale, ok := st.pending[job.Phone]; ok {
		_ = stale.client.Disconnect(ctx)
	}
	st.pending[job.Phone] = &pendingAuth{
		client:        client,
		phoneCodeHash: sent.PhoneCodeHash,
		ownerID:       job.Owner.ID,
	}

	status := models.LinkedAccountPending
	if _, err := p.repomanager.LinkedAccounts(p.db).Upsert(ctx, job.Owner.ID, job.Phone, linkedaccounts.Patch{Status: &status}); err != nil {
		// Fail the job so the queue retries it. A retried request dials a
		// fresh client and replaces this handshake, so drop it now.
		delete(st.pending, job.Phone)
		_ = client.Disconnect(ctx)
		return fmt.Errorf("db error: %w", err)
	}

	p.logger.Info(ctx, "verification code requested", "user_id", job.Owner.ID)
	return nil
}

func (p *Pool) handleVerifyCode(ctx context.Context, job *models.VerifyCodeJob) error {
	st := p.stripeFor(job.Phone)
	st.mu.Lock()
	defer st.mu.Unlock()

	auth, ok := st.pending[job.Phone]
	if !ok {
		return fmt.Errorf("%w: no code requested for phone", common.ErrNotRequested)
	}
	if auth.ownerID != job.Owner.ID {
		// Another user's handshake is in flight for this phone. Leave it
		// alone.
		return fmt.Errorf("%w: handshake belongs to another user", common.ErrNotRequested)
	}

	// One sign-in attempt consumes the pending handshake either way.
	delete(st.pending, job.Phone)
	defer func() { _ = auth.client.Disconnect(ctx) }()

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.TelegramCallTimeout)
	defer cancel()

	code := strings.TrimSpace(job.Code)
	if err := auth.client.SignIn(callCtx, job.Phone, code, auth.phoneCodeHash); err != nil {
		return fmt.Errorf("%w: sign in: %w", common.ErrExternalCall, err)
	}

	session, err := auth.client.ExportSession(callCtx)
	if err != nil {
		return fmt.Errorf("%w: export session: %w", common.ErrExternalCall, err)
	}

	key, err := cryptox.DeriveKey(p.cfg.SessionSecret)
	if err != nil {
		return err
	}
	encrypted, err := cryptox.EncryptString(session, key)
	if err != nil {
		return err
	}

	status := models.LinkedAccountActive
	if _, err := p.repomanager.LinkedAccounts(p.db).Upsert(ctx, job.Owner.ID, job.Phone, linkedaccounts.Patch{
		SessionString: &encrypted,
		Status:        &status,
	}); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	p.logger.Info(ctx, "account linked", "user_id", job.Owner.ID)
	return nil
}

package linkedaccounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tglinker/internal/common"
	"github.com/dmitrijs2005/tglinker/internal/dbx"
	"github.com/dmitrijs2005/tglinker/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const accountColumns = "id, user_id, phone, session_string, status, created_at"

func scanAccount(row *sql.Row) (*models.LinkedAccount, error) {
	account := &models.LinkedAccount{}
	err := row.Scan(&account.ID, &account.UserID, &account.Phone,
		&account.SessionString, &account.Status, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return account, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.LinkedAccount, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM linked_accounts
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var accounts []*models.LinkedAccount
	for rows.Next() {
		account := &models.LinkedAccount{}
		if err := rows.Scan(&account.ID, &account.UserID, &account.Phone,
			&account.SessionString, &account.Status, &account.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return accounts, nil
}

func (r *PostgresRepository) Create(ctx context.Context, account *models.LinkedAccount) (*models.LinkedAccount, error) {
	query := `
		INSERT INTO linked_accounts (user_id, phone, session_string, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		account.UserID, account.Phone, account.SessionString, account.Status).
		Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return account, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID, id string) (*models.LinkedAccount, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM linked_accounts
		WHERE id = $1 AND user_id = $2
	`
	return scanAccount(r.db.QueryRowContext(ctx, query, id, userID))
}

func (r *PostgresRepository) GetByUserAndPhone(ctx context.Context, userID, phone string) (*models.LinkedAccount, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM linked_accounts
		WHERE user_id = $1 AND phone = $2
	`
	return scanAccount(r.db.QueryRowContext(ctx, query, userID, phone))
}

func (r *PostgresRepository) Update(ctx context.Context, userID, id string, patch Patch) (*models.LinkedAccount, error) {
	query := `
		UPDATE linked_accounts SET
			phone = COALESCE($3, phone),
			session_string = CASE WHEN $5 THEN NULL ELSE COALESCE($4, session_string) END,
			status = COALESCE($6, status)
		WHERE id = $1 AND user_id = $2
		RETURNING ` + accountColumns + `
	`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query,
		id, userID, patch.Phone, patch.SessionString, patch.ClearSession, statusArg(patch.Status)))
	if err != nil && isUniqueViolation(err) {
		return nil, common.ErrorAlreadyExists
	}
	return account, err
}

// Upsert inserts a pending row for (userID, phone) when none exists and
// applies the patch otherwise, in a single statement so concurrent callers
// fall through the unique constraint instead of racing a pre-check.
func (r *PostgresRepository) Upsert(ctx context.Context, userID, phone string, patch Patch) (*models.LinkedAccount, error) {
	query := `
		INSERT INTO linked_accounts (user_id, phone, session_string, status)
		VALUES ($1, $2, $3, COALESCE($5, 'pending'))
		ON CONFLICT (user_id, phone) DO UPDATE SET
			session_string = CASE WHEN $4 THEN NULL
				ELSE COALESCE($3, linked_accounts.session_string) END,
			status = COALESCE($5, linked_accounts.status)
		RETURNING ` + accountColumns + `
	`
	return scanAccount(r.db.QueryRowContext(ctx, query,
		userID, phone, patch.SessionString, patch.ClearSession, statusArg(patch.Status)))
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	query := `
		DELETE FROM linked_accounts
		WHERE id = $1 AND user_id = $2
	`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// statusArg converts an optional status to a nullable SQL argument.
func statusArg(status *models.LinkedAccountStatus) any {
	if status == nil {
		return nil
	}
	return string(*status)
}

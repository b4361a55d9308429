/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the `transactions`
 * and `backup_sms` tables.
 *
 * @notes
 * - Dedup relies on a partial unique index over non-empty transaction_id values;
 *   InsertIfAbsent uses ON CONFLICT DO NOTHING so concurrent re-deliveries of the
 *   same notification resolve to a single row without an explicit lock.
 * - CompleteOnePending is the one mandatory serialization point in the system:
 *   the candidate row is selected FOR UPDATE SKIP LOCKED and the UPDATE repeats
 *   the status='PENDING' guard, so two concurrent verifications can never both
 *   complete the same row.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smswatch/ledger-service/internal/domain"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrNoPendingMatch      = errors.New("no matching pending transaction")
)

const transactionColumns = `
	id, transaction_id, sender, account_number, reference, service_type,
	transaction_type, amount, amount_canonical, sim_info, original_message,
	ip_address, device_info, status, verified_at, verified_by, created_at
`

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := row.Scan(
		&tx.ID, &tx.TransactionID, &tx.SenderLabel, &tx.AccountNumber, &tx.Reference,
		&tx.ServiceType, &tx.TransactionType, &tx.AmountText, &tx.AmountCanonical,
		&tx.SimInfo, &tx.OriginalMessage, &tx.ClientIP, &tx.DeviceInfo,
		&tx.Status, &tx.VerifiedAt, &tx.VerifiedBy, &tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// FindByTransactionID retrieves a transaction by its external transaction id.
func (r *PostgresRepository) FindByTransactionID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_id = $1 AND transaction_id <> ''`
	tx, err := scanTransaction(r.db.QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("find by transaction id: %w", err)
	}
	return tx, nil
}

// FindByServiceAndTransactionID retrieves a transaction by the (service type,
// external id) pair. Service type comparison is case-insensitive.
func (r *PostgresRepository) FindByServiceAndTransactionID(ctx context.Context, serviceType, transactionID string) (*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE lower(service_type) = lower($1) AND transaction_id = $2 AND transaction_id <> ''
	`
	tx, err := scanTransaction(r.db.QueryRow(ctx, query, serviceType, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("find by service and transaction id: %w", err)
	}
	return tx, nil
}

// InsertIfAbsent persists a new transaction unless one with the same non-empty
// external id already exists. The partial unique index idx_transactions_txid
// makes this race-free for concurrent re-deliveries.
func (r *PostgresRepository) InsertIfAbsent(ctx context.Context, tx *domain.Transaction) (bool, *domain.Transaction, error) {
	query := `
		INSERT INTO transactions (
			id, transaction_id, sender, account_number, reference, service_type,
			transaction_type, amount, amount_canonical, sim_info, original_message,
			ip_address, device_info, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (transaction_id) WHERE transaction_id <> '' DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query,
		tx.ID,
		tx.TransactionID,
		tx.SenderLabel,
		tx.AccountNumber,
		tx.Reference,
		tx.ServiceType,
		tx.TransactionType,
		tx.AmountText,
		tx.AmountCanonical,
		tx.SimInfo,
		tx.OriginalMessage,
		tx.ClientIP,
		tx.DeviceInfo,
		tx.Status,
		tx.CreatedAt,
	)
	if err != nil {
		return false, nil, fmt.Errorf("insert transaction: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil, nil
	}

	existing, err := r.FindByTransactionID(ctx, tx.TransactionID)
	if err != nil {
		return false, nil, fmt.Errorf("load existing transaction after conflict: %w", err)
	}
	return false, existing, nil
}

// CompleteOnePending atomically flips one matching PENDING row to COMPLETED.
// The inner select takes a row lock (SKIP LOCKED so concurrent verifications
// move on to the next candidate instead of blocking) and the outer UPDATE
// re-checks the status, so at most one caller completes any given row.
func (r *PostgresRepository) CompleteOnePending(ctx context.Context, match PendingMatch, verifiedBy string, now time.Time) (*domain.Transaction, error) {
	query := `
		UPDATE transactions
		SET status = $1, verified_at = $2, verified_by = $3
		WHERE id = (
			SELECT id FROM transactions
			WHERE status = $4
			  AND lower(service_type) = lower($5)
			  AND ($6 = '' OR transaction_id = $6)
			  AND amount_canonical = $7
			ORDER BY created_at DESC, id DESC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		AND status = $4
		RETURNING ` + transactionColumns

	tx, err := scanTransaction(r.db.QueryRow(ctx, query,
		domain.StatusCompleted,
		now,
		verifiedBy,
		domain.StatusPending,
		match.ServiceType,
		match.TransactionID,
		match.Amount,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoPendingMatch
		}
		return nil, fmt.Errorf("complete pending transaction: %w", err)
	}
	return tx, nil
}

// ListAll retrieves every transaction, newest first.
func (r *PostgresRepository) ListAll(ctx context.Context) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions ORDER BY created_at DESC, id DESC`
	return r.queryTransactions(ctx, query)
}

// ListRecent retrieves up to limit transactions, newest first.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions ORDER BY created_at DESC, id DESC LIMIT $1`
	return r.queryTransactions(ctx, query, limit)
}

func (r *PostgresRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		transactions = append(transactions, *tx)
	}
	return transactions, rows.Err()
}

// AppendBackup stores one raw SMS backup record.
func (r *PostgresRepository) AppendBackup(ctx context.Context, record *domain.BackupRecord) error {
	query := `INSERT INTO backup_sms (id, sms_data, ip_address, created_at) VALUES ($1, $2, $3, $4)`
	_, err := r.db.Exec(ctx, query, record.ID, record.SMSText, record.ClientIP, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("append backup: %w", err)
	}
	return nil
}

// PruneBackups deletes all but the newest keep backup records.
func (r *PostgresRepository) PruneBackups(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	query := `
		DELETE FROM backup_sms
		WHERE id NOT IN (
			SELECT id FROM backup_sms ORDER BY created_at DESC, id DESC LIMIT $1
		)
	`
	tag, err := r.db.Exec(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("prune backups: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ClearAll removes every transaction and backup record in one transaction.
func (r *PostgresRepository) ClearAll(ctx context.Context) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM transactions`); err != nil {
		return fmt.Errorf("clear transactions: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM backup_sms`); err != nil {
		return fmt.Errorf("clear backups: %w", err)
	}
	return tx.Commit(ctx)
}

var _ Repository = (*PostgresRepository)(nil)

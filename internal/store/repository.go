/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the ledger-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/shopspring/decimal: Canonical amount values used in match predicates.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smswatch/ledger-service/internal/domain"
)

// PendingMatch is the predicate for completing one PENDING transaction.
// ServiceType is compared case-insensitively. When TransactionID is empty the
// match is by service and amount alone, and the newest record wins.
type PendingMatch struct {
	ServiceType   string
	TransactionID string
	Amount        decimal.Decimal
}

// Repository defines the set of methods for interacting with the ledger.
type Repository interface {
	// FindByTransactionID looks a record up by its external transaction id.
	// Returns ErrTransactionNotFound when no record carries that id.
	FindByTransactionID(ctx context.Context, transactionID string) (*domain.Transaction, error)

	// FindByServiceAndTransactionID looks a record up by the (service type,
	// external id) pair, case-insensitive on the service type.
	FindByServiceAndTransactionID(ctx context.Context, serviceType, transactionID string) (*domain.Transaction, error)

	// InsertIfAbsent persists tx unless a record with the same non-empty
	// external transaction id already exists. It is atomic with respect to
	// concurrent inserts of the same id: exactly one caller observes
	// inserted=true, the others get the existing record back.
	InsertIfAbsent(ctx context.Context, tx *domain.Transaction) (inserted bool, existing *domain.Transaction, err error)

	// CompleteOnePending atomically selects a single PENDING record satisfying
	// match, flips it to COMPLETED with the given verifier identity and
	// timestamp, and returns the updated record. When several records satisfy
	// the predicate the most recently created wins. Returns
	// ErrNoPendingMatch when nothing matched. Two concurrent calls can never
	// both complete the same record.
	CompleteOnePending(ctx context.Context, match PendingMatch, verifiedBy string, now time.Time) (*domain.Transaction, error)

	// ListAll returns every transaction, newest first. Used by the statistics
	// aggregator.
	ListAll(ctx context.Context) ([]domain.Transaction, error)

	// ListRecent returns up to limit transactions, newest first.
	ListRecent(ctx context.Context, limit int) ([]domain.Transaction, error)

	// AppendBackup stores one raw SMS backup record.
	AppendBackup(ctx context.Context, record *domain.BackupRecord) error

	// PruneBackups deletes all but the newest keep backup records and reports
	// how many rows were removed.
	PruneBackups(ctx context.Context, keep int) (int64, error)

	// ClearAll removes every transaction and backup record. Administrative
	// operation; must never be triggered by a read or write path.
	ClearAll(ctx context.Context) error
}

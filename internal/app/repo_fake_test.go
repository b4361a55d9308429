package app

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/smswatch/ledger-service/internal/domain"
	"github.com/smswatch/ledger-service/internal/store"
)

// fakeRepository is an in-memory Repository with the same atomicity contract
// as the PostgreSQL implementation: one winner per insert race, at most one
// completion per record.
type fakeRepository struct {
	mu      sync.Mutex
	records []domain.Transaction
	backups []domain.BackupRecord

	insertErr   error
	completeErr error
	listErr     error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{}
}

func (f *fakeRepository) FindByTransactionID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findByTxIDLocked(transactionID)
}

func (f *fakeRepository) findByTxIDLocked(transactionID string) (*domain.Transaction, error) {
	if transactionID == "" {
		return nil, store.ErrTransactionNotFound
	}
	for i := range f.records {
		if f.records[i].TransactionID == transactionID {
			tx := f.records[i]
			return &tx, nil
		}
	}
	return nil, store.ErrTransactionNotFound
}

func (f *fakeRepository) FindByServiceAndTransactionID(ctx context.Context, serviceType, transactionID string) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if transactionID == "" {
		return nil, store.ErrTransactionNotFound
	}
	for i := range f.records {
		if strings.EqualFold(f.records[i].ServiceType, serviceType) && f.records[i].TransactionID == transactionID {
			tx := f.records[i]
			return &tx, nil
		}
	}
	return nil, store.ErrTransactionNotFound
}

func (f *fakeRepository) InsertIfAbsent(ctx context.Context, tx *domain.Transaction) (bool, *domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return false, nil, f.insertErr
	}
	if tx.TransactionID != "" {
		if existing, err := f.findByTxIDLocked(tx.TransactionID); err == nil {
			return false, existing, nil
		}
	}
	f.records = append(f.records, *tx)
	return true, nil, nil
}

func (f *fakeRepository) CompleteOnePending(ctx context.Context, match store.PendingMatch, verifiedBy string, now time.Time) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return nil, f.completeErr
	}

	best := -1
	for i := range f.records {
		r := &f.records[i]
		if r.Status != domain.StatusPending {
			continue
		}
		if !strings.EqualFold(r.ServiceType, match.ServiceType) {
			continue
		}
		if match.TransactionID != "" && r.TransactionID != match.TransactionID {
			continue
		}
		if !r.AmountCanonical.Equal(match.Amount) {
			continue
		}
		if best == -1 || r.CreatedAt.After(f.records[best].CreatedAt) {
			best = i
		}
	}
	if best == -1 {
		return nil, store.ErrNoPendingMatch
	}

	f.records[best].Status = domain.StatusCompleted
	f.records[best].VerifiedAt = &now
	f.records[best].VerifiedBy = &verifiedBy
	tx := f.records[best]
	return &tx, nil
}

func (f *fakeRepository) ListAll(ctx context.Context) ([]domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Transaction, len(f.records))
	copy(out, f.records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeRepository) ListRecent(ctx context.Context, limit int) ([]domain.Transaction, error) {
	all, err := f.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeRepository) AppendBackup(ctx context.Context, record *domain.BackupRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backups = append(f.backups, *record)
	return nil
}

func (f *fakeRepository) PruneBackups(ctx context.Context, keep int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if keep <= 0 || len(f.backups) <= keep {
		return 0, nil
	}
	sort.SliceStable(f.backups, func(i, j int) bool {
		return f.backups[i].CreatedAt.After(f.backups[j].CreatedAt)
	})
	removed := int64(len(f.backups) - keep)
	f.backups = f.backups[:keep]
	return removed, nil
}

func (f *fakeRepository) ClearAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = nil
	f.backups = nil
	return nil
}

var _ store.Repository = (*fakeRepository)(nil)

func (f *fakeRepository) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func (f *fakeRepository) completedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for i := range f.records {
		if f.records[i].Status == domain.StatusCompleted {
			n++
		}
	}
	return n
}

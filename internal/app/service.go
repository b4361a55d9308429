/**
 * @description
 * This file contains the core business logic for the ledger-service. The `Service`
 * struct orchestrates ingestion of SMS-captured payment notifications, verification
 * matching against the PENDING set, backup logging, and statistics, coordinating
 * between the database repository and the message broker.
 *
 * Key features:
 * - Idempotent ingestion: re-delivery of a notification with a known external
 *   transaction id never writes a second row.
 * - At-most-once completion: the PENDING->COMPLETED transition is delegated to
 *   the store's atomic CompleteOnePending, never a read-then-write.
 * - Publishes ledger events to RabbitMQ for asynchronous consumers.
 *
 * @dependencies
 * - context, errors, fmt, log, strings, time: Standard Go libraries.
 * - github.com/google/uuid: For record id generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smswatch/ledger-service/internal/domain"
	"github.com/smswatch/ledger-service/internal/store"
	"github.com/smswatch/ledger-service/pkg/rabbitmq"
)

var (
	ErrInvalidPayload = errors.New("invalid transaction payload")
)

// Service provides the core business logic for the transaction ledger.
type Service struct {
	repo       store.Repository
	events     rabbitmq.Publisher
	statsCache *StatsCache

	statsLocation        *time.Location
	recentLimit          int
	allowZeroAmountMatch bool
}

// Option configures optional Service collaborators and policies.
type Option func(*Service)

// WithEventPublisher attaches a RabbitMQ publisher for ledger events.
func WithEventPublisher(p rabbitmq.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithStatsCache attaches a Redis-backed statistics snapshot cache.
func WithStatsCache(c *StatsCache) Option {
	return func(s *Service) { s.statsCache = c }
}

// WithStatsLocation fixes the calendar time zone used for the today count.
func WithStatsLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.statsLocation = loc
		}
	}
}

// WithRecentLimit caps the recent-transactions view in statistics.
func WithRecentLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.recentLimit = limit
		}
	}
}

// WithZeroAmountMatching enables matching verification requests whose amount
// normalizes to zero. The substitution parser maps blank or garbage amounts to
// zero, so leaving this off keeps a blank verification amount from consuming a
// blank-amount PENDING record.
func WithZeroAmountMatching(allow bool) Option {
	return func(s *Service) { s.allowZeroAmountMatch = allow }
}

// NewService creates a new ledger service instance.
func NewService(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		statsLocation: time.UTC,
		recentLimit:   20,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest validates and persists an incoming payment notification as PENDING.
// Re-delivery of a notification with a known external transaction id is a
// no-op: the existing record's status comes back with IsNew=false and the
// ledger is untouched.
func (s *Service) Ingest(ctx context.Context, req domain.IngestRequest, clientIP string) (*domain.IngestResult, error) {
	if strings.TrimSpace(req.ServiceType) == "" {
		return nil, fmt.Errorf("%w: service_type is required", ErrInvalidPayload)
	}

	txid := strings.TrimSpace(req.TransactionID)

	// Fast path: a known external id short-circuits before building anything.
	if txid != "" {
		existing, err := s.repo.FindByTransactionID(ctx, txid)
		if err != nil && !errors.Is(err, store.ErrTransactionNotFound) {
			return nil, fmt.Errorf("dedup lookup failed: %w", err)
		}
		if existing != nil {
			log.Printf("level=info component=ingest outcome=duplicate transaction_id=%s status=%s", txid, existing.Status)
			return &domain.IngestResult{
				RecordID:      existing.ID,
				TransactionID: existing.TransactionID,
				Status:        existing.Status,
				IsNew:         false,
			}, nil
		}
	}

	amountText := strings.TrimSpace(req.AmountText)
	record := &domain.Transaction{
		ID:              uuid.New(),
		TransactionID:   txid,
		SenderLabel:     domain.TruncateField(req.SenderLabel),
		AccountNumber:   domain.TruncateField(req.AccountNumber),
		Reference:       domain.TruncateField(req.Reference),
		ServiceType:     strings.TrimSpace(req.ServiceType),
		TransactionType: domain.TruncateField(req.TransactionType),
		AmountText:      amountText,
		AmountCanonical: domain.NormalizeAmount(amountText),
		SimInfo:         domain.TruncateField(req.SimInfo),
		OriginalMessage: domain.TruncateField(req.OriginalMessage),
		ClientIP:        clientIP,
		DeviceInfo:      domain.TruncateField(req.DeviceInfo),
		Status:          domain.StatusPending,
		CreatedAt:       time.Now().UTC(),
	}

	inserted, existing, err := s.repo.InsertIfAbsent(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("persist transaction: %w", err)
	}
	if !inserted {
		// Lost the insert race against a concurrent re-delivery.
		log.Printf("level=info component=ingest outcome=duplicate_concurrent transaction_id=%s status=%s", txid, existing.Status)
		return &domain.IngestResult{
			RecordID:      existing.ID,
			TransactionID: existing.TransactionID,
			Status:        existing.Status,
			IsNew:         false,
		}, nil
	}

	log.Printf("level=info component=ingest outcome=recorded id=%s transaction_id=%s service=%s", record.ID, txid, record.ServiceType)
	s.publishEvent(ctx, rabbitmq.RoutingKeyTransactionRecorded, rabbitmq.LedgerEvent{
		RecordID:      record.ID,
		TransactionID: record.TransactionID,
		ServiceType:   record.ServiceType,
		Status:        record.Status,
		Timestamp:     record.CreatedAt,
	})
	s.invalidateStatsCache(ctx)

	return &domain.IngestResult{
		RecordID:      record.ID,
		TransactionID: record.TransactionID,
		Status:        record.Status,
		IsNew:         true,
	}, nil
}

// SaveBackup appends one raw SMS message to the audit log.
func (s *Service) SaveBackup(ctx context.Context, smsText, clientIP string) error {
	if strings.TrimSpace(smsText) == "" {
		return fmt.Errorf("%w: sms_data is required", ErrInvalidPayload)
	}
	record := &domain.BackupRecord{
		ID:        uuid.New(),
		SMSText:   domain.TruncateField(smsText),
		ClientIP:  clientIP,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.AppendBackup(ctx, record); err != nil {
		return fmt.Errorf("append backup: %w", err)
	}
	return nil
}

// Verify matches a verification request carrying an external transaction id
// against the PENDING set and completes at most one record. Outcome priority:
// a record already COMPLETED for (service, txid) wins over any fresh match, so
// a replayed verification never consumes a second record.
func (s *Service) Verify(ctx context.Context, serviceType, amountText, transactionID, verifiedBy string) (*domain.VerificationResult, error) {
	serviceType = strings.TrimSpace(serviceType)
	transactionID = strings.TrimSpace(transactionID)
	if serviceType == "" || transactionID == "" {
		return nil, fmt.Errorf("%w: service and txid are required", ErrInvalidPayload)
	}

	existing, err := s.repo.FindByServiceAndTransactionID(ctx, serviceType, transactionID)
	if err != nil && !errors.Is(err, store.ErrTransactionNotFound) {
		return nil, fmt.Errorf("verification lookup failed: %w", err)
	}
	if existing != nil && existing.Status == domain.StatusCompleted {
		log.Printf("level=info component=verify outcome=already_completed transaction_id=%s service=%s", transactionID, serviceType)
		return &domain.VerificationResult{Outcome: domain.OutcomeAlreadyCompleted}, nil
	}

	amount := domain.NormalizeAmount(amountText)
	if amount.IsZero() && !s.allowZeroAmountMatch {
		return s.notPendingOrNoMatch(existing, transactionID, serviceType), nil
	}

	completed, err := s.repo.CompleteOnePending(ctx, store.PendingMatch{
		ServiceType:   serviceType,
		TransactionID: transactionID,
		Amount:        amount,
	}, verifiedBy, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNoPendingMatch) {
			return s.notPendingOrNoMatch(existing, transactionID, serviceType), nil
		}
		return nil, fmt.Errorf("complete transaction: %w", err)
	}

	s.afterCompletion(ctx, completed)
	return &domain.VerificationResult{
		Outcome:              domain.OutcomeCompleted,
		MatchedTransactionID: completed.TransactionID,
		MatchedRecords:       1,
	}, nil
}

// VerifyWithoutID matches on service type and amount alone. When several
// PENDING records qualify the most recently created wins: a verification
// request usually arrives moments after its notification, so the newest
// pending entry is the likeliest counterpart.
func (s *Service) VerifyWithoutID(ctx context.Context, serviceType, amountText, verifiedBy string) (*domain.VerificationResult, error) {
	serviceType = strings.TrimSpace(serviceType)
	if serviceType == "" {
		return nil, fmt.Errorf("%w: service is required", ErrInvalidPayload)
	}

	amount := domain.NormalizeAmount(amountText)
	if amount.IsZero() && !s.allowZeroAmountMatch {
		return &domain.VerificationResult{Outcome: domain.OutcomeNoMatch}, nil
	}

	completed, err := s.repo.CompleteOnePending(ctx, store.PendingMatch{
		ServiceType: serviceType,
		Amount:      amount,
	}, verifiedBy, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNoPendingMatch) {
			return &domain.VerificationResult{Outcome: domain.OutcomeNoMatch}, nil
		}
		return nil, fmt.Errorf("complete transaction: %w", err)
	}

	s.afterCompletion(ctx, completed)
	return &domain.VerificationResult{
		Outcome:              domain.OutcomeCompleted,
		MatchedTransactionID: completed.TransactionID,
		MatchedRecords:       1,
	}, nil
}

func (s *Service) notPendingOrNoMatch(existing *domain.Transaction, transactionID, serviceType string) *domain.VerificationResult {
	if existing != nil {
		// The record exists but the full predicate did not hold (amount
		// mismatch, or a concurrent caller just completed it).
		log.Printf("level=info component=verify outcome=not_pending transaction_id=%s service=%s status=%s", transactionID, serviceType, existing.Status)
		return &domain.VerificationResult{Outcome: domain.OutcomeNotPending}
	}
	return &domain.VerificationResult{Outcome: domain.OutcomeNoMatch}
}

func (s *Service) afterCompletion(ctx context.Context, completed *domain.Transaction) {
	log.Printf("level=info component=verify outcome=completed id=%s transaction_id=%s service=%s verified_by=%s",
		completed.ID, completed.TransactionID, completed.ServiceType, derefString(completed.VerifiedBy))
	s.publishEvent(ctx, rabbitmq.RoutingKeyTransactionVerified, rabbitmq.LedgerEvent{
		RecordID:      completed.ID,
		TransactionID: completed.TransactionID,
		ServiceType:   completed.ServiceType,
		Status:        completed.Status,
		Timestamp:     time.Now().UTC(),
	})
	s.invalidateStatsCache(ctx)
}

// CheckStatus reports the lifecycle state of a transaction by its external id.
func (s *Service) CheckStatus(ctx context.Context, transactionID string) (*domain.TransactionStatus, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, fmt.Errorf("%w: txid is required", ErrInvalidPayload)
	}
	tx, err := s.repo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return &domain.TransactionStatus{
		TransactionID: tx.TransactionID,
		Status:        tx.Status,
		VerifiedAt:    tx.VerifiedAt,
	}, nil
}

// Statistics derives the read-only ledger summary. A cached snapshot is served
// when the Redis cache is configured and fresh; any cache failure falls
// through to the ledger.
func (s *Service) Statistics(ctx context.Context) (*domain.StatisticsSnapshot, error) {
	if s.statsCache != nil {
		if snapshot, ok := s.statsCache.Get(ctx); ok {
			return snapshot, nil
		}
	}

	records, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger for statistics: %w", err)
	}
	snapshot := ComputeStatistics(records, time.Now(), s.statsLocation, s.recentLimit)

	if s.statsCache != nil {
		s.statsCache.Set(ctx, snapshot)
	}
	return snapshot, nil
}

// ClearLedger wipes the ledger and backup log. Only reachable through the
// explicit administrative endpoint.
func (s *Service) ClearLedger(ctx context.Context) error {
	if err := s.repo.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}
	log.Printf("level=warn component=admin msg=\"ledger cleared\"")
	s.invalidateStatsCache(ctx)
	return nil
}

// PruneBackups trims the backup log to the newest keep records.
func (s *Service) PruneBackups(ctx context.Context, keep int) error {
	removed, err := s.repo.PruneBackups(ctx, keep)
	if err != nil {
		return fmt.Errorf("prune backups: %w", err)
	}
	if removed > 0 {
		log.Printf("level=info component=retention msg=\"backup records pruned\" removed=%d keep=%d", removed, keep)
	}
	return nil
}

func (s *Service) publishEvent(ctx context.Context, routingKey string, event rabbitmq.LedgerEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLedgerEvent(ctx, routingKey, event); err != nil {
		// Events are best-effort; the ledger write already succeeded.
		log.Printf("level=warn component=events msg=\"publish failed\" routing_key=%s err=%v", routingKey, err)
	}
}

func (s *Service) invalidateStatsCache(ctx context.Context) {
	if s.statsCache != nil {
		s.statsCache.Invalidate(ctx)
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

/**
 * @description
 * This file defines the core domain models for the ledger-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Amounts arrive as free text captured from SMS notifications ("Tk 1,000.00",
 *   "৳500"). The raw text is stored verbatim; the comparable value is the
 *   canonical decimal produced by NormalizeAmount, which is deterministic from
 *   the raw text.
 * - Status is monotonic: once a transaction is COMPLETED it never returns to
 *   PENDING.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction lifecycle states.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
)

// MaxFieldLength bounds the opaque descriptive fields (sender label, reference,
// original message, ...) before they are persisted. SMS payloads are short; a
// field this long is either garbage or an abuse attempt.
const MaxFieldLength = 1024

// Transaction represents one merchant-payment event captured from an SMS
// notification. This struct maps directly to the `transactions` table.
type Transaction struct {
	ID              uuid.UUID       `json:"id"`
	TransactionID   string          `json:"transaction_id"` // external reference; dedup key when non-empty
	SenderLabel     string          `json:"sender"`
	AccountNumber   string          `json:"account_number"`
	Reference       string          `json:"reference"`
	ServiceType     string          `json:"service_type"` // compared case-insensitively everywhere
	TransactionType string          `json:"transaction_type"`
	AmountText      string          `json:"amount"` // raw amount as submitted
	AmountCanonical decimal.Decimal `json:"amount_canonical"`
	SimInfo         string          `json:"sim_info"`
	OriginalMessage string          `json:"original_message"`
	ClientIP        string          `json:"ip_address"`
	DeviceInfo      string          `json:"device_info,omitempty"`
	Status          string          `json:"status"`
	VerifiedAt      *time.Time      `json:"verified_at,omitempty"`
	VerifiedBy      *string         `json:"verified_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// BackupRecord preserves the raw SMS text for audit, independent of the
// transaction ledger. Append-only; retention is a configuration choice.
type BackupRecord struct {
	ID        uuid.UUID `json:"id"`
	SMSText   string    `json:"sms_data"`
	ClientIP  string    `json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
}

// IngestRequest is the DTO for an incoming transaction notification. All
// fields except service type and amount may be empty; parsing happened
// upstream on the mobile client.
type IngestRequest struct {
	TransactionID   string `json:"transaction_id"`
	SenderLabel     string `json:"sender"`
	AccountNumber   string `json:"account_number"`
	Reference       string `json:"reference"`
	ServiceType     string `json:"service_type"`
	TransactionType string `json:"transaction_type"`
	AmountText      string `json:"amount"`
	SimInfo         string `json:"sim_info"`
	OriginalMessage string `json:"original_message"`
	DeviceInfo      string `json:"device_info"`
}

// IngestResult reports the outcome of an ingestion attempt. IsNew is false
// when the notification was a re-delivery of an already-stored transaction,
// in which case Status carries the existing record's current state.
type IngestResult struct {
	RecordID      uuid.UUID `json:"id"`
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"`
	IsNew         bool      `json:"is_new"`
}

// VerificationOutcome is the closed set of results a verification attempt can
// produce. These are normal result variants, not failures.
type VerificationOutcome string

const (
	OutcomeCompleted        VerificationOutcome = "COMPLETED"
	OutcomeAlreadyCompleted VerificationOutcome = "ALREADY_COMPLETED"
	OutcomeNotPending       VerificationOutcome = "TRANSACTION_NOT_PENDING"
	OutcomeNoMatch          VerificationOutcome = "NO_MATCH"
)

// VerificationResult is returned by both verification entry points. On a
// COMPLETED outcome MatchedTransactionID names the record that was consumed,
// which matters on the no-txid path where the caller did not supply one.
type VerificationResult struct {
	Outcome              VerificationOutcome `json:"outcome"`
	MatchedTransactionID string              `json:"matched_transaction_id,omitempty"`
	MatchedRecords       int                 `json:"matched_records"`
}

// TransactionStatus is the response for an external status lookup.
type TransactionStatus struct {
	TransactionID string     `json:"transaction_id"`
	Status        string     `json:"status"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
}

// ServiceCount is one entry of the completed-transaction service distribution.
type ServiceCount struct {
	ServiceType string `json:"service_type"`
	Count       int    `json:"count"`
}

// StatisticsSnapshot is the read-only summary derived from the full ledger.
type StatisticsSnapshot struct {
	TotalCount           int             `json:"total_transactions"`
	TodayCount           int             `json:"today_transactions"`
	PendingCount         int             `json:"pending_transactions"`
	CompletedCount       int             `json:"completed_transactions"`
	TotalCompletedAmount decimal.Decimal `json:"total_amount"`
	ServiceDistribution  []ServiceCount  `json:"service_distribution"`
	RecentTransactions   []Transaction   `json:"recent_transactions"`
	GeneratedAt          time.Time       `json:"generated_at"`
}

// TruncateField bounds an opaque descriptive field to MaxFieldLength bytes,
// cutting on a rune boundary so stored text stays valid UTF-8.
func TruncateField(s string) string {
	if len(s) <= MaxFieldLength {
		return s
	}
	cut := MaxFieldLength
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}

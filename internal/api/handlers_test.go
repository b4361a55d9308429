package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smswatch/ledger-service/internal/app"
	"github.com/smswatch/ledger-service/internal/domain"
	"github.com/smswatch/ledger-service/internal/store"
)

// stubRepo embeds the Repository interface so tests only implement the
// methods a given endpoint exercises.
type stubRepo struct {
	store.Repository

	existing  *domain.Transaction
	completed *domain.Transaction
	storeErr  error
}

func (s *stubRepo) FindByTransactionID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	if s.existing != nil && s.existing.TransactionID == transactionID {
		return s.existing, nil
	}
	return nil, store.ErrTransactionNotFound
}

func (s *stubRepo) FindByServiceAndTransactionID(ctx context.Context, serviceType, transactionID string) (*domain.Transaction, error) {
	if s.existing != nil && s.existing.TransactionID == transactionID && strings.EqualFold(s.existing.ServiceType, serviceType) {
		return s.existing, nil
	}
	return nil, store.ErrTransactionNotFound
}

func (s *stubRepo) InsertIfAbsent(ctx context.Context, tx *domain.Transaction) (bool, *domain.Transaction, error) {
	if s.storeErr != nil {
		return false, nil, s.storeErr
	}
	if s.existing != nil && tx.TransactionID == s.existing.TransactionID {
		return false, s.existing, nil
	}
	return true, nil, nil
}

func (s *stubRepo) CompleteOnePending(ctx context.Context, match store.PendingMatch, verifiedBy string, now time.Time) (*domain.Transaction, error) {
	if s.storeErr != nil {
		return nil, s.storeErr
	}
	if s.completed != nil {
		return s.completed, nil
	}
	return nil, store.ErrNoPendingMatch
}

func serveJSON(t *testing.T, handler http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func TestIngestHandler_NewTransactionReturns201(t *testing.T) {
	h := NewLedgerHandlers(app.NewService(&stubRepo{}))

	rr := serveJSON(t, h.IngestHandler, "POST", "/transactions",
		`{"transaction_id":"TX1","service_type":"bKash","amount":"500"}`)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Status string `json:"status"`
		IsNew  bool   `json:"is_new"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != domain.StatusPending || !resp.IsNew {
		t.Fatalf("expected new PENDING record, got %+v", resp)
	}
}

func TestIngestHandler_DuplicateReturns200Exists(t *testing.T) {
	repo := &stubRepo{existing: &domain.Transaction{
		ID:            uuid.New(),
		TransactionID: "TX1",
		ServiceType:   "bKash",
		Status:        domain.StatusPending,
	}}
	h := NewLedgerHandlers(app.NewService(repo))

	rr := serveJSON(t, h.IngestHandler, "POST", "/transactions",
		`{"transaction_id":"TX1","service_type":"bKash","amount":"500"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for a duplicate, got %d", rr.Code)
	}
	var resp struct {
		Status string `json:"status"`
		IsNew  bool   `json:"is_new"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "EXISTS" || resp.IsNew {
		t.Fatalf("expected EXISTS response, got %+v", resp)
	}
}

func TestIngestHandler_BadJSONReturns400(t *testing.T) {
	h := NewLedgerHandlers(app.NewService(&stubRepo{}))

	rr := serveJSON(t, h.IngestHandler, "POST", "/transactions", `{not json`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestVerifyHandler_CompletedOutcome(t *testing.T) {
	repo := &stubRepo{completed: &domain.Transaction{
		ID:            uuid.New(),
		TransactionID: "TX1",
		ServiceType:   "bKash",
		Status:        domain.StatusCompleted,
	}}
	h := NewLedgerHandlers(app.NewService(repo))

	rr := serveJSON(t, h.VerifyHandler, "POST", "/transactions/verify",
		`{"service":"bKash","amount":"500","txid":"TX1"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Success bool   `json:"success"`
		Outcome string `json:"outcome"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Outcome != string(domain.OutcomeCompleted) {
		t.Fatalf("expected successful COMPLETED outcome, got %+v", resp)
	}
}

func TestVerifyHandler_NoMatchIsNotAnError(t *testing.T) {
	h := NewLedgerHandlers(app.NewService(&stubRepo{}))

	rr := serveJSON(t, h.VerifyHandler, "POST", "/transactions/verify",
		`{"service":"bKash","amount":"500","txid":"TX-unknown"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("NO_MATCH is a normal outcome, expected 200, got %d", rr.Code)
	}
	var resp struct {
		Success bool   `json:"success"`
		Outcome string `json:"outcome"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success || resp.Outcome != string(domain.OutcomeNoMatch) {
		t.Fatalf("expected unsuccessful NO_MATCH, got %+v", resp)
	}
}

func TestVerifyHandler_WhitespaceTxidUsesAmountOnlyPath(t *testing.T) {
	repo := &stubRepo{completed: &domain.Transaction{
		ID:            uuid.New(),
		TransactionID: "TX9",
		ServiceType:   "bKash",
		Status:        domain.StatusCompleted,
	}}
	h := NewLedgerHandlers(app.NewService(repo))

	rr := serveJSON(t, h.VerifyHandler, "POST", "/transactions/verify",
		`{"service":"bKash","amount":"500","txid":"   "}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("a blank txid must fall back to amount-only matching, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Success bool   `json:"success"`
		Outcome string `json:"outcome"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Outcome != string(domain.OutcomeCompleted) {
		t.Fatalf("expected COMPLETED via the amount-only path, got %+v", resp)
	}
}

func TestIngestHandler_StoreFailureReturns503(t *testing.T) {
	repo := &stubRepo{storeErr: errors.New("connection refused")}
	h := NewLedgerHandlers(app.NewService(repo))

	rr := serveJSON(t, h.IngestHandler, "POST", "/transactions",
		`{"transaction_id":"TX1","service_type":"bKash","amount":"500"}`)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the store is down, got %d", rr.Code)
	}
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success || resp.Error != "Ledger store unavailable" {
		t.Fatalf("expected the store-unavailable error body, got %+v", resp)
	}
}

func TestVerifyHandler_StoreFailureReturns503(t *testing.T) {
	repo := &stubRepo{storeErr: errors.New("connection refused")}
	h := NewLedgerHandlers(app.NewService(repo))

	rr := serveJSON(t, h.VerifyHandler, "POST", "/transactions/verify",
		`{"service":"bKash","amount":"500","txid":"TX1"}`)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the store is down, got %d", rr.Code)
	}
}

func TestStatusHandler_UnknownTransactionReturns404(t *testing.T) {
	h := NewLedgerHandlers(app.NewService(&stubRepo{}))
	router := LedgerRoutes(h)

	req := httptest.NewRequest("GET", "/transactions/TX-missing/status", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

/**
 * @description
 * This file contains the HTTP handlers for the ledger-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: For URL parameter extraction.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/smswatch/ledger-service/internal/app"
	"github.com/smswatch/ledger-service/internal/domain"
	"github.com/smswatch/ledger-service/internal/store"
)

// LedgerHandlers holds the application service that handlers will use.
type LedgerHandlers struct {
	service *app.Service
}

// NewLedgerHandlers creates a new instance of LedgerHandlers.
func NewLedgerHandlers(service *app.Service) *LedgerHandlers {
	return &LedgerHandlers{service: service}
}

type ingestResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	IsNew         bool   `json:"is_new"`
	Message       string `json:"message"`
}

type verifyRequest struct {
	Service       string `json:"service"`
	Amount        string `json:"amount"`
	TransactionID string `json:"txid,omitempty"`
}

type verifyResponse struct {
	Success              bool   `json:"success"`
	Outcome              string `json:"outcome"`
	MatchedRecords       int    `json:"matched_records,omitempty"`
	MatchedTransactionID string `json:"transaction_id,omitempty"`
	Message              string `json:"message"`
}

// IngestHandler accepts a parsed payment notification from the mobile client
// and records it as PENDING. Re-delivered notifications return the existing
// record with 200 instead of 201.
func (h *LedgerHandlers) IngestHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=ingest outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid JSON data")
		return
	}

	result, err := h.service.Ingest(r.Context(), req, ClientIP(r))
	if err != nil {
		if errors.Is(err, app.ErrInvalidPayload) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=ingest outcome=failed err=%v", err)
		h.writeError(w, http.StatusServiceUnavailable, "Ledger store unavailable")
		return
	}

	status := http.StatusCreated
	message := "Transaction saved as PENDING"
	responseStatus := result.Status
	if !result.IsNew {
		status = http.StatusOK
		message = "Transaction already exists"
		responseStatus = "EXISTS"
	}
	h.writeJSON(w, status, ingestResponse{
		Status:        responseStatus,
		TransactionID: result.TransactionID,
		IsNew:         result.IsNew,
		Message:       message,
	})
}

// VerifyHandler matches a verification request against the PENDING set. The
// txid field is optional; without it the newest matching PENDING record is
// consumed.
func (h *LedgerHandlers) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=verify outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid JSON data")
		return
	}

	verifiedBy := ClientIP(r)
	var (
		result *domain.VerificationResult
		err    error
	)
	// A whitespace-only txid is treated as absent, matching the trimming the
	// service layer applies.
	if txid := strings.TrimSpace(req.TransactionID); txid != "" {
		result, err = h.service.Verify(r.Context(), req.Service, req.Amount, txid, verifiedBy)
	} else {
		result, err = h.service.VerifyWithoutID(r.Context(), req.Service, req.Amount, verifiedBy)
	}
	if err != nil {
		if errors.Is(err, app.ErrInvalidPayload) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=verify outcome=failed err=%v", err)
		h.writeError(w, http.StatusServiceUnavailable, "Ledger store unavailable")
		return
	}

	h.writeJSON(w, http.StatusOK, buildVerifyResponse(result))
}

func buildVerifyResponse(result *domain.VerificationResult) verifyResponse {
	resp := verifyResponse{
		Outcome:              string(result.Outcome),
		MatchedRecords:       result.MatchedRecords,
		MatchedTransactionID: result.MatchedTransactionID,
	}
	switch result.Outcome {
	case domain.OutcomeCompleted:
		resp.Success = true
		resp.Message = "Transaction verified and marked as COMPLETED"
	case domain.OutcomeAlreadyCompleted:
		resp.Message = "This transaction has already been verified and completed"
	case domain.OutcomeNotPending:
		resp.Message = "Transaction found but not in PENDING state"
	default:
		resp.Message = "No matching PENDING transaction found"
	}
	return resp
}

// StatusHandler reports the lifecycle state of a transaction by its external id.
func (h *LedgerHandlers) StatusHandler(w http.ResponseWriter, r *http.Request) {
	txid := chi.URLParam(r, "txid")

	status, err := h.service.CheckStatus(r.Context(), txid)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			h.writeError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		if errors.Is(err, app.ErrInvalidPayload) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=status outcome=failed txid=%s err=%v", txid, err)
		h.writeError(w, http.StatusServiceUnavailable, "Ledger store unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// BackupHandler appends a raw SMS message to the audit log.
func (h *LedgerHandlers) BackupHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SMSData string `json:"sms_data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON data")
		return
	}

	if err := h.service.SaveBackup(r.Context(), req.SMSData, ClientIP(r)); err != nil {
		if errors.Is(err, app.ErrInvalidPayload) {
			h.writeError(w, http.StatusBadRequest, "Missing SMS data")
			return
		}
		log.Printf("level=error component=api endpoint=backup outcome=failed err=%v", err)
		h.writeError(w, http.StatusServiceUnavailable, "Ledger store unavailable")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "Backup SMS saved"})
}

// StatisticsHandler serves the read-only ledger summary.
func (h *LedgerHandlers) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Statistics(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=statistics outcome=failed err=%v", err)
		h.writeError(w, http.StatusServiceUnavailable, "Ledger store unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

// ClearHandler wipes the ledger. Administrative; never triggered implicitly.
func (h *LedgerHandlers) ClearHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearLedger(r.Context()); err != nil {
		log.Printf("level=error component=api endpoint=clear outcome=failed err=%v", err)
		h.writeError(w, http.StatusServiceUnavailable, "Ledger store unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Database cleared successfully"})
}

func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]any{"success": false, "error": message})
}

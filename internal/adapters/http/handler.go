package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
	"payment-lifecycle-engine/internal/observability"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Services are the incoming ports exposed over HTTP.
type Services struct {
	Transactions ports.TransactionService
	Refunds      ports.RefundService
	Payouts      ports.PayoutService
	Customers    ports.CustomerService
	BankAccounts ports.BankAccountService
}

// Handler serves the /api/v1 payments API.
type Handler struct {
	svc    Services
	logger *slog.Logger
}

func NewHandler(svc Services, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts every endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/payments/process", h.HandleProcessPayment)
	r.Route("/transactions", func(r chi.Router) {
		r.Post("/", h.HandleCreateTransaction)
		r.Get("/{id}", h.HandleGetTransaction)
		r.Post("/{id}/authorize", h.HandleAuthorize)
		r.Post("/{id}/cancel", h.HandleCancelTransaction)
		r.Get("/{id}/refunds", h.HandleListRefunds)
		r.Get("/{id}/refund-eligibility", h.HandleRefundEligibility)
	})
	r.Route("/refunds", func(r chi.Router) {
		r.Post("/", h.HandleCreateRefund)
		r.Get("/{id}", h.HandleGetRefund)
		r.Post("/{id}/approve", h.HandleApproveRefund)
		r.Post("/{id}/cancel", h.HandleCancelRefund)
	})
	r.Route("/payouts", func(r chi.Router) {
		r.Post("/", h.HandleCreatePayout)
		r.Get("/retryable", h.HandleRetryablePayouts)
		r.Get("/{id}", h.HandleGetPayout)
		r.Post("/{id}/process", h.HandleProcessPayout)
	})
	r.Route("/customers", func(r chi.Router) {
		r.Post("/", h.HandleRegisterCustomer)
		r.Get("/{id}", h.HandleGetCustomer)
		r.Get("/{id}/payment-methods", h.HandleListPaymentMethods)
		r.Post("/{id}/payment-methods/{pmID}/default", h.HandleSetDefaultPaymentMethod)
	})
	r.Route("/bank-accounts", func(r chi.Router) {
		r.Post("/", h.HandleRegisterBankAccount)
		r.Get("/{id}", h.HandleGetBankAccount)
		r.Post("/{id}/verify", h.HandleVerifyBankAccount)
		r.Post("/{id}/default", h.HandleSetDefaultBankAccount)
	})
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest, observability.LoggerFromContext(r.Context(), slog.Default()))
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSONError(w, "invalid "+name, http.StatusBadRequest, observability.LoggerFromContext(r.Context(), slog.Default()))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Error("failed to write json response", "error", err)
	}
}

func (h *Handler) ok(w http.ResponseWriter, r *http.Request, status int, data any) {
	h.writeJSON(w, r, status, envelope{Success: true, Data: data})
}

// StatusFor maps the error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCustomerInactive):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrCard):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPaymentDeclined):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrNotEligible), errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrLockNotAcquired):
		return http.StatusLocked
	case errors.Is(err, domain.ErrProcessing):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrStorageUnavailable), errors.Is(err, domain.ErrBrokerUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorCode extracts the machine-readable code carried by a typed error.
func errorCode(err error) (code, field string) {
	var (
		verr *domain.ValidationError
		cerr *domain.CardError
		perr *domain.PaymentError
		gerr *domain.ProcessingError
	)
	switch {
	case errors.As(err, &verr):
		return "validation_error", verr.Field
	case errors.As(err, &cerr):
		return string(cerr.Code), ""
	case errors.As(err, &perr):
		return string(perr.Code), ""
	case errors.As(err, &gerr):
		return string(gerr.Code), ""
	case errors.Is(err, domain.ErrNotEligible):
		return "not_eligible", ""
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state", ""
	case errors.Is(err, domain.ErrNotFound):
		return "not_found", ""
	}
	return "", ""
}

// fail writes err. data, when set, is the record persisted despite the failure
// (a declined transaction or a failed payout).
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, data any) {
	logger := observability.LoggerFromContext(r.Context(), h.logger)
	status := StatusFor(err)
	message := err.Error()
	switch {
	case status == http.StatusServiceUnavailable:
		logger.Warn("temporary failure in external dependency", "error", err)
		message = "service temporarily unavailable"
	case status >= http.StatusInternalServerError && status != http.StatusBadGateway:
		logger.Error("unexpected error", "error", err)
		message = "internal server error"
	default:
		logger.Debug("request rejected", "status", status, "error", err)
	}
	code, field := errorCode(err)
	h.writeJSON(w, r, status, envelope{Error: message, Code: code, Field: field, Data: data})
}

// writeJSONError sends a bare JSON error.
func writeJSONError(w http.ResponseWriter, message string, status int, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Error: message}); err != nil {
		logger.Error("failed to write json error response", "error", err)
	}
}

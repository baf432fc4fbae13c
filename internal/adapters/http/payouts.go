package http

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
)

type createPayoutRequest struct {
	ports.PayoutRequest
	// Defer leaves the payout pending for the scheduler instead of submitting it now.
	Defer bool `json:"defer,omitempty"`
}

// HandleCreatePayout creates a payout and submits it. A rejected transfer is
// reported as 202: the payout is persisted with its retry schedule.
func (h *Handler) HandleCreatePayout(w http.ResponseWriter, r *http.Request) {
	var req createPayoutRequest
	if !decode(w, r, &req) {
		return
	}
	payout, err := h.svc.Payouts.CreatePayout(r.Context(), req.PayoutRequest)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	if req.Defer {
		h.ok(w, r, http.StatusCreated, payout)
		return
	}
	h.respondPayout(w, r, payout.ID)
}

func (h *Handler) HandleProcessPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	h.respondPayout(w, r, id)
}

func (h *Handler) respondPayout(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	payout, err := h.svc.Payouts.ProcessPayout(r.Context(), id)
	switch {
	case err == nil:
		h.ok(w, r, http.StatusOK, payout)
	case payout != nil && errors.Is(err, domain.ErrProcessing):
		h.writeJSON(w, r, http.StatusAccepted, envelope{Success: false, Data: payout, Error: err.Error(), Code: payout.FailureCode})
	default:
		h.fail(w, r, err, nil)
	}
}

func (h *Handler) HandleGetPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	payout, err := h.svc.Payouts.GetPayout(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	h.ok(w, r, http.StatusOK, payout)
}

func (h *Handler) HandleRetryablePayouts(w http.ResponseWriter, r *http.Request) {
	payouts, err := h.svc.Payouts.RetryablePayouts(r.Context())
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	if payouts == nil {
		payouts = []domain.Payout{}
	}
	h.ok(w, r, http.StatusOK, payouts)
}

func (h *Handler) HandleRegisterBankAccount(w http.ResponseWriter, r *http.Request) {
	var req ports.BankAccountRequest
	if !decode(w, r, &req) {
		return
	}
	acct, err := h.svc.BankAccounts.RegisterBankAccount(r.Context(), req)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	h.ok(w, r, http.StatusCreated, acct)
}

func (h *Handler) HandleGetBankAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	acct, err := h.svc.BankAccounts.GetBankAccount(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	h.ok(w, r, http.StatusOK, acct)
}

type verifyRequest struct {
	Verified bool `json:"verified"`
}

func (h *Handler) HandleVerifyBankAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req verifyRequest
	if !decode(w, r, &req) {
		return
	}
	acct, err := h.svc.BankAccounts.VerifyBankAccount(r.Context(), id, req.Verified)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	h.ok(w, r, http.StatusOK, acct)
}

func (h *Handler) HandleSetDefaultBankAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	acct, err := h.svc.BankAccounts.SetDefaultBankAccount(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	h.ok(w, r, http.StatusOK, acct)
}

package http

import (
	"net/http"

	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
)

type gatewayView struct {
	TransactionID   string              `json:"transactionId,omitempty"`
	ResponseCode    domain.ResponseCode `json:"responseCode,omitempty"`
	ResponseMessage string              `json:"responseMessage,omitempty"`
}

type paymentView struct {
	Transaction *domain.Transaction `json:"transaction"`
	Gateway     gatewayView         `json:"gateway"`
}

func newPaymentView(tx *domain.Transaction) *paymentView {
	return &paymentView{
		Transaction: tx,
		Gateway: gatewayView{
			TransactionID:   tx.GatewayTransactionID,
			ResponseCode:    tx.ResponseCode,
			ResponseMessage: tx.ResponseMessage,
		},
	}
}

// respondPayment writes the outcome of an authorization. A declined or errored
// transaction is still returned in data next to the error.
func (h *Handler) respondPayment(w http.ResponseWriter, r *http.Request, tx *domain.Transaction, err error) {
	if err != nil {
		if tx != nil {
			h.fail(w, r, err, newPaymentView(tx))
			return
		}
		h.fail(w, r, err, nil)
		return
	}
	h.ok(w, r, http.StatusOK, newPaymentView(tx))
}

// HandleProcessPayment creates and authorizes a payment in one call.
func (h *Handler) HandleProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req ports.ChargeRequest
	if !decode(w, r, &req) {
		return
	}
	tx, err := h.svc.Transactions.Charge(r.Context(), req)
	h.respondPayment(w, r, tx, err)
}

func (h *Handler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req ports.ChargeRequest
	if !decode(w, r, &req) {
		return
	}
	tx, err := h.svc.Transactions.CreateTransaction(r.Context(), req)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	h.ok(w, r, http.StatusCreated, tx)
}

type authorizeRequest struct {
	CVV string `json:"cvv,omitempty"`
}

func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req authorizeRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	tx, err := h.svc.Transactions.Authorize(r.Context(), id, req.CVV)
	h.respondPayment(w, r, tx, err)
}

func (h *Handler) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	tx, err := h.svc.Transactions.GetTransaction(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	h.ok(w, r, http.StatusOK, tx)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) HandleCancelTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	tx, err := h.svc.Transactions.CancelTransaction(r.Context(), id, req.Reason)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	h.ok(w, r, http.StatusOK, tx)
}

func (h *Handler) HandleListRefunds(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	refunds, err := h.svc.Refunds.ListRefunds(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	if refunds == nil {
		refunds = []domain.Refund{}
	}
	h.ok(w, r, http.StatusOK, refunds)
}

func (h *Handler) HandleRefundEligibility(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	el, err := h.svc.Refunds.Eligibility(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	h.ok(w, r, http.StatusOK, el)
}

// HandleCreateRefund defaults initiatedBy to the authenticated subject.
func (h *Handler) HandleCreateRefund(w http.ResponseWriter, r *http.Request) {
	var req ports.RefundRequest
	if !decode(w, r, &req) {
		return
	}
	if req.InitiatedBy == "" {
		req.InitiatedBy = SubjectFromContext(r.Context())
	}
	refund, err := h.svc.Refunds.Process(r.Context(), req)
	if err != nil {
		if refund != nil {
			h.fail(w, r, err, refund)
			return
		}
		h.fail(w, r, err, nil)
		return
	}
	status := http.StatusOK
	if refund.Status == domain.RefundPending {
		status = http.StatusAccepted
	}
	h.ok(w, r, status, refund)
}

func (h *Handler) HandleGetRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	refund, err := h.svc.Refunds.GetRefund(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	h.ok(w, r, http.StatusOK, refund)
}

type approveRequest struct {
	Approver string `json:"approver"`
}

func (h *Handler) HandleApproveRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req approveRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	if req.Approver == "" {
		req.Approver = SubjectFromContext(r.Context())
	}
	refund, err := h.svc.Refunds.Approve(r.Context(), id, req.Approver)
	if err != nil {
		if refund != nil {
			h.fail(w, r, err, refund)
			return
		}
		h.fail(w, r, err, nil)
		return
	}
	h.ok(w, r, http.StatusOK, refund)
}

func (h *Handler) HandleCancelRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	refund, err := h.svc.Refunds.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	h.ok(w, r, http.StatusOK, refund)
}

package http

import (
	"net/http"

	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
)

func (h *Handler) HandleRegisterCustomer(w http.ResponseWriter, r *http.Request) {
	var req ports.CustomerInfo
	if !decode(w, r, &req) {
		return
	}
	c, err := h.svc.Customers.RegisterCustomer(r.Context(), req)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	h.ok(w, r, http.StatusCreated, c)
}

func (h *Handler) HandleGetCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.svc.Customers.GetCustomer(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	h.ok(w, r, http.StatusOK, c)
}

func (h *Handler) HandleListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	methods, err := h.svc.Customers.ListPaymentMethods(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	if methods == nil {
		methods = []domain.PaymentMethod{}
	}
	h.ok(w, r, http.StatusOK, methods)
}

func (h *Handler) HandleSetDefaultPaymentMethod(w http.ResponseWriter, r *http.Request) {
	customerID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	pmID, ok := pathID(w, r, "pmID")
	if !ok {
		return
	}
	pm, err := h.svc.Customers.SetDefaultPaymentMethod(r.Context(), customerID, pmID)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	h.ok(w, r, http.StatusOK, pm)
}

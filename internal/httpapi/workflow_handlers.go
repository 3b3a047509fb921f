package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aurora-erp/aurora-erp/internal/shared"
	"github.com/aurora-erp/aurora-erp/internal/workflow"
)

// WorkflowService is the transition slice of the workflow service.
type WorkflowService interface {
	CreatePurchaseOrder(ctx context.Context, actor shared.Actor, input workflow.CreatePOInput) (workflow.Result, error)
	SubmitPurchaseOrder(ctx context.Context, actor shared.Actor, poID uuid.UUID) (workflow.Result, error)
	ApprovePurchaseOrder(ctx context.Context, actor shared.Actor, poID uuid.UUID) (workflow.Result, error)
	RejectPurchaseOrder(ctx context.Context, actor shared.Actor, poID uuid.UUID) (workflow.Result, error)
	CancelPurchaseOrder(ctx context.Context, actor shared.Actor, poID uuid.UUID) (workflow.Result, error)
	CreateGoodsReceipt(ctx context.Context, actor shared.Actor, input workflow.CreateGRInput) (workflow.Result, error)
	AcceptGoodsReceipt(ctx context.Context, actor shared.Actor, grID uuid.UUID) (workflow.Result, error)
	RejectGoodsReceipt(ctx context.Context, actor shared.Actor, grID uuid.UUID) (workflow.Result, error)
	CreateInvoiceReceipt(ctx context.Context, actor shared.Actor, input workflow.CreateInvoiceInput) (workflow.Result, error)
	ApproveInvoiceVariance(ctx context.Context, actor shared.Actor, invoiceID uuid.UUID, note string) (workflow.Result, error)
	CreatePayment(ctx context.Context, actor shared.Actor, input workflow.CreatePaymentInput) (workflow.Result, error)
	ProcessPayment(ctx context.Context, actor shared.Actor, paymentID uuid.UUID) (workflow.Result, error)
	ClearPayment(ctx context.Context, actor shared.Actor, paymentID uuid.UUID) (workflow.Result, error)
	CancelPayment(ctx context.Context, actor shared.Actor, paymentID uuid.UUID) (workflow.Result, error)
}

func (h *Handler) mountWorkflowRoutes(r chi.Router) {
	r.Route("/workflow/purchase-orders", func(r chi.Router) {
		r.Post("/", h.createPO)
		r.Post("/{id}/submit", h.transition(h.flow.SubmitPurchaseOrder))
		r.Post("/{id}/approve", h.transition(h.flow.ApprovePurchaseOrder))
		r.Post("/{id}/reject", h.transition(h.flow.RejectPurchaseOrder))
		r.Post("/{id}/cancel", h.transition(h.flow.CancelPurchaseOrder))
	})
	r.Route("/workflow/goods-receipts", func(r chi.Router) {
		r.Post("/", h.createGR)
		r.Post("/{id}/accept", h.transition(h.flow.AcceptGoodsReceipt))
		r.Post("/{id}/reject", h.transition(h.flow.RejectGoodsReceipt))
	})
	r.Route("/workflow/invoices", func(r chi.Router) {
		r.Post("/", h.createInvoice)
		r.Post("/{id}/approve-variance", h.approveVariance)
	})
	r.Route("/workflow/payments", func(r chi.Router) {
		r.Post("/", h.createPayment)
		r.Post("/{id}/process", h.transition(h.flow.ProcessPayment))
		r.Post("/{id}/clear", h.transition(h.flow.ClearPayment))
		r.Post("/{id}/cancel", h.transition(h.flow.CancelPayment))
	})
}

// transition wraps the common id-only workflow endpoints.
func (h *Handler) transition(op func(context.Context, shared.Actor, uuid.UUID) (workflow.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.pathID(w, r)
		if !ok {
			return
		}
		res, err := op(r.Context(), actor(r), id)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeResult(w, res, http.StatusOK)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return shared.NewValidationError("body", "malformed JSON payload")
	}
	return nil
}

func parseAmount(field, raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, shared.NewValidationError(field, "must be a decimal number")
	}
	return value, nil
}

type poLineRequest struct {
	ProductCode string `json:"product_code" validate:"required"`
	Description string `json:"description"`
	Qty         string `json:"qty" validate:"required"`
	Price       string `json:"price" validate:"required"`
}

type createPORequest struct {
	Number     string          `json:"number"`
	SupplierID string          `json:"supplier_id" validate:"required,uuid"`
	Currency   string          `json:"currency" validate:"omitempty,len=3"`
	Note       string          `json:"note"`
	Lines      []poLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) createPO(w http.ResponseWriter, r *http.Request) {
	var req createPORequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.checkStruct(req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	input := workflow.CreatePOInput{
		Number:     req.Number,
		SupplierID: uuid.MustParse(req.SupplierID),
		Currency:   req.Currency,
		Note:       req.Note,
	}
	for _, line := range req.Lines {
		qty, err := parseAmount("qty", line.Qty)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		price, err := parseAmount("price", line.Price)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		input.Lines = append(input.Lines, workflow.POLineInput{
			ProductCode: line.ProductCode,
			Description: line.Description,
			Qty:         qty,
			Price:       price,
		})
	}

	res, err := h.flow.CreatePurchaseOrder(r.Context(), actor(r), input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeResult(w, res, http.StatusCreated)
}

type grLineRequest struct {
	POLineID string `json:"po_line_id" validate:"required,uuid"`
	Qty      string `json:"qty" validate:"required"`
}

type createGRRequest struct {
	POID       string          `json:"po_id" validate:"required,uuid"`
	Number     string          `json:"number"`
	ReceivedAt string          `json:"received_at" validate:"omitempty,datetime=2006-01-02"`
	Note       string          `json:"note"`
	Lines      []grLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) createGR(w http.ResponseWriter, r *http.Request) {
	var req createGRRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.checkStruct(req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	input := workflow.CreateGRInput{
		POID:   uuid.MustParse(req.POID),
		Number: req.Number,
		Note:   req.Note,
	}
	if req.ReceivedAt != "" {
		input.ReceivedAt, _ = time.Parse("2006-01-02", req.ReceivedAt)
	}
	for _, line := range req.Lines {
		qty, err := parseAmount("qty", line.Qty)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		input.Lines = append(input.Lines, workflow.GRLineInput{
			POLineID: uuid.MustParse(line.POLineID),
			Qty:      qty,
		})
	}

	res, err := h.flow.CreateGoodsReceipt(r.Context(), actor(r), input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeResult(w, res, http.StatusCreated)
}

type invoiceLineRequest struct {
	POLineID string `json:"po_line_id" validate:"required,uuid"`
	GRLineID string `json:"gr_line_id" validate:"omitempty,uuid"`
	Qty      string `json:"qty" validate:"required"`
	Price    string `json:"price" validate:"required"`
}

type createInvoiceRequest struct {
	POID   string               `json:"po_id" validate:"required,uuid"`
	Number string               `json:"number"`
	DueAt  string               `json:"due_at" validate:"omitempty,datetime=2006-01-02"`
	Lines  []invoiceLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.checkStruct(req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	input := workflow.CreateInvoiceInput{
		POID:   uuid.MustParse(req.POID),
		Number: req.Number,
	}
	if req.DueAt != "" {
		input.DueAt, _ = time.Parse("2006-01-02", req.DueAt)
	}
	for _, line := range req.Lines {
		qty, err := parseAmount("qty", line.Qty)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		price, err := parseAmount("price", line.Price)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		in := workflow.InvoiceLineInput{
			POLineID: uuid.MustParse(line.POLineID),
			Qty:      qty,
			Price:    price,
		}
		if line.GRLineID != "" {
			grLineID := uuid.MustParse(line.GRLineID)
			in.GRLineID = &grLineID
		}
		input.Lines = append(input.Lines, in)
	}

	res, err := h.flow.CreateInvoiceReceipt(r.Context(), actor(r), input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeResult(w, res, http.StatusCreated)
}

type approveVarianceRequest struct {
	Note string `json:"note" validate:"required"`
}

func (h *Handler) approveVariance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req approveVarianceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.checkStruct(req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := h.flow.ApproveInvoiceVariance(r.Context(), actor(r), id, req.Note)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeResult(w, res, http.StatusOK)
}

type createPaymentRequest struct {
	InvoiceID string `json:"invoice_id" validate:"required,uuid"`
	Number    string `json:"number"`
	Amount    string `json:"amount" validate:"required"`
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.checkStruct(req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.flow.CreatePayment(r.Context(), actor(r), workflow.CreatePaymentInput{
		InvoiceID: uuid.MustParse(req.InvoiceID),
		Number:    req.Number,
		Amount:    amount,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeResult(w, res, http.StatusCreated)
}

package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aurora-erp/aurora-erp/internal/meta"
	"github.com/aurora-erp/aurora-erp/internal/shared"
)

// ActionGate checks whether the actor may perform a named action, including
// any row-level condition against the supplied record.
type ActionGate interface {
	Allow(ctx context.Context, actor shared.Actor, entityName, action string, record map[string]any) (bool, error)
}

// SchemaSource resolves entity schemas for the generic record operations.
type SchemaSource interface {
	Entity(ctx context.Context, name string) (meta.EntitySchema, error)
}

// RecordLoader fetches the target row before a generic mutation so the gate
// can evaluate row-level conditions against it. FetchRecordAnyState serves
// the restore path, where the row is soft-deleted by definition.
type RecordLoader interface {
	FetchRecord(ctx context.Context, actor shared.Actor, entityName, id string, view meta.ViewKind) (map[string]any, error)
	FetchRecordAnyState(ctx context.Context, actor shared.Actor, entityName, id string, view meta.ViewKind) (map[string]any, error)
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, id uuid.UUID) (PurchaseOrder, []PurchaseOrderLine, error)
	GetGR(ctx context.Context, id uuid.UUID) (GoodsReceipt, []GoodsReceiptLine, error)
	GetInvoice(ctx context.Context, id uuid.UUID) (InvoiceReceipt, []InvoiceLine, error)
	GetPayment(ctx context.Context, id uuid.UUID) (Payment, error)
	// SumActivePayments totals non-cancelled payments against an invoice.
	SumActivePayments(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error)
	// SumClearedPayments totals cleared payments only.
	SumClearedPayments(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error)
}

// TxRepository exposes the mutations available inside a transaction. Status
// updates carry the expected current status; a false return means another
// transition won the race and the whole transaction is abandoned.
type TxRepository interface {
	InsertPO(ctx context.Context, po PurchaseOrder) error
	InsertPOLine(ctx context.Context, line PurchaseOrderLine) error
	UpdatePOStatus(ctx context.Context, id uuid.UUID, from, to POStatus, actor uuid.UUID, at time.Time) (bool, error)
	InsertGR(ctx context.Context, gr GoodsReceipt) error
	InsertGRLine(ctx context.Context, line GoodsReceiptLine) error
	UpdateGRStatus(ctx context.Context, id uuid.UUID, from, to GRStatus, actor uuid.UUID, at time.Time) (bool, error)
	AddLineReceived(ctx context.Context, poLineID uuid.UUID, qty decimal.Decimal) error
	AddLineInvoiced(ctx context.Context, poLineID uuid.UUID, qty decimal.Decimal) error
	InsertInvoice(ctx context.Context, inv InvoiceReceipt) error
	InsertInvoiceLine(ctx context.Context, line InvoiceLine) error
	ApproveVariance(ctx context.Context, invoiceID uuid.UUID, note string, actor uuid.UUID, at time.Time) (bool, error)
	InsertPayment(ctx context.Context, p Payment) error
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to PaymentStatus, actor uuid.UUID, at time.Time) (bool, error)
	InsertClearingEntry(ctx context.Context, entry ClearingEntry) error
	SetInvoiceProgress(ctx context.Context, invoiceID uuid.UUID, progress PaymentProgress, actor uuid.UUID, at time.Time) error
	UpdateFields(ctx context.Context, table, pk string, id uuid.UUID, fields map[string]any, at time.Time) (bool, error)
	SetDeleted(ctx context.Context, table, pk string, id uuid.UUID, deleted bool, at time.Time) (bool, error)
}

// Config tunes workflow policy.
type Config struct {
	// PriceTolerance is the relative price deviation the three-way match
	// accepts before flagging a variance.
	PriceTolerance decimal.Decimal
	// MutableFields is the per-entity allow-list for generic record updates.
	// Status columns and running totals never belong here.
	MutableFields map[string][]string
}

// DefaultMutableFields returns the baseline allow-list.
func DefaultMutableFields() map[string][]string {
	return map[string][]string{
		EntitySupplier:       {"name", "email"},
		EntityPurchaseOrder:  {"note", "currency"},
		EntityGoodsReceipt:   {"note"},
		EntityInvoiceReceipt: {"due_at"},
	}
}

// Service executes workflow transitions across the procurement entities.
type Service struct {
	repo    RepositoryPort
	gate    ActionGate
	schemas SchemaSource
	records RecordLoader
	logger  *slog.Logger
	cfg     Config
}

// NewService constructs the workflow service. records may be nil, in which
// case the gate evaluates generic record mutations without row context.
func NewService(repo RepositoryPort, gate ActionGate, schemas SchemaSource, records RecordLoader, logger *slog.Logger, cfg Config) *Service {
	if cfg.PriceTolerance.IsZero() {
		cfg.PriceTolerance = decimal.NewFromFloat(0.05)
	}
	if cfg.MutableFields == nil {
		cfg.MutableFields = DefaultMutableFields()
	}
	return &Service{repo: repo, gate: gate, schemas: schemas, records: records, logger: logger, cfg: cfg}
}

func (s *Service) allow(ctx context.Context, actor shared.Actor, entity, action string, record map[string]any) error {
	ok, err := s.gate.Allow(ctx, actor, entity, action, record)
	if err != nil {
		return err
	}
	if !ok {
		return &shared.AuthorizationError{Entity: entity, Action: action}
	}
	return nil
}

func stampRecord(stamp Stamp) map[string]any {
	return map[string]any{"created_by": stamp.CreatedBy.String()}
}

// --- Purchase orders ---

// POLineInput describes one requested line.
type POLineInput struct {
	ProductCode string
	Description string
	Qty         decimal.Decimal
	Price       decimal.Decimal
}

// CreatePOInput describes the creation payload.
type CreatePOInput struct {
	Number     string
	SupplierID uuid.UUID
	Currency   string
	Note       string
	Lines      []POLineInput
}

// CreatePurchaseOrder persists a draft purchase order with its lines.
func (s *Service) CreatePurchaseOrder(ctx context.Context, actor shared.Actor, input CreatePOInput) (Result, error) {
	if err := s.allow(ctx, actor, EntityPurchaseOrder, shared.ActionCreate, nil); err != nil {
		return Result{}, err
	}
	if len(input.Lines) == 0 {
		return Result{}, shared.NewValidationError("lines", "at least one line required")
	}
	if input.SupplierID == uuid.Nil {
		return Result{}, shared.NewValidationError("supplier_id", "required")
	}
	if input.Number == "" {
		input.Number = generateNumber("PO")
	}

	now := time.Now()
	po := PurchaseOrder{
		ID:         uuid.New(),
		Number:     input.Number,
		SupplierID: input.SupplierID,
		Status:     POStatusDraft,
		Currency:   defaultString(input.Currency, "USD"),
		Note:       input.Note,
		Stamp:      Stamp{CreatedAt: now, CreatedBy: actor.UserID, UpdatedAt: now},
	}
	total := decimal.Zero
	lines := make([]PurchaseOrderLine, 0, len(input.Lines))
	for _, in := range input.Lines {
		if in.Qty.LessThanOrEqual(decimal.Zero) {
			return Result{}, shared.NewValidationError("lines", "quantity must be positive")
		}
		if in.Price.IsNegative() {
			return Result{}, shared.NewValidationError("lines", "price must not be negative")
		}
		lines = append(lines, PurchaseOrderLine{
			ID:          uuid.New(),
			POID:        po.ID,
			ProductCode: in.ProductCode,
			Description: in.Description,
			OrderedQty:  in.Qty,
			Price:       in.Price,
		})
		total = total.Add(in.Qty.Mul(in.Price))
	}
	po.TotalAmount = total

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertPO(ctx, po); err != nil {
			return err
		}
		for _, line := range lines {
			if err := tx.InsertPOLine(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.logAction("po.create", po.ID, actor)
	return success(po.ID, string(POStatusDraft)), nil
}

// SubmitPurchaseOrder moves a draft order into approval.
func (s *Service) SubmitPurchaseOrder(ctx context.Context, actor shared.Actor, poID uuid.UUID) (Result, error) {
	return s.transitionPO(ctx, actor, poID, shared.ActionSubmit)
}

// ApprovePurchaseOrder approves a submitted order.
func (s *Service) ApprovePurchaseOrder(ctx context.Context, actor shared.Actor, poID uuid.UUID) (Result, error) {
	return s.transitionPO(ctx, actor, poID, shared.ActionApprove)
}

// RejectPurchaseOrder sends a submitted order back to draft.
func (s *Service) RejectPurchaseOrder(ctx context.Context, actor shared.Actor, poID uuid.UUID) (Result, error) {
	return s.transitionPO(ctx, actor, poID, shared.ActionReject)
}

// CancelPurchaseOrder cancels a draft or submitted order.
func (s *Service) CancelPurchaseOrder(ctx context.Context, actor shared.Actor, poID uuid.UUID) (Result, error) {
	return s.transitionPO(ctx, actor, poID, shared.ActionCancel)
}

func (s *Service) transitionPO(ctx context.Context, actor shared.Actor, poID uuid.UUID, action string) (Result, error) {
	po, _, err := s.repo.GetPO(ctx, poID)
	if err != nil {
		return Result{}, err
	}
	if err := s.allow(ctx, actor, EntityPurchaseOrder, action, stampRecord(po.Stamp)); err != nil {
		return Result{}, err
	}
	next, ok := NextPOStatus(po.Status, action)
	if !ok {
		return failure(poID, invalidTransition(po.Status, action)), nil
	}

	var result Result
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		updated, err := tx.UpdatePOStatus(ctx, poID, po.Status, next, actor.UserID, time.Now())
		if err != nil {
			return err
		}
		if !updated {
			result = failure(poID, concurrentChange(po.Status))
			return nil
		}
		result = success(poID, string(next))
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if result.Success {
		s.logAction("po."+action, poID, actor)
	}
	return result, nil
}

// --- Goods receipts ---

// GRLineInput describes a received quantity against a PO line.
type GRLineInput struct {
	POLineID uuid.UUID
	Qty      decimal.Decimal
}

// CreateGRInput describes goods receipt creation.
type CreateGRInput struct {
	POID       uuid.UUID
	Number     string
	ReceivedAt time.Time
	Note       string
	Lines      []GRLineInput
}

// CreateGoodsReceipt inserts a draft receipt against a receivable order.
func (s *Service) CreateGoodsReceipt(ctx context.Context, actor shared.Actor, input CreateGRInput) (Result, error) {
	if err := s.allow(ctx, actor, EntityGoodsReceipt, shared.ActionCreate, nil); err != nil {
		return Result{}, err
	}
	if len(input.Lines) == 0 {
		return Result{}, shared.NewValidationError("lines", "at least one line required")
	}

	po, poLines, err := s.repo.GetPO(ctx, input.POID)
	if err != nil {
		return Result{}, err
	}
	if !receivablePOStatus(po.Status) {
		return failure(input.POID, fmt.Sprintf("purchase order %s is not receivable in status %s", po.Number, po.Status)), nil
	}

	byLine := indexPOLines(poLines)
	// Validate the aggregate per PO line: a receipt may spread one PO line
	// across several lines, and together they must still fit the open quantity.
	requested := make(map[uuid.UUID]decimal.Decimal, len(input.Lines))
	for _, in := range input.Lines {
		line, ok := byLine[in.POLineID]
		if !ok {
			return Result{}, shared.NewValidationError("lines", "unknown purchase order line")
		}
		if in.Qty.LessThanOrEqual(decimal.Zero) {
			return Result{}, shared.NewValidationError("lines", "quantity must be positive")
		}
		requested[in.POLineID] = requested[in.POLineID].Add(in.Qty)
		if requested[in.POLineID].GreaterThan(line.Remaining()) {
			return failure(input.POID, fmt.Sprintf("line %s: receipt quantity %s exceeds open quantity %s",
				line.ProductCode, requested[in.POLineID], line.Remaining())), nil
		}
	}

	now := time.Now()
	gr := GoodsReceipt{
		ID:         uuid.New(),
		Number:     defaultString(input.Number, generateNumber("GR")),
		POID:       input.POID,
		Status:     GRStatusDraft,
		ReceivedAt: defaultTime(input.ReceivedAt, now),
		Note:       input.Note,
		Stamp:      Stamp{CreatedAt: now, CreatedBy: actor.UserID, UpdatedAt: now},
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertGR(ctx, gr); err != nil {
			return err
		}
		for _, in := range input.Lines {
			line := GoodsReceiptLine{ID: uuid.New(), GRID: gr.ID, POLineID: in.POLineID, Qty: in.Qty}
			if err := tx.InsertGRLine(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.logAction("gr.create", gr.ID, actor)
	return success(gr.ID, string(GRStatusDraft)), nil
}

// AcceptGoodsReceipt posts a draft receipt: line running totals and the
// parent order's received status move in the same transaction.
func (s *Service) AcceptGoodsReceipt(ctx context.Context, actor shared.Actor, grID uuid.UUID) (Result, error) {
	gr, grLines, err := s.repo.GetGR(ctx, grID)
	if err != nil {
		return Result{}, err
	}
	if err := s.allow(ctx, actor, EntityGoodsReceipt, shared.ActionAccept, stampRecord(gr.Stamp)); err != nil {
		return Result{}, err
	}
	next, ok := NextGRStatus(gr.Status, shared.ActionAccept)
	if !ok {
		return failure(grID, invalidTransition(gr.Status, shared.ActionAccept)), nil
	}

	po, poLines, err := s.repo.GetPO(ctx, gr.POID)
	if err != nil {
		return Result{}, err
	}
	if !receivablePOStatus(po.Status) {
		return failure(grID, fmt.Sprintf("purchase order %s is not receivable in status %s", po.Number, po.Status)), nil
	}

	byLine := indexPOLines(poLines)
	received := make(map[uuid.UUID]decimal.Decimal, len(grLines))
	for _, line := range grLines {
		poLine, ok := byLine[line.POLineID]
		if !ok {
			return Result{}, shared.NewValidationError("lines", "unknown purchase order line")
		}
		// Check the running aggregate, not the single line: several receipt
		// lines may point at the same PO line.
		received[line.POLineID] = received[line.POLineID].Add(line.Qty)
		if received[line.POLineID].GreaterThan(poLine.Remaining()) {
			return failure(grID, fmt.Sprintf("line %s: receipt quantity %s exceeds open quantity %s",
				poLine.ProductCode, received[line.POLineID], poLine.Remaining())), nil
		}
	}

	poNext := receiptStatus(poLines, received)

	var result Result
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		now := time.Now()
		updated, err := tx.UpdateGRStatus(ctx, grID, gr.Status, next, actor.UserID, now)
		if err != nil {
			return err
		}
		if !updated {
			result = failure(grID, concurrentChange(gr.Status))
			return nil
		}
		for lineID, qty := range received {
			if err := tx.AddLineReceived(ctx, lineID, qty); err != nil {
				return err
			}
		}
		updated, err = tx.UpdatePOStatus(ctx, gr.POID, po.Status, poNext, actor.UserID, now)
		if err != nil {
			return err
		}
		if !updated {
			return &shared.BackendError{
				Op:        "workflow: accept receipt",
				Err:       fmt.Errorf("purchase order %s changed concurrently", gr.POID),
				Retryable: true,
			}
		}
		result = success(grID, string(next))
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if result.Success {
		s.logAction("gr.accept", grID, actor)
	}
	return result, nil
}

// RejectGoodsReceipt discards a draft receipt without touching totals.
func (s *Service) RejectGoodsReceipt(ctx context.Context, actor shared.Actor, grID uuid.UUID) (Result, error) {
	gr, _, err := s.repo.GetGR(ctx, grID)
	if err != nil {
		return Result{}, err
	}
	if err := s.allow(ctx, actor, EntityGoodsReceipt, shared.ActionReject, stampRecord(gr.Stamp)); err != nil {
		return Result{}, err
	}
	next, ok := NextGRStatus(gr.Status, shared.ActionReject)
	if !ok {
		return failure(grID, invalidTransition(gr.Status, shared.ActionReject)), nil
	}

	var result Result
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		updated, err := tx.UpdateGRStatus(ctx, grID, gr.Status, next, actor.UserID, time.Now())
		if err != nil {
			return err
		}
		if !updated {
			result = failure(grID, concurrentChange(gr.Status))
			return nil
		}
		result = success(grID, string(next))
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// receiptStatus computes the PO status after applying pending receipt
// quantities to the loaded lines.
func receiptStatus(poLines []PurchaseOrderLine, received map[uuid.UUID]decimal.Decimal) POStatus {
	full := true
	for _, line := range poLines {
		after := line.QtyReceived.Add(received[line.ID])
		if after.LessThan(line.OrderedQty) {
			full = false
			break
		}
	}
	if full {
		return POStatusFullyReceived
	}
	return POStatusPartiallyReceived
}

// --- Invoices ---

// InvoiceLineInput describes one invoiced line.
type InvoiceLineInput struct {
	POLineID uuid.UUID
	GRLineID *uuid.UUID
	Qty      decimal.Decimal
	Price    decimal.Decimal
}

// CreateInvoiceInput describes invoice creation.
type CreateInvoiceInput struct {
	POID   uuid.UUID
	Number string
	DueAt  time.Time
	Lines  []InvoiceLineInput
}

// CreateInvoiceReceipt inserts an invoice and runs the three-way match per
// line. The overall matching status is returned as the result status.
func (s *Service) CreateInvoiceReceipt(ctx context.Context, actor shared.Actor, input CreateInvoiceInput) (Result, error) {
	if err := s.allow(ctx, actor, EntityInvoiceReceipt, shared.ActionCreate, nil); err != nil {
		return Result{}, err
	}
	if len(input.Lines) == 0 {
		return Result{}, shared.NewValidationError("lines", "at least one line required")
	}

	po, poLines, err := s.repo.GetPO(ctx, input.POID)
	if err != nil {
		return Result{}, err
	}
	byLine := indexPOLines(poLines)

	anyReceived := false
	for _, line := range poLines {
		if line.QtyReceived.GreaterThan(decimal.Zero) {
			anyReceived = true
			break
		}
	}
	if !anyReceived {
		return failure(input.POID, fmt.Sprintf("purchase order %s has no accepted goods receipt", po.Number)), nil
	}

	now := time.Now()
	inv := InvoiceReceipt{
		ID:              uuid.New(),
		Number:          defaultString(input.Number, generateNumber("INV")),
		POID:            input.POID,
		SupplierID:      po.SupplierID,
		PaymentProgress: InvoiceUnpaid,
		DueAt:           defaultTime(input.DueAt, now.AddDate(0, 0, 30)),
		Stamp:           Stamp{CreatedAt: now, CreatedBy: actor.UserID, UpdatedAt: now},
	}

	total := decimal.Zero
	statuses := make([]MatchStatus, 0, len(input.Lines))
	lines := make([]InvoiceLine, 0, len(input.Lines))
	for _, in := range input.Lines {
		poLine, ok := byLine[in.POLineID]
		if !ok {
			return Result{}, shared.NewValidationError("lines", "unknown purchase order line")
		}
		if in.Qty.LessThanOrEqual(decimal.Zero) {
			return Result{}, shared.NewValidationError("lines", "quantity must be positive")
		}
		status, reason := MatchLine(MatchInput{
			OrderedQty:    poLine.OrderedQty,
			OrderedPrice:  poLine.Price,
			ReceivedQty:   poLine.QtyReceived,
			InvoicedQty:   in.Qty,
			InvoicedPrice: in.Price,
		}, s.cfg.PriceTolerance)
		statuses = append(statuses, status)
		lines = append(lines, InvoiceLine{
			ID:          uuid.New(),
			InvoiceID:   inv.ID,
			POLineID:    in.POLineID,
			GRLineID:    in.GRLineID,
			Qty:         in.Qty,
			Price:       in.Price,
			MatchStatus: status,
			MatchReason: reason,
		})
		total = total.Add(in.Qty.Mul(in.Price))
	}
	inv.Total = total
	inv.MatchingStatus = OverallMatch(statuses)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertInvoice(ctx, inv); err != nil {
			return err
		}
		for _, line := range lines {
			if err := tx.InsertInvoiceLine(ctx, line); err != nil {
				return err
			}
			if err := tx.AddLineInvoiced(ctx, line.POLineID, line.Qty); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.logAction("invoice.create", inv.ID, actor)
	return success(inv.ID, string(inv.MatchingStatus)), nil
}

// ApproveInvoiceVariance releases a variance invoice for payment. The note
// is mandatory: someone must own the deviation.
func (s *Service) ApproveInvoiceVariance(ctx context.Context, actor shared.Actor, invoiceID uuid.UUID, note string) (Result, error) {
	if note == "" {
		return Result{}, shared.NewValidationError("note", "required for variance approval")
	}
	inv, _, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return Result{}, err
	}
	if err := s.allow(ctx, actor, EntityInvoiceReceipt, shared.ActionApproveVariance, stampRecord(inv.Stamp)); err != nil {
		return Result{}, err
	}
	if inv.MatchingStatus != MatchVariance {
		return failure(invoiceID, fmt.Sprintf("invoice %s is %s, not variance", inv.Number, inv.MatchingStatus)), nil
	}
	if inv.VarianceApproved {
		return failure(invoiceID, "variance already approved"), nil
	}

	var result Result
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		updated, err := tx.ApproveVariance(ctx, invoiceID, note, actor.UserID, time.Now())
		if err != nil {
			return err
		}
		if !updated {
			result = failure(invoiceID, "variance approval changed concurrently")
			return nil
		}
		result = success(invoiceID, string(MatchVariance))
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if result.Success {
		s.logAction("invoice.approve_variance", invoiceID, actor)
	}
	return result, nil
}

// --- Payments ---

// CreatePaymentInput describes payment creation.
type CreatePaymentInput struct {
	InvoiceID uuid.UUID
	Number    string
	Amount    decimal.Decimal
}

// CreatePayment records a pending payment. The amount may not exceed the
// invoice's outstanding balance; overpayment is a business-rule failure.
func (s *Service) CreatePayment(ctx context.Context, actor shared.Actor, input CreatePaymentInput) (Result, error) {
	if err := s.allow(ctx, actor, EntityPayment, shared.ActionCreate, nil); err != nil {
		return Result{}, err
	}
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return Result{}, shared.NewValidationError("amount", "must be positive")
	}

	inv, _, err := s.repo.GetInvoice(ctx, input.InvoiceID)
	if err != nil {
		return Result{}, err
	}
	switch inv.MatchingStatus {
	case MatchMatched:
	case MatchVariance:
		if !inv.VarianceApproved {
			return failure(input.InvoiceID, fmt.Sprintf("invoice %s has an unapproved variance", inv.Number)), nil
		}
	default:
		return failure(input.InvoiceID, fmt.Sprintf("invoice %s matching is still %s", inv.Number, inv.MatchingStatus)), nil
	}

	committed, err := s.repo.SumActivePayments(ctx, input.InvoiceID)
	if err != nil {
		return Result{}, err
	}
	outstanding := inv.Total.Sub(committed)
	if input.Amount.GreaterThan(outstanding) {
		return failure(input.InvoiceID, fmt.Sprintf("payment %s exceeds outstanding %s", input.Amount, outstanding)), nil
	}

	now := time.Now()
	payment := Payment{
		ID:        uuid.New(),
		Number:    defaultString(input.Number, generateNumber("PAY")),
		InvoiceID: input.InvoiceID,
		Amount:    input.Amount,
		Status:    PaymentPending,
		Stamp:     Stamp{CreatedAt: now, CreatedBy: actor.UserID, UpdatedAt: now},
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertPayment(ctx, payment)
	})
	if err != nil {
		return Result{}, err
	}
	s.logAction("payment.create", payment.ID, actor)
	return success(payment.ID, string(PaymentPending)), nil
}

// ProcessPayment marks a pending payment as executed by the bank.
func (s *Service) ProcessPayment(ctx context.Context, actor shared.Actor, paymentID uuid.UUID) (Result, error) {
	return s.transitionPayment(ctx, actor, paymentID, shared.ActionProcess)
}

// CancelPayment cancels a pending payment.
func (s *Service) CancelPayment(ctx context.Context, actor shared.Actor, paymentID uuid.UUID) (Result, error) {
	return s.transitionPayment(ctx, actor, paymentID, shared.ActionCancel)
}

func (s *Service) transitionPayment(ctx context.Context, actor shared.Actor, paymentID uuid.UUID, action string) (Result, error) {
	payment, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return Result{}, err
	}
	if err := s.allow(ctx, actor, EntityPayment, action, stampRecord(payment.Stamp)); err != nil {
		return Result{}, err
	}
	next, ok := NextPaymentStatus(payment.Status, action)
	if !ok {
		return failure(paymentID, invalidTransition(payment.Status, action)), nil
	}

	var result Result
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		updated, err := tx.UpdatePaymentStatus(ctx, paymentID, payment.Status, next, actor.UserID, time.Now())
		if err != nil {
			return err
		}
		if !updated {
			result = failure(paymentID, concurrentChange(payment.Status))
			return nil
		}
		result = success(paymentID, string(next))
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if result.Success {
		s.logAction("payment."+action, paymentID, actor)
	}
	return result, nil
}

// ClearPayment settles a processed payment: the clearing entry and the
// invoice's payment progress commit atomically with the status change.
func (s *Service) ClearPayment(ctx context.Context, actor shared.Actor, paymentID uuid.UUID) (Result, error) {
	payment, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return Result{}, err
	}
	if err := s.allow(ctx, actor, EntityPayment, shared.ActionClear, stampRecord(payment.Stamp)); err != nil {
		return Result{}, err
	}
	next, ok := NextPaymentStatus(payment.Status, shared.ActionClear)
	if !ok {
		return failure(paymentID, invalidTransition(payment.Status, shared.ActionClear)), nil
	}

	inv, _, err := s.repo.GetInvoice(ctx, payment.InvoiceID)
	if err != nil {
		return Result{}, err
	}
	clearedBefore, err := s.repo.SumClearedPayments(ctx, payment.InvoiceID)
	if err != nil {
		return Result{}, err
	}

	progress := InvoicePartiallyPaid
	if clearedBefore.Add(payment.Amount).GreaterThanOrEqual(inv.Total) {
		progress = InvoicePaid
	}

	var result Result
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		now := time.Now()
		updated, err := tx.UpdatePaymentStatus(ctx, paymentID, payment.Status, next, actor.UserID, now)
		if err != nil {
			return err
		}
		if !updated {
			result = failure(paymentID, concurrentChange(payment.Status))
			return nil
		}
		entry := ClearingEntry{
			ID:        uuid.New(),
			PaymentID: paymentID,
			InvoiceID: payment.InvoiceID,
			Amount:    payment.Amount,
			ClearedAt: now,
			ClearedBy: actor.UserID,
		}
		if err := tx.InsertClearingEntry(ctx, entry); err != nil {
			return err
		}
		if err := tx.SetInvoiceProgress(ctx, payment.InvoiceID, progress, actor.UserID, now); err != nil {
			return err
		}
		result = success(paymentID, string(next))
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if result.Success {
		s.logAction("payment.clear", paymentID, actor)
	}
	return result, nil
}

func (s *Service) logAction(action string, id uuid.UUID, actor shared.Actor) {
	if s.logger == nil {
		return
	}
	s.logger.Info("workflow transition",
		slog.String("action", action),
		slog.String("entity_id", id.String()),
		slog.String("actor", actor.UserID.String()),
	)
}

func indexPOLines(lines []PurchaseOrderLine) map[uuid.UUID]PurchaseOrderLine {
	byID := make(map[uuid.UUID]PurchaseOrderLine, len(lines))
	for _, line := range lines {
		byID[line.ID] = line
	}
	return byID
}

func concurrentChange(observed any) string {
	return fmt.Sprintf("status changed concurrently, was %v", observed)
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func defaultTime(value, fallback time.Time) time.Time {
	if value.IsZero() {
		return fallback
	}
	return value
}

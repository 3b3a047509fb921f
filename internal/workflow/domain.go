package workflow

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Entity names as registered in the metadata tables.
const (
	EntitySupplier       = "supplier"
	EntityPurchaseOrder  = "purchase_order"
	EntityGoodsReceipt   = "goods_receipt"
	EntityInvoiceReceipt = "invoice_receipt"
	EntityPayment        = "payment"
)

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusDraft             POStatus = "draft"
	POStatusSubmitted         POStatus = "submitted"
	POStatusApproved          POStatus = "approved"
	POStatusPartiallyReceived POStatus = "partially_received"
	POStatusFullyReceived     POStatus = "fully_received"
	POStatusCancelled         POStatus = "cancelled"
)

// Goods receipt statuses.
type GRStatus string

const (
	GRStatusDraft    GRStatus = "draft"
	GRStatusAccepted GRStatus = "accepted"
	GRStatusRejected GRStatus = "rejected"
)

// Line and invoice matching statuses produced by the three-way match.
type MatchStatus string

const (
	MatchPending  MatchStatus = "pending"
	MatchMatched  MatchStatus = "matched"
	MatchVariance MatchStatus = "variance"
)

// Invoice payment progression.
type PaymentProgress string

const (
	InvoiceUnpaid        PaymentProgress = "unpaid"
	InvoicePartiallyPaid PaymentProgress = "partially_paid"
	InvoicePaid          PaymentProgress = "paid"
)

// Payment lifecycle statuses.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentProcessed PaymentStatus = "processed"
	PaymentCleared   PaymentStatus = "cleared"
	PaymentCancelled PaymentStatus = "cancelled"
)

// Audit stamps every business entity carries.
type Stamp struct {
	IsDeleted bool
	CreatedAt time.Time
	CreatedBy uuid.UUID
	UpdatedAt time.Time
}

// Supplier master record.
type Supplier struct {
	ID    uuid.UUID
	Code  string
	Name  string
	Email string
	Stamp
}

// PurchaseOrder domain model.
type PurchaseOrder struct {
	ID          uuid.UUID
	Number      string
	SupplierID  uuid.UUID
	Status      POStatus
	Currency    string
	TotalAmount decimal.Decimal
	Note        string
	Stamp
}

// PurchaseOrderLine carries running totals mutated only by workflow
// operations, never by generic record update.
type PurchaseOrderLine struct {
	ID          uuid.UUID
	POID        uuid.UUID
	ProductCode string
	Description string
	OrderedQty  decimal.Decimal
	Price       decimal.Decimal
	QtyReceived decimal.Decimal
	QtyInvoiced decimal.Decimal
}

// Remaining returns the open quantity still to be received.
func (l PurchaseOrderLine) Remaining() decimal.Decimal {
	return l.OrderedQty.Sub(l.QtyReceived)
}

// GoodsReceipt domain model.
type GoodsReceipt struct {
	ID         uuid.UUID
	Number     string
	POID       uuid.UUID
	Status     GRStatus
	ReceivedAt time.Time
	Note       string
	Stamp
}

// GoodsReceiptLine references the purchase order line it fulfils.
type GoodsReceiptLine struct {
	ID       uuid.UUID
	GRID     uuid.UUID
	POLineID uuid.UUID
	Qty      decimal.Decimal
}

// InvoiceReceipt domain model.
type InvoiceReceipt struct {
	ID               uuid.UUID
	Number           string
	POID             uuid.UUID
	SupplierID       uuid.UUID
	Total            decimal.Decimal
	MatchingStatus   MatchStatus
	VarianceApproved bool
	VarianceNote     string
	PaymentProgress  PaymentProgress
	DueAt            time.Time
	Stamp
}

// InvoiceLine references a PO line and optionally the goods receipt line it
// was matched against.
type InvoiceLine struct {
	ID          uuid.UUID
	InvoiceID   uuid.UUID
	POLineID    uuid.UUID
	GRLineID    *uuid.UUID
	Qty         decimal.Decimal
	Price       decimal.Decimal
	MatchStatus MatchStatus
	MatchReason string
}

// Payment settles part or all of one invoice.
type Payment struct {
	ID        uuid.UUID
	Number    string
	InvoiceID uuid.UUID
	Amount    decimal.Decimal
	Status    PaymentStatus
	Stamp
}

// ClearingEntry records the settlement of a cleared payment.
type ClearingEntry struct {
	ID        uuid.UUID
	PaymentID uuid.UUID
	InvoiceID uuid.UUID
	Amount    decimal.Decimal
	ClearedAt time.Time
	ClearedBy uuid.UUID
}

// Result is the outcome of a workflow transition. Business-rule rejections
// are expected, recoverable outcomes: callers branch on Success instead of
// catching errors.
type Result struct {
	Success   bool
	EntityID  uuid.UUID
	NewStatus string
	Reason    string
}

func failure(id uuid.UUID, reason string) Result {
	return Result{Success: false, EntityID: id, Reason: reason}
}

func success(id uuid.UUID, status string) Result {
	return Result{Success: true, EntityID: id, NewStatus: status}
}

package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aurora-erp/aurora-erp/internal/platform/db"
	"github.com/aurora-erp/aurora-erp/internal/shared"
)

// PgRepository implements RepositoryPort on a pgx pool.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository constructs the workflow repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// WithTx runs fn inside a RepeatableRead transaction.
func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

func (r *PgRepository) GetPO(ctx context.Context, id uuid.UUID) (PurchaseOrder, []PurchaseOrderLine, error) {
	var po PurchaseOrder
	err := r.pool.QueryRow(ctx, `
		SELECT id, order_number, supplier_id, status, currency, total_amount, note,
		       is_deleted, created_at, created_by, updated_at
		FROM purchase_orders WHERE id = $1`, id).Scan(
		&po.ID, &po.Number, &po.SupplierID, &po.Status, &po.Currency, &po.TotalAmount, &po.Note,
		&po.IsDeleted, &po.CreatedAt, &po.CreatedBy, &po.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return PurchaseOrder{}, nil, &shared.NotFoundError{Entity: EntityPurchaseOrder, ID: id.String()}
		}
		return PurchaseOrder{}, nil, db.WrapError("workflow: get po", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, po_id, product_code, description, ordered_qty, price, qty_received, qty_invoiced
		FROM purchase_order_lines WHERE po_id = $1 ORDER BY product_code`, id)
	if err != nil {
		return PurchaseOrder{}, nil, db.WrapError("workflow: get po lines", err)
	}
	defer rows.Close()

	var lines []PurchaseOrderLine
	for rows.Next() {
		var line PurchaseOrderLine
		if err := rows.Scan(&line.ID, &line.POID, &line.ProductCode, &line.Description,
			&line.OrderedQty, &line.Price, &line.QtyReceived, &line.QtyInvoiced); err != nil {
			return PurchaseOrder{}, nil, db.WrapError("workflow: scan po line", err)
		}
		lines = append(lines, line)
	}
	return po, lines, db.WrapError("workflow: get po lines", rows.Err())
}

func (r *PgRepository) GetGR(ctx context.Context, id uuid.UUID) (GoodsReceipt, []GoodsReceiptLine, error) {
	var gr GoodsReceipt
	err := r.pool.QueryRow(ctx, `
		SELECT id, receipt_number, po_id, status, received_at, note,
		       is_deleted, created_at, created_by, updated_at
		FROM goods_receipts WHERE id = $1`, id).Scan(
		&gr.ID, &gr.Number, &gr.POID, &gr.Status, &gr.ReceivedAt, &gr.Note,
		&gr.IsDeleted, &gr.CreatedAt, &gr.CreatedBy, &gr.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return GoodsReceipt{}, nil, &shared.NotFoundError{Entity: EntityGoodsReceipt, ID: id.String()}
		}
		return GoodsReceipt{}, nil, db.WrapError("workflow: get gr", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, gr_id, po_line_id, qty FROM goods_receipt_lines WHERE gr_id = $1`, id)
	if err != nil {
		return GoodsReceipt{}, nil, db.WrapError("workflow: get gr lines", err)
	}
	defer rows.Close()

	var lines []GoodsReceiptLine
	for rows.Next() {
		var line GoodsReceiptLine
		if err := rows.Scan(&line.ID, &line.GRID, &line.POLineID, &line.Qty); err != nil {
			return GoodsReceipt{}, nil, db.WrapError("workflow: scan gr line", err)
		}
		lines = append(lines, line)
	}
	return gr, lines, db.WrapError("workflow: get gr lines", rows.Err())
}

func (r *PgRepository) GetInvoice(ctx context.Context, id uuid.UUID) (InvoiceReceipt, []InvoiceLine, error) {
	var inv InvoiceReceipt
	err := r.pool.QueryRow(ctx, `
		SELECT id, invoice_number, po_id, supplier_id, total, matching_status,
		       variance_approved, COALESCE(variance_note, ''), payment_progress, due_at,
		       is_deleted, created_at, created_by, updated_at
		FROM invoice_receipts WHERE id = $1`, id).Scan(
		&inv.ID, &inv.Number, &inv.POID, &inv.SupplierID, &inv.Total, &inv.MatchingStatus,
		&inv.VarianceApproved, &inv.VarianceNote, &inv.PaymentProgress, &inv.DueAt,
		&inv.IsDeleted, &inv.CreatedAt, &inv.CreatedBy, &inv.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return InvoiceReceipt{}, nil, &shared.NotFoundError{Entity: EntityInvoiceReceipt, ID: id.String()}
		}
		return InvoiceReceipt{}, nil, db.WrapError("workflow: get invoice", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, invoice_id, po_line_id, gr_line_id, qty, price, match_status, COALESCE(match_reason, '')
		FROM invoice_lines WHERE invoice_id = $1`, id)
	if err != nil {
		return InvoiceReceipt{}, nil, db.WrapError("workflow: get invoice lines", err)
	}
	defer rows.Close()

	var lines []InvoiceLine
	for rows.Next() {
		var line InvoiceLine
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.POLineID, &line.GRLineID,
			&line.Qty, &line.Price, &line.MatchStatus, &line.MatchReason); err != nil {
			return InvoiceReceipt{}, nil, db.WrapError("workflow: scan invoice line", err)
		}
		lines = append(lines, line)
	}
	return inv, lines, db.WrapError("workflow: get invoice lines", rows.Err())
}

func (r *PgRepository) GetPayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	var p Payment
	err := r.pool.QueryRow(ctx, `
		SELECT id, payment_number, invoice_id, amount, status,
		       is_deleted, created_at, created_by, updated_at
		FROM payments WHERE id = $1`, id).Scan(
		&p.ID, &p.Number, &p.InvoiceID, &p.Amount, &p.Status,
		&p.IsDeleted, &p.CreatedAt, &p.CreatedBy, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Payment{}, &shared.NotFoundError{Entity: EntityPayment, ID: id.String()}
		}
		return Payment{}, db.WrapError("workflow: get payment", err)
	}
	return p, nil
}

func (r *PgRepository) SumActivePayments(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	return r.sumPayments(ctx, invoiceID, `status <> 'cancelled'`)
}

func (r *PgRepository) SumClearedPayments(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	return r.sumPayments(ctx, invoiceID, `status = 'cleared'`)
}

func (r *PgRepository) sumPayments(ctx context.Context, invoiceID uuid.UUID, cond string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id = $1 AND `+cond,
		invoiceID).Scan(&sum)
	if err != nil {
		return decimal.Zero, db.WrapError("workflow: sum payments", err)
	}
	return sum, nil
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) InsertPO(ctx context.Context, po PurchaseOrder) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO purchase_orders (id, order_number, supplier_id, status, currency, total_amount, note,
		                             is_deleted, created_at, created_by, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,false,$8,$9,$8)`,
		po.ID, po.Number, po.SupplierID, po.Status, po.Currency, po.TotalAmount, po.Note,
		po.CreatedAt, po.CreatedBy)
	return numberConflict("order_number", err, "workflow: insert po")
}

func (r *pgTxRepository) InsertPOLine(ctx context.Context, line PurchaseOrderLine) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO purchase_order_lines (id, po_id, product_code, description, ordered_qty, price, qty_received, qty_invoiced)
		VALUES ($1,$2,$3,$4,$5,$6,0,0)`,
		line.ID, line.POID, line.ProductCode, line.Description, line.OrderedQty, line.Price)
	return db.WrapError("workflow: insert po line", err)
}

func (r *pgTxRepository) UpdatePOStatus(ctx context.Context, id uuid.UUID, from, to POStatus, actor uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx,
		`UPDATE purchase_orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to, at, id, from)
	if err != nil {
		return false, db.WrapError("workflow: update po status", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgTxRepository) InsertGR(ctx context.Context, gr GoodsReceipt) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO goods_receipts (id, receipt_number, po_id, status, received_at, note,
		                            is_deleted, created_at, created_by, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,false,$7,$8,$7)`,
		gr.ID, gr.Number, gr.POID, gr.Status, gr.ReceivedAt, gr.Note, gr.CreatedAt, gr.CreatedBy)
	return numberConflict("receipt_number", err, "workflow: insert gr")
}

func (r *pgTxRepository) InsertGRLine(ctx context.Context, line GoodsReceiptLine) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO goods_receipt_lines (id, gr_id, po_line_id, qty) VALUES ($1,$2,$3,$4)`,
		line.ID, line.GRID, line.POLineID, line.Qty)
	return db.WrapError("workflow: insert gr line", err)
}

func (r *pgTxRepository) UpdateGRStatus(ctx context.Context, id uuid.UUID, from, to GRStatus, actor uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx,
		`UPDATE goods_receipts SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to, at, id, from)
	if err != nil {
		return false, db.WrapError("workflow: update gr status", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgTxRepository) AddLineReceived(ctx context.Context, poLineID uuid.UUID, qty decimal.Decimal) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE purchase_order_lines SET qty_received = qty_received + $1 WHERE id = $2`,
		qty, poLineID)
	return db.WrapError("workflow: add received qty", err)
}

func (r *pgTxRepository) AddLineInvoiced(ctx context.Context, poLineID uuid.UUID, qty decimal.Decimal) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE purchase_order_lines SET qty_invoiced = qty_invoiced + $1 WHERE id = $2`,
		qty, poLineID)
	return db.WrapError("workflow: add invoiced qty", err)
}

func (r *pgTxRepository) InsertInvoice(ctx context.Context, inv InvoiceReceipt) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO invoice_receipts (id, invoice_number, po_id, supplier_id, total, matching_status,
		                              variance_approved, payment_progress, due_at,
		                              is_deleted, created_at, created_by, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,false,$7,$8,false,$9,$10,$9)`,
		inv.ID, inv.Number, inv.POID, inv.SupplierID, inv.Total, inv.MatchingStatus,
		inv.PaymentProgress, inv.DueAt, inv.CreatedAt, inv.CreatedBy)
	return numberConflict("invoice_number", err, "workflow: insert invoice")
}

func (r *pgTxRepository) InsertInvoiceLine(ctx context.Context, line InvoiceLine) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO invoice_lines (id, invoice_id, po_line_id, gr_line_id, qty, price, match_status, match_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		line.ID, line.InvoiceID, line.POLineID, line.GRLineID, line.Qty, line.Price,
		line.MatchStatus, line.MatchReason)
	return db.WrapError("workflow: insert invoice line", err)
}

func (r *pgTxRepository) ApproveVariance(ctx context.Context, invoiceID uuid.UUID, note string, actor uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, `
		UPDATE invoice_receipts SET variance_approved = true, variance_note = $1, updated_at = $2
		WHERE id = $3 AND matching_status = 'variance' AND variance_approved = false`,
		note, at, invoiceID)
	if err != nil {
		return false, db.WrapError("workflow: approve variance", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgTxRepository) InsertPayment(ctx context.Context, p Payment) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO payments (id, payment_number, invoice_id, amount, status,
		                      is_deleted, created_at, created_by, updated_at)
		VALUES ($1,$2,$3,$4,$5,false,$6,$7,$6)`,
		p.ID, p.Number, p.InvoiceID, p.Amount, p.Status, p.CreatedAt, p.CreatedBy)
	return numberConflict("payment_number", err, "workflow: insert payment")
}

func (r *pgTxRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to PaymentStatus, actor uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx,
		`UPDATE payments SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to, at, id, from)
	if err != nil {
		return false, db.WrapError("workflow: update payment status", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgTxRepository) InsertClearingEntry(ctx context.Context, entry ClearingEntry) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO clearing_entries (id, payment_id, invoice_id, amount, cleared_at, cleared_by)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		entry.ID, entry.PaymentID, entry.InvoiceID, entry.Amount, entry.ClearedAt, entry.ClearedBy)
	return db.WrapError("workflow: insert clearing entry", err)
}

func (r *pgTxRepository) SetInvoiceProgress(ctx context.Context, invoiceID uuid.UUID, progress PaymentProgress, actor uuid.UUID, at time.Time) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE invoice_receipts SET payment_progress = $1, updated_at = $2 WHERE id = $3`,
		progress, at, invoiceID)
	return db.WrapError("workflow: set invoice progress", err)
}

func (r *pgTxRepository) UpdateFields(ctx context.Context, table, pk string, id uuid.UUID, fields map[string]any, at time.Time) (bool, error) {
	columns := make([]string, 0, len(fields))
	for column := range fields {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	sets := ""
	args := make([]any, 0, len(fields)+2)
	for i, column := range columns {
		sets += fmt.Sprintf("%s = $%d, ", column, i+1)
		args = append(args, fields[column])
	}
	args = append(args, at, id)
	query := fmt.Sprintf("UPDATE %s SET %supdated_at = $%d WHERE %s = $%d AND is_deleted = false",
		table, sets, len(columns)+1, pk, len(columns)+2)

	tag, err := r.tx.Exec(ctx, query, args...)
	if err != nil {
		return false, db.WrapError("workflow: update fields", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgTxRepository) SetDeleted(ctx context.Context, table, pk string, id uuid.UUID, deleted bool, at time.Time) (bool, error) {
	query := fmt.Sprintf("UPDATE %s SET is_deleted = $1, updated_at = $2 WHERE %s = $3 AND is_deleted = $4",
		table, pk)
	tag, err := r.tx.Exec(ctx, query, deleted, at, id, !deleted)
	if err != nil {
		return false, db.WrapError("workflow: set deleted", err)
	}
	return tag.RowsAffected() == 1, nil
}

// numberConflict turns a unique violation on a document number column into a
// validation error with a readable message.
func numberConflict(column string, err error, op string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.NewValidationError(column, "document number already exists")
	}
	return db.WrapError(op, err)
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"invoice-pipeline/internal/common"
	"invoice-pipeline/internal/entity"
	"invoice-pipeline/internal/state"
	"invoice-pipeline/internal/vision"
)

// PostgresRepository stores invoices in a single table, with the nested
// vendor/details/items sub-records as JSONB columns.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const invoiceColumns = `id, file_name, vendor, invoice_details, items,
	total_invoice_value, total_gst_value, status, review_needed, review_reason,
	created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, inv *entity.Invoice) error {
	vendor, details, items, err := marshalContent(inv.Vendor, inv.InvoiceDetails, inv.Items)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, inv.ID, inv.FileName, vendor, details, items,
		inv.TotalInvoiceValue, inv.TotalGSTValue, inv.Status,
		inv.Review.HumanReviewNeeded, inv.Review.ReasonForReview,
		inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert invoice: %v", common.ErrPersistence, err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", common.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: select invoice: %v", common.ErrPersistence, err)
	}
	return inv, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*entity.Invoice, error) {
	return r.list(ctx, `SELECT `+invoiceColumns+` FROM invoices ORDER BY created_at DESC`)
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, status entity.InvoiceStatus) ([]*entity.Invoice, error) {
	return r.list(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE status=$1 ORDER BY created_at DESC`, status)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*entity.Invoice, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query invoices: %v", common.ErrPersistence, err)
	}
	defer rows.Close()

	var out []*entity.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan invoice: %v", common.ErrPersistence, err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate invoices: %v", common.ErrPersistence, err)
	}
	return out, nil
}

// CommitExtraction is a single UPDATE guarded on status, so the transition
// check and the field write are one atomic request. Commits may re-apply over
// a prior page's result (last write wins); only a rejected invoice refuses
// them, which the WHERE clause enforces. Zero rows affected means the invoice
// is rejected or missing.
func (r *PostgresRepository) CommitExtraction(ctx context.Context, id uuid.UUID, fields vision.InvoiceFields) error {
	// pending stands in for any non-rejected status; the target depends
	// only on the event.
	next, err := state.Transition(entity.StatusPending, state.CommitEvent(fields.ReviewNeeded))
	if err != nil {
		return err
	}
	vendor, details, items, err := marshalContent(fields.Vendor, fields.InvoiceDetails, fields.Items)
	if err != nil {
		return err
	}
	var reason *string
	if fields.ReviewNeeded && fields.ReviewReason != "" {
		reason = &fields.ReviewReason
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE invoices
		SET vendor=$1, invoice_details=$2, items=$3,
			total_invoice_value=$4, total_gst_value=$5,
			status=$6, review_needed=$7, review_reason=$8, updated_at=$9
		WHERE id=$10 AND status<>$11
	`, vendor, details, items,
		fields.TotalInvoiceValue, fields.TotalGSTValue,
		next, fields.ReviewNeeded, reason, time.Now().UTC(),
		id, entity.StatusRejected)
	if err != nil {
		return fmt.Errorf("%w: commit extraction: %v", common.ErrPersistence, err)
	}
	if tag.RowsAffected() == 0 {
		return r.refuse(ctx, id, "commit")
	}
	return nil
}

func (r *PostgresRepository) ForceReview(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invoices
		SET review_needed=TRUE, review_reason=$1, updated_at=$2
		WHERE id=$3 AND status=$4
	`, reason, time.Now().UTC(), id, entity.StatusPending)
	if err != nil {
		return fmt.Errorf("%w: force review: %v", common.ErrPersistence, err)
	}
	if tag.RowsAffected() == 0 {
		return r.refuse(ctx, id, "force review")
	}
	return nil
}

func (r *PostgresRepository) Resolve(ctx context.Context, id uuid.UUID, status entity.InvoiceStatus) error {
	ev := state.EventApprove
	if status == entity.StatusRejected {
		ev = state.EventReject
	}
	next, err := state.Transition(entity.StatusPending, ev)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE invoices SET status=$1, updated_at=$2
		WHERE id=$3 AND status=$4
	`, next, time.Now().UTC(), id, entity.StatusPending)
	if err != nil {
		return fmt.Errorf("%w: resolve invoice: %v", common.ErrPersistence, err)
	}
	if tag.RowsAffected() == 0 {
		return r.refuse(ctx, id, string(ev))
	}
	return nil
}

// refuse distinguishes "row missing" from "row terminal" for a zero-row write.
func (r *PostgresRepository) refuse(ctx context.Context, id uuid.UUID, op string) error {
	inv, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s on %s invoice %s", common.ErrInvalidTransition, op, inv.Status, id)
}

func marshalContent(vendor entity.Vendor, details entity.InvoiceDetails, items []entity.LineItem) ([]byte, []byte, []byte, error) {
	v, err := json.Marshal(vendor)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: marshal vendor: %v", common.ErrPersistence, err)
	}
	d, err := json.Marshal(details)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: marshal details: %v", common.ErrPersistence, err)
	}
	if items == nil {
		items = []entity.LineItem{}
	}
	i, err := json.Marshal(items)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: marshal items: %v", common.ErrPersistence, err)
	}
	return v, d, i, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*entity.Invoice, error) {
	var (
		inv     entity.Invoice
		vendor  []byte
		details []byte
		items   []byte
	)
	if err := row.Scan(&inv.ID, &inv.FileName, &vendor, &details, &items,
		&inv.TotalInvoiceValue, &inv.TotalGSTValue, &inv.Status,
		&inv.Review.HumanReviewNeeded, &inv.Review.ReasonForReview,
		&inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(vendor, &inv.Vendor); err != nil {
		return nil, fmt.Errorf("unmarshal vendor: %w", err)
	}
	if err := json.Unmarshal(details, &inv.InvoiceDetails); err != nil {
		return nil, fmt.Errorf("unmarshal details: %w", err)
	}
	if err := json.Unmarshal(items, &inv.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	return &inv, nil
}

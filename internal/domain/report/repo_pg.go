package report

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type reportRepoPG struct{ pool *pgxpool.Pool }

func NewReportRepoPG(pool *pgxpool.Pool) ReportRepository { return &reportRepoPG{pool: pool} }

func (r *reportRepoPG) conn(context.Context) queryable { return r.pool }

const reportCols = `id, report_number, user_id, lab_test_id, booking_id, status, priority,
	scheduled_at, collected_at, tested_at, reviewed_at, delivered_at,
	sample_collected_by, collection_location, collection_notes,
	results, observations, recommendations,
	file_path, file_original_name, file_size, file_type,
	is_shared, shared_at, shared_with, is_verified, verified_by, verified_at,
	amount_charged, payment_status, payment_reference, notes, created_at, updated_at`

func scanReport(row pgx.Row) (*Report, error) {
	var rep Report
	err := row.Scan(&rep.ID, &rep.ReportNumber, &rep.UserID, &rep.LabTestID, &rep.BookingID,
		&rep.Status, &rep.Priority, &rep.ScheduledAt, &rep.CollectedAt, &rep.TestedAt,
		&rep.ReviewedAt, &rep.DeliveredAt, &rep.SampleCollectedBy, &rep.CollectionLocation,
		&rep.CollectionNotes, &rep.Results, &rep.Observations, &rep.Recommendations,
		&rep.FilePath, &rep.FileOriginalName, &rep.FileSize, &rep.FileType,
		&rep.IsShared, &rep.SharedAt, &rep.SharedWith, &rep.IsVerified, &rep.VerifiedBy,
		&rep.VerifiedAt, &rep.AmountCharged, &rep.PaymentStatus, &rep.PaymentReference,
		&rep.Notes, &rep.CreatedAt, &rep.UpdatedAt)
	return &rep, err
}

func (r *reportRepoPG) Create(ctx context.Context, rep *Report) error {
	rep.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO reports (id, report_number, user_id, lab_test_id, booking_id, status,
			priority, scheduled_at, amount_charged, payment_status, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		rep.ID, rep.ReportNumber, rep.UserID, rep.LabTestID, rep.BookingID, rep.Status,
		rep.Priority, rep.ScheduledAt, rep.AmountCharged, rep.PaymentStatus, rep.Notes).
		Scan(&rep.CreatedAt, &rep.UpdatedAt)
}

func (r *reportRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Report, error) {
	return scanReport(r.conn(ctx).QueryRow(ctx,
		`SELECT `+reportCols+` FROM reports WHERE id = $1`, id))
}

func (r *reportRepoPG) Update(ctx context.Context, rep *Report) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE reports SET status=$2, priority=$3, scheduled_at=$4, collected_at=$5,
			tested_at=$6, reviewed_at=$7, delivered_at=$8, sample_collected_by=$9,
			collection_location=$10, collection_notes=$11, results=$12, observations=$13,
			recommendations=$14, file_path=$15, file_original_name=$16, file_size=$17,
			file_type=$18, is_shared=$19, shared_at=$20, shared_with=$21, is_verified=$22,
			verified_by=$23, verified_at=$24, amount_charged=$25, payment_status=$26,
			payment_reference=$27, notes=$28, updated_at=NOW()
		WHERE id = $1`,
		rep.ID, rep.Status, rep.Priority, rep.ScheduledAt, rep.CollectedAt, rep.TestedAt,
		rep.ReviewedAt, rep.DeliveredAt, rep.SampleCollectedBy, rep.CollectionLocation,
		rep.CollectionNotes, rep.Results, rep.Observations, rep.Recommendations,
		rep.FilePath, rep.FileOriginalName, rep.FileSize, rep.FileType, rep.IsShared,
		rep.SharedAt, rep.SharedWith, rep.IsVerified, rep.VerifiedBy, rep.VerifiedAt,
		rep.AmountCharged, rep.PaymentStatus, rep.PaymentReference, rep.Notes)
	return err
}

func (r *reportRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *reportRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Report, int, error) {
	where := ""
	var args []interface{}
	add := func(cond string, val interface{}) {
		args = append(args, val)
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(cond, len(args))
	}
	if f.UserID != nil {
		add("user_id = $%d", *f.UserID)
	}
	if f.LabTestID != nil {
		add("lab_test_id = $%d", *f.LabTestID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.PaymentStatus != "" {
		add("payment_status = $%d", f.PaymentStatus)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM reports`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT `+reportCols+` FROM reports`+where+` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rep)
	}
	return items, total, rows.Err()
}

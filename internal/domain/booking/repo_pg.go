package booking

import (
	"context"
	"fmt"
	"time"

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

type bookingRepoPG struct{ pool *pgxpool.Pool }

func NewBookingRepoPG(pool *pgxpool.Pool) BookingRepository { return &bookingRepoPG{pool: pool} }

func (r *bookingRepoPG) conn(context.Context) queryable { return r.pool }

const bookingCols = `id, booking_reference, user_id, lab_test_id, patient_name, patient_age,
	patient_gender, phone_number, appointment_date, home_collection, address,
	special_instructions, status, admin_notes, cancellation_reason, cancelled_at,
	completed_at, created_at, updated_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.BookingReference, &b.UserID, &b.LabTestID, &b.PatientName,
		&b.PatientAge, &b.PatientGender, &b.PhoneNumber, &b.AppointmentDate, &b.HomeCollection,
		&b.Address, &b.SpecialInstructions, &b.Status, &b.AdminNotes, &b.CancellationReason,
		&b.CancelledAt, &b.CompletedAt, &b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *bookingRepoPG) Create(ctx context.Context, b *Booking) error {
	b.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bookings (id, booking_reference, user_id, lab_test_id, patient_name,
			patient_age, patient_gender, phone_number, appointment_date, home_collection,
			address, special_instructions, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at`,
		b.ID, b.BookingReference, b.UserID, b.LabTestID, b.PatientName, b.PatientAge,
		b.PatientGender, b.PhoneNumber, b.AppointmentDate, b.HomeCollection, b.Address,
		b.SpecialInstructions, b.Status).Scan(&b.CreatedAt, &b.UpdatedAt)
}

func (r *bookingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return scanBooking(r.conn(ctx).QueryRow(ctx,
		`SELECT `+bookingCols+` FROM bookings WHERE id = $1`, id))
}

func (r *bookingRepoPG) Update(ctx context.Context, b *Booking) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE bookings SET patient_name=$2, patient_age=$3, patient_gender=$4, phone_number=$5,
			appointment_date=$6, home_collection=$7, address=$8, special_instructions=$9,
			status=$10, admin_notes=$11, cancellation_reason=$12, cancelled_at=$13,
			completed_at=$14, updated_at=NOW()
		WHERE id = $1`,
		b.ID, b.PatientName, b.PatientAge, b.PatientGender, b.PhoneNumber, b.AppointmentDate,
		b.HomeCollection, b.Address, b.SpecialInstructions, b.Status, b.AdminNotes,
		b.CancellationReason, b.CancelledAt, b.CompletedAt)
	return err
}

func (f Filter) where() (string, []interface{}) {
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
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.From != nil {
		add("appointment_date >= $%d", *f.From)
	}
	if f.To != nil {
		add("appointment_date <= $%d", *f.To)
	}
	return where, args
}

func (r *bookingRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Booking, int, error) {
	where, args := f.where()

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM bookings`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT `+bookingCols+` FROM bookings`+where+` ORDER BY appointment_date DESC LIMIT $%d OFFSET $%d`,
		len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collect(rows, total)
}

func (r *bookingRepoPG) Upcoming(ctx context.Context, userID *uuid.UUID, after time.Time, limit, offset int) ([]*Booking, int, error) {
	where := ` WHERE status IN ($1,$2) AND appointment_date > $3`
	args := []interface{}{StatusPending, StatusConfirmed, after}
	if userID != nil {
		where += ` AND user_id = $4`
		args = append(args, *userID)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM bookings`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT `+bookingCols+` FROM bookings`+where+` ORDER BY appointment_date ASC LIMIT $%d OFFSET $%d`,
		len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collect(rows, total)
}

func collect(rows pgx.Rows, total int) ([]*Booking, int, error) {
	var items []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

func (r *bookingRepoPG) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT status, COUNT(*) FROM bookings GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

package catalog

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

type labTestRepoPG struct{ pool *pgxpool.Pool }

func NewLabTestRepoPG(pool *pgxpool.Pool) LabTestRepository { return &labTestRepoPG{pool: pool} }

func (r *labTestRepoPG) conn(context.Context) queryable { return r.pool }

const labTestCols = `id, name, code, description, category, sub_category, sample_type,
	requirements, procedure, price, duration_minutes, report_delivery_hours, is_active,
	is_home_collection_available, minimum_age, maximum_age, reference_ranges, units,
	created_at, updated_at`

func scanLabTest(row pgx.Row) (*LabTest, error) {
	var t LabTest
	err := row.Scan(&t.ID, &t.Name, &t.Code, &t.Description, &t.Category, &t.SubCategory,
		&t.SampleType, &t.Requirements, &t.Procedure, &t.Price, &t.DurationMinutes,
		&t.ReportDeliveryHours, &t.IsActive, &t.IsHomeCollectionAvailable, &t.MinimumAge,
		&t.MaximumAge, &t.ReferenceRanges, &t.Units, &t.CreatedAt, &t.UpdatedAt)
	return &t, err
}

func (r *labTestRepoPG) Create(ctx context.Context, t *LabTest) error {
	t.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lab_tests (id, name, code, description, category, sub_category, sample_type,
			requirements, procedure, price, duration_minutes, report_delivery_hours, is_active,
			is_home_collection_available, minimum_age, maximum_age, reference_ranges, units)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING created_at, updated_at`,
		t.ID, t.Name, t.Code, t.Description, t.Category, t.SubCategory, t.SampleType,
		t.Requirements, t.Procedure, t.Price, t.DurationMinutes, t.ReportDeliveryHours,
		t.IsActive, t.IsHomeCollectionAvailable, t.MinimumAge, t.MaximumAge,
		t.ReferenceRanges, t.Units).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *labTestRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabTest, error) {
	return scanLabTest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+labTestCols+` FROM lab_tests WHERE id = $1`, id))
}

func (r *labTestRepoPG) Update(ctx context.Context, t *LabTest) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE lab_tests SET name=$2, code=$3, description=$4, category=$5, sub_category=$6,
			sample_type=$7, requirements=$8, procedure=$9, price=$10, duration_minutes=$11,
			report_delivery_hours=$12, is_active=$13, is_home_collection_available=$14,
			minimum_age=$15, maximum_age=$16, reference_ranges=$17, units=$18, updated_at=NOW()
		WHERE id = $1`,
		t.ID, t.Name, t.Code, t.Description, t.Category, t.SubCategory, t.SampleType,
		t.Requirements, t.Procedure, t.Price, t.DurationMinutes, t.ReportDeliveryHours,
		t.IsActive, t.IsHomeCollectionAvailable, t.MinimumAge, t.MaximumAge,
		t.ReferenceRanges, t.Units)
	return err
}

func (r *labTestRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM lab_tests WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *labTestRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*LabTest, int, error) {
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
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.Active != nil {
		add("is_active = $%d", *f.Active)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM lab_tests`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT `+labTestCols+` FROM lab_tests`+where+` ORDER BY name LIMIT $%d OFFSET $%d`,
		len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*LabTest
	for rows.Next() {
		t, err := scanLabTest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

func (r *labTestRepoPG) Categories(ctx context.Context) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT DISTINCT category FROM lab_tests WHERE is_active ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

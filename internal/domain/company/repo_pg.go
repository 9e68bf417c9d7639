package company

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

type companyRepoPG struct{ pool *pgxpool.Pool }

func NewCompanyRepoPG(pool *pgxpool.Pool) CompanyRepository { return &companyRepoPG{pool: pool} }

func (r *companyRepoPG) conn(context.Context) queryable { return r.pool }

const companyCols = `id, name, legal_name, registration_number, tax_id, description, email,
	phone, website, address_line1, address_line2, city, state, postal_code, country,
	services, operating_hours, is_home_collection_available, home_collection_radius_km,
	home_collection_fee, created_at, updated_at`

func scanCompany(row pgx.Row) (*Company, error) {
	var c Company
	err := row.Scan(&c.ID, &c.Name, &c.LegalName, &c.RegistrationNumber, &c.TaxID,
		&c.Description, &c.Email, &c.Phone, &c.Website, &c.AddressLine1, &c.AddressLine2,
		&c.City, &c.State, &c.PostalCode, &c.Country, &c.Services, &c.OperatingHours,
		&c.IsHomeCollectionAvailable, &c.HomeCollectionRadiusKm, &c.HomeCollectionFee,
		&c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *companyRepoPG) Get(ctx context.Context) (*Company, error) {
	return scanCompany(r.conn(ctx).QueryRow(ctx,
		`SELECT `+companyCols+` FROM company ORDER BY created_at LIMIT 1`))
}

func (r *companyRepoPG) Upsert(ctx context.Context, c *Company) error {
	existing, err := r.Get(ctx)
	if err == nil {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
		_, err = r.conn(ctx).Exec(ctx, `
			UPDATE company SET name=$2, legal_name=$3, registration_number=$4, tax_id=$5,
				description=$6, email=$7, phone=$8, website=$9, address_line1=$10,
				address_line2=$11, city=$12, state=$13, postal_code=$14, country=$15,
				services=$16, operating_hours=$17, is_home_collection_available=$18,
				home_collection_radius_km=$19, home_collection_fee=$20, updated_at=NOW()
			WHERE id = $1`,
			c.ID, c.Name, c.LegalName, c.RegistrationNumber, c.TaxID, c.Description,
			c.Email, c.Phone, c.Website, c.AddressLine1, c.AddressLine2, c.City, c.State,
			c.PostalCode, c.Country, c.Services, c.OperatingHours,
			c.IsHomeCollectionAvailable, c.HomeCollectionRadiusKm, c.HomeCollectionFee)
		return err
	}
	if err != pgx.ErrNoRows {
		return err
	}
	c.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO company (id, name, legal_name, registration_number, tax_id, description,
			email, phone, website, address_line1, address_line2, city, state, postal_code,
			country, services, operating_hours, is_home_collection_available,
			home_collection_radius_km, home_collection_fee)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		RETURNING created_at, updated_at`,
		c.ID, c.Name, c.LegalName, c.RegistrationNumber, c.TaxID, c.Description, c.Email,
		c.Phone, c.Website, c.AddressLine1, c.AddressLine2, c.City, c.State, c.PostalCode,
		c.Country, c.Services, c.OperatingHours, c.IsHomeCollectionAvailable,
		c.HomeCollectionRadiusKm, c.HomeCollectionFee).Scan(&c.CreatedAt, &c.UpdatedAt)
}

type contactMessageRepoPG struct{ pool *pgxpool.Pool }

func NewContactMessageRepoPG(pool *pgxpool.Pool) ContactMessageRepository {
	return &contactMessageRepoPG{pool: pool}
}

func (r *contactMessageRepoPG) conn(context.Context) queryable { return r.pool }

const messageCols = `id, name, email, phone, subject, message, user_id, status,
	admin_response, responded_at, created_at, updated_at`

func scanMessage(row pgx.Row) (*ContactMessage, error) {
	var m ContactMessage
	err := row.Scan(&m.ID, &m.Name, &m.Email, &m.Phone, &m.Subject, &m.Message, &m.UserID,
		&m.Status, &m.AdminResponse, &m.RespondedAt, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func (r *contactMessageRepoPG) Create(ctx context.Context, m *ContactMessage) error {
	m.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO contact_messages (id, name, email, phone, subject, message, user_id, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		m.ID, m.Name, m.Email, m.Phone, m.Subject, m.Message, m.UserID, m.Status).
		Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *contactMessageRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ContactMessage, error) {
	return scanMessage(r.conn(ctx).QueryRow(ctx,
		`SELECT `+messageCols+` FROM contact_messages WHERE id = $1`, id))
}

func (r *contactMessageRepoPG) Update(ctx context.Context, m *ContactMessage) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE contact_messages SET status=$2, admin_response=$3, responded_at=$4, updated_at=NOW()
		WHERE id = $1`,
		m.ID, m.Status, m.AdminResponse, m.RespondedAt)
	return err
}

func (r *contactMessageRepoPG) List(ctx context.Context, status string, limit, offset int) ([]*ContactMessage, int, error) {
	where := ""
	var args []interface{}
	if status != "" {
		where = " WHERE status = $1"
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM contact_messages`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT `+messageCols+` FROM contact_messages`+where+` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ContactMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

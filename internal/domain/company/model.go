package company

import (
	"time"

	"github.com/google/uuid"
)

// Company is the singleton organization record.
type Company struct {
	ID                 uuid.UUID         `db:"id" json:"id"`
	Name               string            `db:"name" json:"name"`
	LegalName          *string           `db:"legal_name" json:"legal_name,omitempty"`
	RegistrationNumber *string           `db:"registration_number" json:"registration_number,omitempty"`
	TaxID              *string           `db:"tax_id" json:"tax_id,omitempty"`
	Description        *string           `db:"description" json:"description,omitempty"`
	Email              string            `db:"email" json:"email"`
	Phone              string            `db:"phone" json:"phone"`
	Website            *string           `db:"website" json:"website,omitempty"`
	AddressLine1       *string           `db:"address_line1" json:"address_line1,omitempty"`
	AddressLine2       *string           `db:"address_line2" json:"address_line2,omitempty"`
	City               *string           `db:"city" json:"city,omitempty"`
	State              *string           `db:"state" json:"state,omitempty"`
	PostalCode         *string           `db:"postal_code" json:"postal_code,omitempty"`
	Country            *string           `db:"country" json:"country,omitempty"`
	Services           []string          `db:"services" json:"services"`
	OperatingHours     map[string]string `db:"operating_hours" json:"operating_hours"`

	IsHomeCollectionAvailable bool    `db:"is_home_collection_available" json:"is_home_collection_available"`
	HomeCollectionRadiusKm    *int    `db:"home_collection_radius_km" json:"home_collection_radius_km,omitempty"`
	HomeCollectionFee         *int64  `db:"home_collection_fee" json:"home_collection_fee,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Contact message statuses.
const (
	MessageNew        = "new"
	MessageRead       = "read"
	MessageInProgress = "in_progress"
	MessageResolved   = "resolved"
	MessageClosed     = "closed"
)

// ValidMessageStatus reports whether s is a known contact message status.
func ValidMessageStatus(s string) bool {
	switch s {
	case MessageNew, MessageRead, MessageInProgress, MessageResolved, MessageClosed:
		return true
	}
	return false
}

// ContactMessage is a public inquiry. UserID is set when the sender was
// authenticated.
type ContactMessage struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	Name          string     `db:"name" json:"name"`
	Email         string     `db:"email" json:"email"`
	Phone         *string    `db:"phone" json:"phone,omitempty"`
	Subject       string     `db:"subject" json:"subject"`
	Message       string     `db:"message" json:"message"`
	UserID        *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	Status        string     `db:"status" json:"status"`
	AdminResponse *string    `db:"admin_response" json:"admin_response,omitempty"`
	RespondedAt   *time.Time `db:"responded_at" json:"responded_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// ContactDetails is the public contact card derived from the company record.
type ContactDetails struct {
	Email          string            `json:"email"`
	Phone          string            `json:"phone"`
	Website        *string           `json:"website,omitempty"`
	AddressLine1   *string           `json:"address_line1,omitempty"`
	AddressLine2   *string           `json:"address_line2,omitempty"`
	City           *string           `json:"city,omitempty"`
	State          *string           `json:"state,omitempty"`
	PostalCode     *string           `json:"postal_code,omitempty"`
	Country        *string           `json:"country,omitempty"`
	OperatingHours map[string]string `json:"operating_hours"`
}

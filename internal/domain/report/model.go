package report

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Report statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusReviewed   = "reviewed"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

// Priorities.
const (
	PriorityNormal = "normal"
	PriorityUrgent = "urgent"
	PriorityStat   = "stat"
)

// Payment statuses.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

// transitions holds the legal single-step moves. A report only ever advances
// along pending→in_progress→completed→reviewed→delivered; the sole branch is
// pending→cancelled. Skips and regressions are rejected.
var transitions = map[string][]string{
	StatusPending:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
	StatusCompleted:  {StatusReviewed},
	StatusReviewed:   {StatusDelivered},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// CanTransition reports whether from→to is a legal status change.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s is a known report status.
func ValidStatus(s string) bool {
	_, ok := transitions[s]
	return ok
}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p string) bool {
	switch p {
	case PriorityNormal, PriorityUrgent, PriorityStat:
		return true
	}
	return false
}

// ValidPaymentStatus reports whether p is a known payment status.
func ValidPaymentStatus(p string) bool {
	switch p {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// Report maps to the reports table. AmountCharged is in minor currency
// units.
type Report struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	ReportNumber string     `db:"report_number" json:"report_number"`
	UserID       uuid.UUID  `db:"user_id" json:"user_id"`
	LabTestID    uuid.UUID  `db:"lab_test_id" json:"lab_test_id"`
	BookingID    *uuid.UUID `db:"booking_id" json:"booking_id,omitempty"`
	Status       string     `db:"status" json:"status"`
	Priority     string     `db:"priority" json:"priority"`

	ScheduledAt *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	CollectedAt *time.Time `db:"collected_at" json:"collected_at,omitempty"`
	TestedAt    *time.Time `db:"tested_at" json:"tested_at,omitempty"`
	ReviewedAt  *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	DeliveredAt *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`

	SampleCollectedBy  *string `db:"sample_collected_by" json:"sample_collected_by,omitempty"`
	CollectionLocation *string `db:"collection_location" json:"collection_location,omitempty"`
	CollectionNotes    *string `db:"collection_notes" json:"collection_notes,omitempty"`

	Results         *string `db:"results" json:"results,omitempty"`
	Observations    *string `db:"observations" json:"observations,omitempty"`
	Recommendations *string `db:"recommendations" json:"recommendations,omitempty"`

	FilePath         *string `db:"file_path" json:"file_path,omitempty"`
	FileOriginalName *string `db:"file_original_name" json:"file_original_name,omitempty"`
	FileSize         *int64  `db:"file_size" json:"file_size,omitempty"`
	FileType         *string `db:"file_type" json:"file_type,omitempty"`

	IsShared   bool       `db:"is_shared" json:"is_shared"`
	SharedAt   *time.Time `db:"shared_at" json:"shared_at,omitempty"`
	SharedWith *string    `db:"shared_with" json:"shared_with,omitempty"`

	IsVerified bool       `db:"is_verified" json:"is_verified"`
	VerifiedBy *string    `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt *time.Time `db:"verified_at" json:"verified_at,omitempty"`

	AmountCharged    int64   `db:"amount_charged" json:"amount_charged"`
	PaymentStatus    string  `db:"payment_status" json:"payment_status"`
	PaymentReference *string `db:"payment_reference" json:"payment_reference,omitempty"`

	Notes     *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CanBeDownloaded reports whether the report has a file a client may fetch:
// a file is attached and the report has at least completed testing.
func (r *Report) CanBeDownloaded() bool {
	if r.FilePath == nil {
		return false
	}
	switch r.Status {
	case StatusCompleted, StatusReviewed, StatusDelivered:
		return true
	}
	return false
}

// NewReportNumber generates RPT<YYYYMMDD><8 uppercase hex>.
func NewReportNumber(now time.Time) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return "RPT" + now.UTC().Format("20060102") + strings.ToUpper(hex.EncodeToString(buf))
}

// Filter narrows report listings.
type Filter struct {
	UserID        *uuid.UUID
	LabTestID     *uuid.UUID
	Status        string
	PaymentStatus string
}

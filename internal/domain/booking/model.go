package booking

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
)

// Booking statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

// transitions is the full status graph. Terminal statuses have no exits.
var transitions = map[string][]string{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
	StatusCompleted: {},
	StatusCancelled: {},
	StatusNoShow:    {},
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

// ValidStatus reports whether s is a known booking status.
func ValidStatus(s string) bool {
	_, ok := transitions[s]
	return ok
}

// Booking maps to the bookings table.
type Booking struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	BookingReference    string     `db:"booking_reference" json:"booking_reference"`
	UserID              uuid.UUID  `db:"user_id" json:"user_id"`
	LabTestID           uuid.UUID  `db:"lab_test_id" json:"lab_test_id"`
	PatientName         string     `db:"patient_name" json:"patient_name"`
	PatientAge          int        `db:"patient_age" json:"patient_age"`
	PatientGender       string     `db:"patient_gender" json:"patient_gender"`
	PhoneNumber         string     `db:"phone_number" json:"phone_number"`
	AppointmentDate     time.Time  `db:"appointment_date" json:"appointment_date"`
	HomeCollection      bool       `db:"home_collection" json:"home_collection"`
	Address             *string    `db:"address" json:"address,omitempty"`
	SpecialInstructions *string    `db:"special_instructions" json:"special_instructions,omitempty"`
	Status              string     `db:"status" json:"status"`
	AdminNotes          *string    `db:"admin_notes" json:"admin_notes,omitempty"`
	CancellationReason  *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledAt         *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CompletedAt         *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// IsCancellable reports whether the booking can still be cancelled: not yet
// completed or cancelled, and the appointment has not passed.
func (b *Booking) IsCancellable(now time.Time) bool {
	if b.Status != StatusPending && b.Status != StatusConfirmed {
		return false
	}
	return b.AppointmentDate.After(now)
}

const referenceCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxUniformByte is the largest multiple of len(referenceCharset) that fits
// in a byte. Values at or above it are rejected so every charset character
// is drawn with equal probability (256 is not a multiple of 36).
const maxUniformByte = 256 - 256%len(referenceCharset)

// NewReference generates a candidate booking reference of the form
// BK followed by six characters from [A-Z0-9]. Uniqueness is enforced by the
// database; callers regenerate on collision.
func NewReference() string {
	ref := make([]byte, 0, 6)
	buf := make([]byte, 8)
	for len(ref) < cap(ref) {
		if _, err := rand.Read(buf); err != nil {
			// crypto/rand.Read does not fail on supported platforms.
			panic(err)
		}
		ref = appendReferenceChars(ref, buf, cap(ref))
	}
	return "BK" + string(ref)
}

// appendReferenceChars encodes random bytes as charset characters until dst
// holds n of them, rejecting bytes that would skew the distribution.
func appendReferenceChars(dst, src []byte, n int) []byte {
	for _, b := range src {
		if len(dst) == n {
			break
		}
		if int(b) >= maxUniformByte {
			continue
		}
		dst = append(dst, referenceCharset[int(b)%len(referenceCharset)])
	}
	return dst
}

// Filter narrows booking listings.
type Filter struct {
	UserID *uuid.UUID
	Status string
	From   *time.Time
	To     *time.Time
}

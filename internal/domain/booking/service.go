package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vitalab/vitalab/internal/domain/catalog"
	"github.com/vitalab/vitalab/internal/platform/auth"
	"github.com/vitalab/vitalab/internal/platform/db"
	"github.com/vitalab/vitalab/internal/platform/httperr"
)

// referenceAttempts bounds regeneration when a booking reference collides.
const referenceAttempts = 5

// TestCatalog is the slice of the catalog the booking flow needs.
type TestCatalog interface {
	Get(ctx context.Context, id uuid.UUID, includeInactive bool) (*catalog.LabTest, error)
}

type Service struct {
	bookings BookingRepository
	tests    TestCatalog
	now      func() time.Time
}

func NewService(bookings BookingRepository, tests TestCatalog) *Service {
	return &Service{bookings: bookings, tests: tests, now: time.Now}
}

// WithClock injects the time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func isStaffRole(role string) bool {
	return role == auth.RoleAdmin || role == auth.RoleLabTechnician
}

// CreateRequest is the booking payload for POST /lab-tests/:id/book.
type CreateRequest struct {
	PatientName         string    `json:"patient_name"`
	PatientAge          int       `json:"patient_age"`
	PatientGender       string    `json:"patient_gender"`
	PhoneNumber         string    `json:"phone_number"`
	AppointmentDate     time.Time `json:"appointment_date"`
	HomeCollection      bool      `json:"home_collection"`
	Address             *string   `json:"address"`
	SpecialInstructions *string   `json:"special_instructions"`
}

func validGender(g string) bool {
	switch g {
	case "male", "female", "other":
		return true
	}
	return false
}

func (s *Service) Create(ctx context.Context, userID, labTestID uuid.UUID, req CreateRequest) (*Booking, error) {
	if strings.TrimSpace(req.PatientName) == "" {
		return nil, httperr.Validation("patient_name is required")
	}
	if req.PatientAge < 0 || req.PatientAge > 150 {
		return nil, httperr.Validation("patient_age must be between 0 and 150")
	}
	if !validGender(req.PatientGender) {
		return nil, httperr.Validation("patient_gender must be male, female or other")
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		return nil, httperr.Validation("phone_number is required")
	}
	if !req.AppointmentDate.After(s.now()) {
		return nil, httperr.Validation("appointment_date must be in the future")
	}

	test, err := s.tests.Get(ctx, labTestID, false)
	if err != nil {
		return nil, err
	}
	if !test.IsAvailableForAge(req.PatientAge) {
		return nil, httperr.BusinessRule(
			fmt.Sprintf("%s is not available for patients aged %d", test.Name, req.PatientAge))
	}
	if req.HomeCollection {
		if !test.IsHomeCollectionAvailable {
			return nil, httperr.BusinessRule(test.Name + " does not offer home collection")
		}
		if req.Address == nil || strings.TrimSpace(*req.Address) == "" {
			return nil, httperr.Validation("address is required for home collection")
		}
	}

	b := &Booking{
		UserID:              userID,
		LabTestID:           test.ID,
		PatientName:         req.PatientName,
		PatientAge:          req.PatientAge,
		PatientGender:       req.PatientGender,
		PhoneNumber:         req.PhoneNumber,
		AppointmentDate:     req.AppointmentDate,
		HomeCollection:      req.HomeCollection,
		Address:             req.Address,
		SpecialInstructions: req.SpecialInstructions,
		Status:              StatusPending,
	}
	for attempt := 1; ; attempt++ {
		b.BookingReference = NewReference()
		err := s.bookings.Create(ctx, b)
		if err == nil {
			return b, nil
		}
		if !db.IsUniqueViolation(err) {
			return nil, httperr.Internal(err)
		}
		if attempt >= referenceAttempts {
			return nil, httperr.Internal(fmt.Errorf("booking reference collided %d times: %w", attempt, err))
		}
	}
}

// Get fetches a booking visible to the caller: its owner or staff.
func (s *Service) Get(ctx context.Context, id, callerID uuid.UUID, role string) (*Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, httperr.NotFound("booking")
		}
		return nil, httperr.Internal(err)
	}
	if b.UserID != callerID && !isStaffRole(role) {
		return nil, httperr.NotFound("booking")
	}
	return b, nil
}

// List returns the caller's bookings, or any user's for staff.
func (s *Service) List(ctx context.Context, callerID uuid.UUID, role string, f Filter, limit, offset int) ([]*Booking, int, error) {
	if !isStaffRole(role) {
		f.UserID = &callerID
	}
	items, total, err := s.bookings.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, httperr.Internal(err)
	}
	return items, total, nil
}

// Upcoming returns future pending/confirmed bookings, soonest first. Staff
// see everyone's.
func (s *Service) Upcoming(ctx context.Context, callerID uuid.UUID, role string, limit, offset int) ([]*Booking, int, error) {
	var userID *uuid.UUID
	if !isStaffRole(role) {
		userID = &callerID
	}
	items, total, err := s.bookings.Upcoming(ctx, userID, s.now(), limit, offset)
	if err != nil {
		return nil, 0, httperr.Internal(err)
	}
	return items, total, nil
}

// UpdateRequest is a typed patch. Status is deliberately absent: transitions
// go through Cancel and UpdateStatus only.
type UpdateRequest struct {
	PatientName         *string    `json:"patient_name"`
	PatientAge          *int       `json:"patient_age"`
	PatientGender       *string    `json:"patient_gender"`
	PhoneNumber         *string    `json:"phone_number"`
	AppointmentDate     *time.Time `json:"appointment_date"`
	HomeCollection      *bool      `json:"home_collection"`
	Address             *string    `json:"address"`
	SpecialInstructions *string    `json:"special_instructions"`
}

func (s *Service) Update(ctx context.Context, id, callerID uuid.UUID, role string, req UpdateRequest) (*Booking, error) {
	b, err := s.Get(ctx, id, callerID, role)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusPending && b.Status != StatusConfirmed {
		return nil, httperr.BusinessRule("only pending or confirmed bookings can be updated")
	}

	if req.PatientName != nil {
		if strings.TrimSpace(*req.PatientName) == "" {
			return nil, httperr.Validation("patient_name cannot be empty")
		}
		b.PatientName = *req.PatientName
	}
	if req.PatientAge != nil {
		if *req.PatientAge < 0 || *req.PatientAge > 150 {
			return nil, httperr.Validation("patient_age must be between 0 and 150")
		}
		b.PatientAge = *req.PatientAge
	}
	if req.PatientGender != nil {
		if !validGender(*req.PatientGender) {
			return nil, httperr.Validation("patient_gender must be male, female or other")
		}
		b.PatientGender = *req.PatientGender
	}
	if req.PhoneNumber != nil {
		if strings.TrimSpace(*req.PhoneNumber) == "" {
			return nil, httperr.Validation("phone_number cannot be empty")
		}
		b.PhoneNumber = *req.PhoneNumber
	}
	if req.AppointmentDate != nil {
		if !req.AppointmentDate.After(s.now()) {
			return nil, httperr.Validation("appointment_date must be in the future")
		}
		b.AppointmentDate = *req.AppointmentDate
	}
	if req.HomeCollection != nil {
		b.HomeCollection = *req.HomeCollection
	}
	if req.Address != nil {
		b.Address = req.Address
	}
	if req.SpecialInstructions != nil {
		b.SpecialInstructions = req.SpecialInstructions
	}

	test, err := s.tests.Get(ctx, b.LabTestID, true)
	if err != nil {
		return nil, err
	}
	if req.PatientAge != nil && !test.IsAvailableForAge(b.PatientAge) {
		return nil, httperr.BusinessRule(
			fmt.Sprintf("%s is not available for patients aged %d", test.Name, b.PatientAge))
	}
	if b.HomeCollection {
		if !test.IsHomeCollectionAvailable {
			return nil, httperr.BusinessRule(test.Name + " does not offer home collection")
		}
		if b.Address == nil || strings.TrimSpace(*b.Address) == "" {
			return nil, httperr.Validation("address is required for home collection")
		}
	}

	if err := s.bookings.Update(ctx, b); err != nil {
		return nil, httperr.Internal(err)
	}
	return b, nil
}

// Cancel cancels a booking on behalf of its owner (or staff). The booking
// must still be cancellable: pending or confirmed with a future appointment.
func (s *Service) Cancel(ctx context.Context, id, callerID uuid.UUID, role string, reason *string) (*Booking, error) {
	b, err := s.Get(ctx, id, callerID, role)
	if err != nil {
		return nil, err
	}
	if !b.IsCancellable(s.now()) {
		return nil, httperr.BusinessRule("booking can no longer be cancelled")
	}
	now := s.now().UTC()
	b.Status = StatusCancelled
	b.CancellationReason = reason
	b.CancelledAt = &now
	if err := s.bookings.Update(ctx, b); err != nil {
		return nil, httperr.Internal(err)
	}
	return b, nil
}

// UpdateStatus moves a booking along the status graph. Illegal edges are
// rejected naming both states and leave the booking unchanged.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to string, adminNotes *string) (*Booking, error) {
	if !ValidStatus(to) {
		return nil, httperr.Validation("unknown status: " + to)
	}
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, httperr.NotFound("booking")
		}
		return nil, httperr.Internal(err)
	}
	if !CanTransition(b.Status, to) {
		return nil, httperr.BusinessRule(
			fmt.Sprintf("cannot transition booking from %s to %s", b.Status, to))
	}

	now := s.now().UTC()
	b.Status = to
	if adminNotes != nil {
		b.AdminNotes = adminNotes
	}
	switch to {
	case StatusCancelled:
		if b.CancelledAt == nil {
			b.CancelledAt = &now
		}
	case StatusCompleted:
		if b.CompletedAt == nil {
			b.CompletedAt = &now
		}
	}
	if err := s.bookings.Update(ctx, b); err != nil {
		return nil, httperr.Internal(err)
	}
	return b, nil
}

// Stats returns booking counts per status, with zeroes for absent statuses.
func (s *Service) Stats(ctx context.Context) (map[string]int, error) {
	counts, err := s.bookings.CountByStatus(ctx)
	if err != nil {
		return nil, httperr.Internal(err)
	}
	for status := range transitions {
		if _, ok := counts[status]; !ok {
			counts[status] = 0
		}
	}
	return counts, nil
}

package catalog

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/vitalab/vitalab/internal/platform/db"
	"github.com/vitalab/vitalab/internal/platform/httperr"
)

var codeRe = regexp.MustCompile(`^[A-Z0-9_-]{2,20}$`)

const (
	defaultDurationMinutes     = 30
	defaultReportDeliveryHours = 24
)

type Service struct {
	tests LabTestRepository
}

func NewService(tests LabTestRepository) *Service {
	return &Service{tests: tests}
}

func (s *Service) validate(t *LabTest) error {
	t.Code = strings.ToUpper(strings.TrimSpace(t.Code))
	if strings.TrimSpace(t.Name) == "" {
		return httperr.Validation("name is required")
	}
	if !codeRe.MatchString(t.Code) {
		return httperr.Validation("code must be 2-20 uppercase letters, digits, _ or -")
	}
	if strings.TrimSpace(t.Category) == "" {
		return httperr.Validation("category is required")
	}
	if strings.TrimSpace(t.SampleType) == "" {
		return httperr.Validation("sample_type is required")
	}
	if t.Price <= 0 {
		return httperr.Validation("price must be positive")
	}
	if t.MinimumAge != nil && (*t.MinimumAge < 0 || *t.MinimumAge > 150) {
		return httperr.Validation("minimum_age must be between 0 and 150")
	}
	if t.MaximumAge != nil && (*t.MaximumAge < 0 || *t.MaximumAge > 150) {
		return httperr.Validation("maximum_age must be between 0 and 150")
	}
	if t.MinimumAge != nil && t.MaximumAge != nil && *t.MinimumAge > *t.MaximumAge {
		return httperr.Validation("minimum_age cannot exceed maximum_age")
	}
	if t.DurationMinutes == 0 {
		t.DurationMinutes = defaultDurationMinutes
	}
	if t.DurationMinutes < 0 {
		return httperr.Validation("duration_minutes must be positive")
	}
	if t.ReportDeliveryHours == 0 {
		t.ReportDeliveryHours = defaultReportDeliveryHours
	}
	if t.ReportDeliveryHours < 0 {
		return httperr.Validation("report_delivery_hours must be positive")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, t *LabTest) error {
	if err := s.validate(t); err != nil {
		return err
	}
	if err := s.tests.Create(ctx, t); err != nil {
		if db.IsUniqueViolation(err) {
			return httperr.Conflict("lab test code already exists")
		}
		return httperr.Internal(err)
	}
	return nil
}

// Get fetches a test by id. Inactive tests are hidden unless includeInactive
// is set (staff callers).
func (s *Service) Get(ctx context.Context, id uuid.UUID, includeInactive bool) (*LabTest, error) {
	t, err := s.tests.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, httperr.NotFound("lab test")
		}
		return nil, httperr.Internal(err)
	}
	if !t.IsActive && !includeInactive {
		return nil, httperr.NotFound("lab test")
	}
	return t, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, t *LabTest) (*LabTest, error) {
	existing, err := s.Get(ctx, id, true)
	if err != nil {
		return nil, err
	}
	t.ID = existing.ID
	t.CreatedAt = existing.CreatedAt
	if err := s.validate(t); err != nil {
		return nil, err
	}
	if err := s.tests.Update(ctx, t); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, httperr.Conflict("lab test code already exists")
		}
		return nil, httperr.Internal(err)
	}
	return t, nil
}

// Delete removes a test that nothing references. Bookings and reports hold
// restricting foreign keys, so an in-use test surfaces as a conflict.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.tests.Delete(ctx, id); err != nil {
		if db.IsNotFound(err) {
			return httperr.NotFound("lab test")
		}
		if db.IsForeignKeyViolation(err) {
			return httperr.Conflict("lab test is referenced by existing bookings or reports")
		}
		return httperr.Internal(err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*LabTest, int, error) {
	items, total, err := s.tests.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, httperr.Internal(err)
	}
	return items, total, nil
}

func (s *Service) Categories(ctx context.Context) ([]string, error) {
	categories, err := s.tests.Categories(ctx)
	if err != nil {
		return nil, httperr.Internal(err)
	}
	return categories, nil
}

package catalog

import (
	"time"

	"github.com/google/uuid"
)

// LabTest maps to the lab_tests table.
type LabTest struct {
	ID                        uuid.UUID `db:"id" json:"id"`
	Name                      string    `db:"name" json:"name"`
	Code                      string    `db:"code" json:"code"`
	Description               *string   `db:"description" json:"description,omitempty"`
	Category                  string    `db:"category" json:"category"`
	SubCategory               *string   `db:"sub_category" json:"sub_category,omitempty"`
	SampleType                string    `db:"sample_type" json:"sample_type"`
	Requirements              *string   `db:"requirements" json:"requirements,omitempty"`
	Procedure                 *string   `db:"procedure" json:"procedure,omitempty"`
	Price                     float64   `db:"price" json:"price"`
	DurationMinutes           int       `db:"duration_minutes" json:"duration_minutes"`
	ReportDeliveryHours       int       `db:"report_delivery_hours" json:"report_delivery_hours"`
	IsActive                  bool      `db:"is_active" json:"is_active"`
	IsHomeCollectionAvailable bool      `db:"is_home_collection_available" json:"is_home_collection_available"`
	MinimumAge                *int      `db:"minimum_age" json:"minimum_age,omitempty"`
	MaximumAge                *int      `db:"maximum_age" json:"maximum_age,omitempty"`
	ReferenceRanges           *string   `db:"reference_ranges" json:"reference_ranges,omitempty"`
	Units                     *string   `db:"units" json:"units,omitempty"`
	CreatedAt                 time.Time `db:"created_at" json:"created_at"`
	UpdatedAt                 time.Time `db:"updated_at" json:"updated_at"`
}

// IsAvailableForAge reports whether a patient of the given age may book this
// test. A nil bound is unbounded on that side.
func (t *LabTest) IsAvailableForAge(age int) bool {
	if t.MinimumAge != nil && age < *t.MinimumAge {
		return false
	}
	if t.MaximumAge != nil && age > *t.MaximumAge {
		return false
	}
	return true
}

// ListFilter narrows List results. Nil Active means both active and inactive.
type ListFilter struct {
	Category string
	Active   *bool
}

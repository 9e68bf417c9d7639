package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vitalab/vitalab/internal/platform/auth"
	"github.com/vitalab/vitalab/internal/platform/blobstore"
	"github.com/vitalab/vitalab/internal/platform/db"
	"github.com/vitalab/vitalab/internal/platform/httperr"
)

// presignTTL bounds how long a download link stays valid.
const presignTTL = 15 * time.Minute

// allowedFileTypes are the MIME types accepted for report attachments.
var allowedFileTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
}

type Service struct {
	reports   ReportRepository
	store     blobstore.ObjectStore
	keyPrefix string
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(reports ReportRepository, store blobstore.ObjectStore, keyPrefix string, logger zerolog.Logger) *Service {
	if keyPrefix == "" {
		keyPrefix = "reports"
	}
	return &Service{reports: reports, store: store, keyPrefix: keyPrefix, logger: logger, now: time.Now}
}

// WithClock injects the time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func isStaffRole(role string) bool {
	return role == auth.RoleAdmin || role == auth.RoleLabTechnician
}

// CreateRequest is the staff payload for opening a report.
type CreateRequest struct {
	UserID        uuid.UUID  `json:"user_id"`
	LabTestID     uuid.UUID  `json:"lab_test_id"`
	BookingID     *uuid.UUID `json:"booking_id"`
	ScheduledAt   *time.Time `json:"scheduled_at"`
	Priority      string     `json:"priority"`
	AmountCharged int64      `json:"amount_charged"`
	Notes         *string    `json:"notes"`
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Report, error) {
	if req.UserID == uuid.Nil {
		return nil, httperr.Validation("user_id is required")
	}
	if req.LabTestID == uuid.Nil {
		return nil, httperr.Validation("lab_test_id is required")
	}
	if req.Priority == "" {
		req.Priority = PriorityNormal
	}
	if !ValidPriority(req.Priority) {
		return nil, httperr.Validation("priority must be normal, urgent or stat")
	}
	if req.AmountCharged < 0 {
		return nil, httperr.Validation("amount_charged cannot be negative")
	}

	rep := &Report{
		ReportNumber:  NewReportNumber(s.now()),
		UserID:        req.UserID,
		LabTestID:     req.LabTestID,
		BookingID:     req.BookingID,
		Status:        StatusPending,
		Priority:      req.Priority,
		ScheduledAt:   req.ScheduledAt,
		AmountCharged: req.AmountCharged,
		PaymentStatus: PaymentPending,
		Notes:         req.Notes,
	}
	if err := s.reports.Create(ctx, rep); err != nil {
		if db.IsForeignKeyViolation(err) {
			return nil, httperr.Validation("unknown user, lab test or booking")
		}
		if db.IsUniqueViolation(err) {
			// Report number collision within one day is vanishingly rare;
			// one retry covers it.
			rep.ReportNumber = NewReportNumber(s.now())
			if err := s.reports.Create(ctx, rep); err != nil {
				return nil, httperr.Internal(err)
			}
			return rep, nil
		}
		return nil, httperr.Internal(err)
	}
	return rep, nil
}

// Get fetches a report visible to the caller: its owner or staff.
func (s *Service) Get(ctx context.Context, id, callerID uuid.UUID, role string) (*Report, error) {
	rep, err := s.reports.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, httperr.NotFound("report")
		}
		return nil, httperr.Internal(err)
	}
	if rep.UserID != callerID && !isStaffRole(role) {
		return nil, httperr.NotFound("report")
	}
	return rep, nil
}

// List returns the caller's reports, or any user's for staff.
func (s *Service) List(ctx context.Context, callerID uuid.UUID, role string, f Filter, limit, offset int) ([]*Report, int, error) {
	if !isStaffRole(role) {
		f.UserID = &callerID
	}
	items, total, err := s.reports.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, httperr.Internal(err)
	}
	return items, total, nil
}

// UpdateStatus advances the report one step along its lifecycle, stamping
// the matching timestamp the first time each stage is entered. verifiedBy is
// recorded when the report enters reviewed.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to, verifiedBy string) (*Report, error) {
	if !ValidStatus(to) {
		return nil, httperr.Validation("unknown status: " + to)
	}
	rep, err := s.reports.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, httperr.NotFound("report")
		}
		return nil, httperr.Internal(err)
	}
	if !CanTransition(rep.Status, to) {
		return nil, httperr.BusinessRule(
			fmt.Sprintf("cannot transition report from %s to %s", rep.Status, to))
	}

	now := s.now().UTC()
	rep.Status = to
	switch to {
	case StatusInProgress:
		if rep.CollectedAt == nil {
			rep.CollectedAt = &now
		}
	case StatusCompleted:
		if rep.TestedAt == nil {
			rep.TestedAt = &now
		}
	case StatusReviewed:
		if rep.ReviewedAt == nil {
			rep.ReviewedAt = &now
		}
		rep.IsVerified = true
		if rep.VerifiedAt == nil {
			rep.VerifiedAt = &now
		}
		if verifiedBy != "" && rep.VerifiedBy == nil {
			rep.VerifiedBy = &verifiedBy
		}
	case StatusDelivered:
		if rep.DeliveredAt == nil {
			rep.DeliveredAt = &now
		}
	}
	if err := s.reports.Update(ctx, rep); err != nil {
		return nil, httperr.Internal(err)
	}
	return rep, nil
}

// UpdateRequest is a typed staff patch for result and payment details.
// Status is deliberately absent: transitions go through UpdateStatus.
type UpdateRequest struct {
	Priority           *string `json:"priority"`
	SampleCollectedBy  *string `json:"sample_collected_by"`
	CollectionLocation *string `json:"collection_location"`
	CollectionNotes    *string `json:"collection_notes"`
	Results            *string `json:"results"`
	Observations       *string `json:"observations"`
	Recommendations    *string `json:"recommendations"`
	AmountCharged      *int64  `json:"amount_charged"`
	PaymentStatus      *string `json:"payment_status"`
	PaymentReference   *string `json:"payment_reference"`
	Notes              *string `json:"notes"`
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Report, error) {
	rep, err := s.reports.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, httperr.NotFound("report")
		}
		return nil, httperr.Internal(err)
	}

	if req.Priority != nil {
		if !ValidPriority(*req.Priority) {
			return nil, httperr.Validation("priority must be normal, urgent or stat")
		}
		rep.Priority = *req.Priority
	}
	if req.PaymentStatus != nil {
		if !ValidPaymentStatus(*req.PaymentStatus) {
			return nil, httperr.Validation("unknown payment status: " + *req.PaymentStatus)
		}
		rep.PaymentStatus = *req.PaymentStatus
	}
	if req.AmountCharged != nil {
		if *req.AmountCharged < 0 {
			return nil, httperr.Validation("amount_charged cannot be negative")
		}
		rep.AmountCharged = *req.AmountCharged
	}
	if req.SampleCollectedBy != nil {
		rep.SampleCollectedBy = req.SampleCollectedBy
	}
	if req.CollectionLocation != nil {
		rep.CollectionLocation = req.CollectionLocation
	}
	if req.CollectionNotes != nil {
		rep.CollectionNotes = req.CollectionNotes
	}
	if req.Results != nil {
		rep.Results = req.Results
	}
	if req.Observations != nil {
		rep.Observations = req.Observations
	}
	if req.Recommendations != nil {
		rep.Recommendations = req.Recommendations
	}
	if req.PaymentReference != nil {
		rep.PaymentReference = req.PaymentReference
	}
	if req.Notes != nil {
		rep.Notes = req.Notes
	}

	if err := s.reports.Update(ctx, rep); err != nil {
		return nil, httperr.Internal(err)
	}
	return rep, nil
}

// Upload attaches a file to the report, replacing any previous attachment.
// The superseded object is deleted best-effort; a failure there only logs a
// warning since the new file is already the source of truth.
func (s *Service) Upload(ctx context.Context, id uuid.UUID, filename, contentType string, size int64, body io.Reader) (*Report, error) {
	if !allowedFileTypes[contentType] {
		return nil, httperr.Validation("file must be a PDF, JPEG or PNG")
	}
	if size <= 0 {
		return nil, httperr.Validation("file is empty")
	}
	rep, err := s.reports.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, httperr.NotFound("report")
		}
		return nil, httperr.Internal(err)
	}
	if rep.Status == StatusCancelled {
		return nil, httperr.BusinessRule("cannot attach a file to a cancelled report")
	}

	key := blobstore.NewKey(s.keyPrefix, filename)
	if err := s.store.Put(ctx, key, body, size, contentType); err != nil {
		return nil, httperr.External("object storage", err)
	}

	superseded := rep.FilePath
	rep.FilePath = &key
	rep.FileOriginalName = &filename
	rep.FileSize = &size
	rep.FileType = &contentType
	if err := s.reports.Update(ctx, rep); err != nil {
		return nil, httperr.Internal(err)
	}

	if superseded != nil {
		if err := s.store.Delete(ctx, *superseded); err != nil {
			s.logger.Warn().Err(err).
				Str("report_id", rep.ID.String()).
				Str("object_key", *superseded).
				Msg("failed to delete superseded report file")
		}
	}
	return rep, nil
}

// Download returns a short-lived presigned URL for the report file.
func (s *Service) Download(ctx context.Context, id, callerID uuid.UUID, role string) (string, error) {
	rep, err := s.Get(ctx, id, callerID, role)
	if err != nil {
		return "", err
	}
	if !rep.CanBeDownloaded() {
		return "", httperr.BusinessRule("report is not available for download")
	}
	url, err := s.store.PresignGet(ctx, *rep.FilePath, presignTTL)
	if err != nil {
		return "", httperr.External("object storage", err)
	}
	return url, nil
}

// Share marks the report as shared with a recipient. Only the owner may
// share, and only once the report is downloadable. shared_at is stamped on
// the first share.
func (s *Service) Share(ctx context.Context, id, callerID uuid.UUID, sharedWith string) (*Report, error) {
	if strings.TrimSpace(sharedWith) == "" {
		return nil, httperr.Validation("shared_with is required")
	}
	rep, err := s.reports.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, httperr.NotFound("report")
		}
		return nil, httperr.Internal(err)
	}
	if rep.UserID != callerID {
		return nil, httperr.NotFound("report")
	}
	if !rep.CanBeDownloaded() {
		return nil, httperr.BusinessRule("report is not available for sharing")
	}

	rep.IsShared = true
	rep.SharedWith = &sharedWith
	if rep.SharedAt == nil {
		now := s.now().UTC()
		rep.SharedAt = &now
	}
	if err := s.reports.Update(ctx, rep); err != nil {
		return nil, httperr.Internal(err)
	}
	return rep, nil
}

// Delete removes a report that never progressed: pending or cancelled only.
// Any attached file is deleted best-effort.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	rep, err := s.reports.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return httperr.NotFound("report")
		}
		return httperr.Internal(err)
	}
	if rep.Status != StatusPending && rep.Status != StatusCancelled {
		return httperr.BusinessRule("only pending or cancelled reports can be deleted")
	}
	if err := s.reports.Delete(ctx, id); err != nil {
		return httperr.Internal(err)
	}
	if rep.FilePath != nil {
		if err := s.store.Delete(ctx, *rep.FilePath); err != nil {
			s.logger.Warn().Err(err).
				Str("report_id", rep.ID.String()).
				Str("object_key", *rep.FilePath).
				Msg("failed to delete file of removed report")
		}
	}
	return nil
}

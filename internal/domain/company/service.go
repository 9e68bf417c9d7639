package company

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vitalab/vitalab/internal/platform/db"
	"github.com/vitalab/vitalab/internal/platform/httperr"
)

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

type Service struct {
	company  CompanyRepository
	messages ContactMessageRepository
	now      func() time.Time
}

func NewService(company CompanyRepository, messages ContactMessageRepository) *Service {
	return &Service{company: company, messages: messages, now: time.Now}
}

// WithClock injects the time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Info(ctx context.Context) (*Company, error) {
	c, err := s.company.Get(ctx)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, httperr.NotFound("company information")
		}
		return nil, httperr.Internal(err)
	}
	return c, nil
}

func (s *Service) UpdateInfo(ctx context.Context, c *Company) error {
	if strings.TrimSpace(c.Name) == "" {
		return httperr.Validation("name is required")
	}
	if !emailRe.MatchString(c.Email) {
		return httperr.Validation("invalid email address")
	}
	if strings.TrimSpace(c.Phone) == "" {
		return httperr.Validation("phone is required")
	}
	if c.Services == nil {
		c.Services = []string{}
	}
	if c.OperatingHours == nil {
		c.OperatingHours = map[string]string{}
	}
	if err := s.company.Upsert(ctx, c); err != nil {
		return httperr.Internal(err)
	}
	return nil
}

func (s *Service) Services(ctx context.Context) ([]string, error) {
	c, err := s.Info(ctx)
	if err != nil {
		return nil, err
	}
	return c.Services, nil
}

func (s *Service) Contact(ctx context.Context) (*ContactDetails, error) {
	c, err := s.Info(ctx)
	if err != nil {
		return nil, err
	}
	return &ContactDetails{
		Email:          c.Email,
		Phone:          c.Phone,
		Website:        c.Website,
		AddressLine1:   c.AddressLine1,
		AddressLine2:   c.AddressLine2,
		City:           c.City,
		State:          c.State,
		PostalCode:     c.PostalCode,
		Country:        c.Country,
		OperatingHours: c.OperatingHours,
	}, nil
}

// ContactRequest is the public inquiry payload.
type ContactRequest struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Phone   *string `json:"phone"`
	Subject string  `json:"subject"`
	Message string  `json:"message"`
}

// SubmitContact records a public inquiry. userID is non-nil when the sender
// was authenticated.
func (s *Service) SubmitContact(ctx context.Context, req ContactRequest, userID *uuid.UUID) (*ContactMessage, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, httperr.Validation("name is required")
	}
	if !emailRe.MatchString(req.Email) {
		return nil, httperr.Validation("invalid email address")
	}
	if strings.TrimSpace(req.Subject) == "" {
		return nil, httperr.Validation("subject is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, httperr.Validation("message is required")
	}

	m := &ContactMessage{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Subject: req.Subject,
		Message: req.Message,
		UserID:  userID,
		Status:  MessageNew,
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, httperr.Internal(err)
	}
	return m, nil
}

func (s *Service) ListMessages(ctx context.Context, status string, limit, offset int) ([]*ContactMessage, int, error) {
	if status != "" && !ValidMessageStatus(status) {
		return nil, 0, httperr.Validation("unknown status: " + status)
	}
	items, total, err := s.messages.List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, httperr.Internal(err)
	}
	return items, total, nil
}

// GetMessage fetches a message, moving fresh ones to read.
func (s *Service) GetMessage(ctx context.Context, id uuid.UUID) (*ContactMessage, error) {
	m, err := s.messages.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, httperr.NotFound("contact message")
		}
		return nil, httperr.Internal(err)
	}
	if m.Status == MessageNew {
		m.Status = MessageRead
		if err := s.messages.Update(ctx, m); err != nil {
			return nil, httperr.Internal(err)
		}
	}
	return m, nil
}

func (s *Service) UpdateMessageStatus(ctx context.Context, id uuid.UUID, status string) (*ContactMessage, error) {
	if !ValidMessageStatus(status) {
		return nil, httperr.Validation("unknown status: " + status)
	}
	m, err := s.messages.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, httperr.NotFound("contact message")
		}
		return nil, httperr.Internal(err)
	}
	m.Status = status
	if err := s.messages.Update(ctx, m); err != nil {
		return nil, httperr.Internal(err)
	}
	return m, nil
}

// Respond records an admin reply and resolves the message. responded_at is
// stamped on the first response only.
func (s *Service) Respond(ctx context.Context, id uuid.UUID, response string) (*ContactMessage, error) {
	if strings.TrimSpace(response) == "" {
		return nil, httperr.Validation("response is required")
	}
	m, err := s.messages.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, httperr.NotFound("contact message")
		}
		return nil, httperr.Internal(err)
	}
	m.AdminResponse = &response
	m.Status = MessageResolved
	if m.RespondedAt == nil {
		now := s.now().UTC()
		m.RespondedAt = &now
	}
	if err := s.messages.Update(ctx, m); err != nil {
		return nil, httperr.Internal(err)
	}
	return m, nil
}

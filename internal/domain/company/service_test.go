package company

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vitalab/vitalab/internal/platform/httperr"
)

type mockCompanyRepo struct {
	company *Company
}

func (m *mockCompanyRepo) Get(context.Context) (*Company, error) {
	if m.company == nil {
		return nil, pgx.ErrNoRows
	}
	cp := *m.company
	return &cp, nil
}

func (m *mockCompanyRepo) Upsert(_ context.Context, c *Company) error {
	if m.company != nil {
		c.ID = m.company.ID
		c.CreatedAt = m.company.CreatedAt
	} else {
		c.ID = uuid.New()
		c.CreatedAt = time.Now()
	}
	c.UpdatedAt = time.Now()
	cp := *c
	m.company = &cp
	return nil
}

type mockMessageRepo struct {
	messages map[uuid.UUID]*ContactMessage
}

func newMockMessageRepo() *mockMessageRepo {
	return &mockMessageRepo{messages: make(map[uuid.UUID]*ContactMessage)}
}

func (m *mockMessageRepo) Create(_ context.Context, msg *ContactMessage) error {
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now()
	msg.UpdatedAt = msg.CreatedAt
	cp := *msg
	m.messages[msg.ID] = &cp
	return nil
}

func (m *mockMessageRepo) GetByID(_ context.Context, id uuid.UUID) (*ContactMessage, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *msg
	return &cp, nil
}

func (m *mockMessageRepo) Update(_ context.Context, msg *ContactMessage) error {
	if _, ok := m.messages[msg.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *msg
	m.messages[msg.ID] = &cp
	return nil
}

func (m *mockMessageRepo) List(_ context.Context, status string, limit, offset int) ([]*ContactMessage, int, error) {
	var items []*ContactMessage
	for _, msg := range m.messages {
		if status != "" && msg.Status != status {
			continue
		}
		cp := *msg
		items = append(items, &cp)
	}
	return items, len(items), nil
}

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestCompanyService() (*Service, *mockCompanyRepo, *mockMessageRepo) {
	companies := &mockCompanyRepo{}
	messages := newMockMessageRepo()
	svc := NewService(companies, messages).WithClock(func() time.Time { return testNow })
	return svc, companies, messages
}

func wantStatus(t *testing.T, err error, status int) *httperr.Error {
	t.Helper()
	he, ok := httperr.As(err)
	if !ok {
		t.Fatalf("expected *httperr.Error, got %T: %v", err, err)
	}
	if he.Status != status {
		t.Fatalf("expected status %d, got %d (%s)", status, he.Status, he.Message)
	}
	return he
}

func validCompany() *Company {
	return &Company{
		Name:     "VitaLab Diagnostics",
		Email:    "hello@vitalab.example",
		Phone:    "+911234567890",
		Services: []string{"pathology", "home collection"},
		OperatingHours: map[string]string{
			"mon-sat": "07:00-21:00",
			"sun":     "08:00-14:00",
		},
	}
}

func TestInfo(t *testing.T) {
	svc, _, _ := newTestCompanyService()
	ctx := context.Background()

	_, err := svc.Info(ctx)
	wantStatus(t, err, http.StatusNotFound)

	if err := svc.UpdateInfo(ctx, validCompany()); err != nil {
		t.Fatalf("update info: %v", err)
	}
	info, err := svc.Info(ctx)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.Name != "VitaLab Diagnostics" {
		t.Errorf("unexpected name %s", info.Name)
	}
}

func TestUpdateInfo_KeepsIdentity(t *testing.T) {
	svc, repo, _ := newTestCompanyService()
	ctx := context.Background()

	if err := svc.UpdateInfo(ctx, validCompany()); err != nil {
		t.Fatalf("first update: %v", err)
	}
	firstID := repo.company.ID

	updated := validCompany()
	updated.Name = "VitaLab Diagnostics Pvt Ltd"
	if err := svc.UpdateInfo(ctx, updated); err != nil {
		t.Fatalf("second update: %v", err)
	}
	if repo.company.ID != firstID {
		t.Error("update must not mint a second company row")
	}
	if repo.company.Name != "VitaLab Diagnostics Pvt Ltd" {
		t.Errorf("name not updated: %s", repo.company.Name)
	}
}

func TestUpdateInfo_Validation(t *testing.T) {
	svc, _, _ := newTestCompanyService()
	ctx := context.Background()

	c := validCompany()
	c.Name = ""
	wantStatus(t, svc.UpdateInfo(ctx, c), http.StatusBadRequest)

	c = validCompany()
	c.Email = "not-an-email"
	wantStatus(t, svc.UpdateInfo(ctx, c), http.StatusBadRequest)

	c = validCompany()
	c.Phone = " "
	wantStatus(t, svc.UpdateInfo(ctx, c), http.StatusBadRequest)
}

func TestContactDetails(t *testing.T) {
	svc, _, _ := newTestCompanyService()
	ctx := context.Background()

	c := validCompany()
	city := "Mumbai"
	c.City = &city
	if err := svc.UpdateInfo(ctx, c); err != nil {
		t.Fatalf("update info: %v", err)
	}

	details, err := svc.Contact(ctx)
	if err != nil {
		t.Fatalf("contact: %v", err)
	}
	if details.Email != c.Email || details.Phone != c.Phone {
		t.Errorf("contact card mismatch: %+v", details)
	}
	if details.City == nil || *details.City != "Mumbai" {
		t.Error("address not included")
	}
	if details.OperatingHours["sun"] != "08:00-14:00" {
		t.Error("operating hours not included")
	}

	services, err := svc.Services(ctx)
	if err != nil {
		t.Fatalf("services: %v", err)
	}
	if len(services) != 2 {
		t.Errorf("expected 2 services, got %v", services)
	}
}

func validInquiry() ContactRequest {
	return ContactRequest{
		Name:    "Jane Doe",
		Email:   "jane@example.com",
		Subject: "Home collection",
		Message: "Do you collect samples in Bandra?",
	}
}

func TestSubmitContact(t *testing.T) {
	svc, _, _ := newTestCompanyService()
	ctx := context.Background()

	m, err := svc.SubmitContact(ctx, validInquiry(), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if m.Status != MessageNew {
		t.Errorf("expected new, got %s", m.Status)
	}
	if m.UserID != nil {
		t.Error("anonymous inquiry must not carry a user id")
	}

	uid := uuid.New()
	m, err = svc.SubmitContact(ctx, validInquiry(), &uid)
	if err != nil {
		t.Fatalf("submit authenticated: %v", err)
	}
	if m.UserID == nil || *m.UserID != uid {
		t.Error("authenticated inquiry must carry the sender's user id")
	}

	cases := []struct {
		name   string
		mutate func(*ContactRequest)
	}{
		{"empty name", func(r *ContactRequest) { r.Name = "" }},
		{"bad email", func(r *ContactRequest) { r.Email = "nope" }},
		{"empty subject", func(r *ContactRequest) { r.Subject = " " }},
		{"empty message", func(r *ContactRequest) { r.Message = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validInquiry()
			tc.mutate(&req)
			_, err := svc.SubmitContact(ctx, req, nil)
			wantStatus(t, err, http.StatusBadRequest)
		})
	}
}

func TestGetMessage_MarksRead(t *testing.T) {
	svc, _, repo := newTestCompanyService()
	ctx := context.Background()

	m, err := svc.SubmitContact(ctx, validInquiry(), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	got, err := svc.GetMessage(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != MessageRead {
		t.Errorf("expected read after first view, got %s", got.Status)
	}
	if repo.messages[m.ID].Status != MessageRead {
		t.Error("read status not persisted")
	}

	_, err = svc.GetMessage(ctx, uuid.New())
	wantStatus(t, err, http.StatusNotFound)
}

func TestRespond(t *testing.T) {
	svc, _, _ := newTestCompanyService()
	ctx := context.Background()

	m, err := svc.SubmitContact(ctx, validInquiry(), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = svc.Respond(ctx, m.ID, "  ")
	wantStatus(t, err, http.StatusBadRequest)

	responded, err := svc.Respond(ctx, m.ID, "Yes, Bandra is covered.")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if responded.Status != MessageResolved {
		t.Errorf("expected resolved, got %s", responded.Status)
	}
	if responded.RespondedAt == nil || !responded.RespondedAt.Equal(testNow) {
		t.Errorf("responded_at not stamped: %v", responded.RespondedAt)
	}

	// A second response updates the text but keeps the original timestamp.
	again, err := svc.Respond(ctx, m.ID, "Updated: yes, with a small fee.")
	if err != nil {
		t.Fatalf("second respond: %v", err)
	}
	if !again.RespondedAt.Equal(testNow) {
		t.Error("responded_at must not move on later responses")
	}
	if *again.AdminResponse != "Updated: yes, with a small fee." {
		t.Error("response text not updated")
	}
}

func TestUpdateMessageStatus(t *testing.T) {
	svc, _, _ := newTestCompanyService()
	ctx := context.Background()

	m, err := svc.SubmitContact(ctx, validInquiry(), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	updated, err := svc.UpdateMessageStatus(ctx, m.ID, MessageInProgress)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != MessageInProgress {
		t.Errorf("expected in_progress, got %s", updated.Status)
	}

	_, err = svc.UpdateMessageStatus(ctx, m.ID, "spam")
	wantStatus(t, err, http.StatusBadRequest)

	_, total, err := svc.ListMessages(ctx, MessageInProgress, 20, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 {
		t.Errorf("expected 1 in_progress message, got %d", total)
	}
	_, _, err = svc.ListMessages(ctx, "junk", 20, 0)
	wantStatus(t, err, http.StatusBadRequest)
}

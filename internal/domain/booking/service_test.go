package booking

import (
	"context"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vitalab/vitalab/internal/domain/catalog"
	"github.com/vitalab/vitalab/internal/platform/auth"
	"github.com/vitalab/vitalab/internal/platform/httperr"
)

type mockBookingRepo struct {
	bookings map[uuid.UUID]*Booking
	// failCreates makes the next N creates fail with a reference collision.
	failCreates int
	creates     int
}

func newMockBookingRepo() *mockBookingRepo {
	return &mockBookingRepo{bookings: make(map[uuid.UUID]*Booking)}
}

func (m *mockBookingRepo) Create(_ context.Context, b *Booking) error {
	m.creates++
	if m.failCreates > 0 {
		m.failCreates--
		return &pgconn.PgError{Code: "23505", ConstraintName: "bookings_booking_reference_key"}
	}
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *mockBookingRepo) GetByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	b, ok := m.bookings[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *b
	return &cp, nil
}

func (m *mockBookingRepo) Update(_ context.Context, b *Booking) error {
	if _, ok := m.bookings[b.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *mockBookingRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Booking, int, error) {
	var items []*Booking
	for _, b := range m.bookings {
		if f.UserID != nil && b.UserID != *f.UserID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.From != nil && b.AppointmentDate.Before(*f.From) {
			continue
		}
		if f.To != nil && b.AppointmentDate.After(*f.To) {
			continue
		}
		cp := *b
		items = append(items, &cp)
	}
	return items, len(items), nil
}

func (m *mockBookingRepo) Upcoming(_ context.Context, userID *uuid.UUID, after time.Time, limit, offset int) ([]*Booking, int, error) {
	var items []*Booking
	for _, b := range m.bookings {
		if userID != nil && b.UserID != *userID {
			continue
		}
		if b.Status != StatusPending && b.Status != StatusConfirmed {
			continue
		}
		if !b.AppointmentDate.After(after) {
			continue
		}
		cp := *b
		items = append(items, &cp)
	}
	return items, len(items), nil
}

func (m *mockBookingRepo) CountByStatus(_ context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, b := range m.bookings {
		counts[b.Status]++
	}
	return counts, nil
}

type mockCatalog struct {
	tests map[uuid.UUID]*catalog.LabTest
}

func (m *mockCatalog) Get(_ context.Context, id uuid.UUID, includeInactive bool) (*catalog.LabTest, error) {
	t, ok := m.tests[id]
	if !ok || (!t.IsActive && !includeInactive) {
		return nil, httperr.NotFound("lab test")
	}
	cp := *t
	return &cp, nil
}

func intPtr(v int) *int          { return &v }
func strPtr(v string) *string    { return &v }
func boolPtr(v bool) *bool       { return &v }
func timePtr(v time.Time) *time.Time { return &v }

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newTestBookingService(repo *mockBookingRepo) (*Service, uuid.UUID) {
	test := &catalog.LabTest{
		ID:                        uuid.New(),
		Name:                      "Complete Blood Count",
		Code:                      "CBC",
		Category:                  "hematology",
		SampleType:                "blood",
		Price:                     350,
		MinimumAge:                intPtr(5),
		MaximumAge:                intPtr(90),
		IsActive:                  true,
		IsHomeCollectionAvailable: true,
	}
	cat := &mockCatalog{tests: map[uuid.UUID]*catalog.LabTest{test.ID: test}}
	return NewService(repo, cat).WithClock(fixedClock), test.ID
}

func validRequest() CreateRequest {
	return CreateRequest{
		PatientName:     "Jane Doe",
		PatientAge:      34,
		PatientGender:   "female",
		PhoneNumber:     "+911234567890",
		AppointmentDate: testNow.Add(48 * time.Hour),
	}
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

func TestNewReference(t *testing.T) {
	pattern := regexp.MustCompile(`^BK[A-Z0-9]{6}$`)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		ref := NewReference()
		if !pattern.MatchString(ref) {
			t.Fatalf("reference %q does not match BK[A-Z0-9]{6}", ref)
		}
		seen[ref] = true
	}
	if len(seen) < 90 {
		t.Errorf("expected mostly unique references, got %d unique out of 100", len(seen))
	}
}

func TestAppendReferenceChars_UniformSampling(t *testing.T) {
	// Bytes at or above maxUniformByte must be rejected, not wrapped around:
	// wrapping would skew references toward the first charset characters.
	got := appendReferenceChars(nil, []byte{252, 253, 254, 255}, 6)
	if len(got) != 0 {
		t.Errorf("expected bytes >= %d rejected, got %q", maxUniformByte, got)
	}

	got = appendReferenceChars(nil, []byte{0, 35, 36, 251, 255, 1}, 6)
	if string(got) != "A9A9B" {
		t.Errorf("expected A9A9B, got %q", got)
	}

	// Stops once n characters are collected.
	got = appendReferenceChars(nil, []byte{0, 1, 2, 3}, 2)
	if string(got) != "AB" {
		t.Errorf("expected AB, got %q", got)
	}

	// Every charset character must be reachable.
	chars := make(map[byte]bool)
	for i := 0; i < maxUniformByte; i++ {
		out := appendReferenceChars(nil, []byte{byte(i)}, 1)
		if len(out) != 1 {
			t.Fatalf("byte %d below the rejection bound must map to a character", i)
		}
		chars[out[0]] = true
	}
	if len(chars) != len(referenceCharset) {
		t.Errorf("expected all %d charset characters reachable, got %d", len(referenceCharset), len(chars))
	}
}

func TestCreate(t *testing.T) {
	repo := newMockBookingRepo()
	svc, testID := newTestBookingService(repo)
	userID := uuid.New()

	b, err := svc.Create(context.Background(), userID, testID, validRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Status != StatusPending {
		t.Errorf("expected pending, got %s", b.Status)
	}
	if !regexp.MustCompile(`^BK[A-Z0-9]{6}$`).MatchString(b.BookingReference) {
		t.Errorf("bad reference %q", b.BookingReference)
	}
	if b.UserID != userID || b.LabTestID != testID {
		t.Errorf("ownership not recorded: %+v", b)
	}
}

func TestCreate_ReferenceCollisionRetry(t *testing.T) {
	repo := newMockBookingRepo()
	svc, testID := newTestBookingService(repo)

	repo.failCreates = 2
	b, err := svc.Create(context.Background(), uuid.New(), testID, validRequest())
	if err != nil {
		t.Fatalf("create after collisions: %v", err)
	}
	if repo.creates != 3 {
		t.Errorf("expected 3 attempts, got %d", repo.creates)
	}
	if b.ID == uuid.Nil {
		t.Error("booking not persisted")
	}

	repo.failCreates = 10
	repo.creates = 0
	_, err = svc.Create(context.Background(), uuid.New(), testID, validRequest())
	wantStatus(t, err, http.StatusInternalServerError)
	if repo.creates != referenceAttempts {
		t.Errorf("expected exactly %d attempts, got %d", referenceAttempts, repo.creates)
	}
}

func TestCreate_Rules(t *testing.T) {
	svc, testID := newTestBookingService(newMockBookingRepo())
	ctx := context.Background()
	userID := uuid.New()

	cases := []struct {
		name   string
		mutate func(*CreateRequest)
		status int
	}{
		{"past appointment", func(r *CreateRequest) { r.AppointmentDate = testNow.Add(-time.Hour) }, http.StatusBadRequest},
		{"appointment exactly now", func(r *CreateRequest) { r.AppointmentDate = testNow }, http.StatusBadRequest},
		{"empty patient name", func(r *CreateRequest) { r.PatientName = " " }, http.StatusBadRequest},
		{"bad gender", func(r *CreateRequest) { r.PatientGender = "unknown" }, http.StatusBadRequest},
		{"negative age", func(r *CreateRequest) { r.PatientAge = -1 }, http.StatusBadRequest},
		{"below minimum age", func(r *CreateRequest) { r.PatientAge = 3 }, http.StatusUnprocessableEntity},
		{"above maximum age", func(r *CreateRequest) { r.PatientAge = 95 }, http.StatusUnprocessableEntity},
		{"home collection without address", func(r *CreateRequest) { r.HomeCollection = true }, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			_, err := svc.Create(ctx, userID, testID, req)
			wantStatus(t, err, tc.status)
		})
	}

	_, err := svc.Create(ctx, userID, uuid.New(), validRequest())
	wantStatus(t, err, http.StatusNotFound)
}

func TestCreate_HomeCollectionUnavailable(t *testing.T) {
	repo := newMockBookingRepo()
	test := &catalog.LabTest{
		ID: uuid.New(), Name: "MRI", Code: "MRI", Category: "radiology",
		SampleType: "none", Price: 4000, IsActive: true,
	}
	cat := &mockCatalog{tests: map[uuid.UUID]*catalog.LabTest{test.ID: test}}
	svc := NewService(repo, cat).WithClock(fixedClock)

	req := validRequest()
	req.HomeCollection = true
	req.Address = strPtr("12 Park Street")
	_, err := svc.Create(context.Background(), uuid.New(), test.ID, req)
	he := wantStatus(t, err, http.StatusUnprocessableEntity)
	if he.Code != httperr.CodeBusinessRule {
		t.Errorf("expected BUSINESS_LOGIC_ERROR, got %s", he.Code)
	}
}

func TestTransitionTable(t *testing.T) {
	statuses := []string{StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow}
	allowed := map[string]map[string]bool{
		StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
		StatusConfirmed: {StatusCompleted: true, StatusCancelled: true, StatusNoShow: true},
	}
	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[from][to]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestUpdateStatus(t *testing.T) {
	repo := newMockBookingRepo()
	svc, testID := newTestBookingService(repo)
	ctx := context.Background()

	b, err := svc.Create(ctx, uuid.New(), testID, validRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Illegal edge leaves the booking unchanged.
	_, err = svc.UpdateStatus(ctx, b.ID, StatusCompleted, nil)
	he := wantStatus(t, err, http.StatusUnprocessableEntity)
	if he.Message != "cannot transition booking from pending to completed" {
		t.Errorf("unexpected message %q", he.Message)
	}
	stored, _ := repo.GetByID(ctx, b.ID)
	if stored.Status != StatusPending {
		t.Errorf("failed transition must not change status, got %s", stored.Status)
	}

	_, err = svc.UpdateStatus(ctx, b.ID, "shipped", nil)
	wantStatus(t, err, http.StatusBadRequest)

	confirmed, err := svc.UpdateStatus(ctx, b.ID, StatusConfirmed, strPtr("sample kit dispatched"))
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.AdminNotes == nil || *confirmed.AdminNotes != "sample kit dispatched" {
		t.Error("admin notes not recorded")
	}

	completed, err := svc.UpdateStatus(ctx, b.ID, StatusCompleted, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.CompletedAt == nil || !completed.CompletedAt.Equal(testNow) {
		t.Errorf("expected completed_at %v, got %v", testNow, completed.CompletedAt)
	}

	_, err = svc.UpdateStatus(ctx, b.ID, StatusCancelled, nil)
	wantStatus(t, err, http.StatusUnprocessableEntity)
}

func TestCancel(t *testing.T) {
	repo := newMockBookingRepo()
	svc, testID := newTestBookingService(repo)
	ctx := context.Background()
	userID := uuid.New()

	b, err := svc.Create(ctx, userID, testID, validRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cancelled, err := svc.Cancel(ctx, b.ID, userID, auth.RoleUser, strPtr("travelling"))
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", cancelled.Status)
	}
	if cancelled.CancelledAt == nil || cancelled.CancellationReason == nil {
		t.Error("cancellation metadata not stamped")
	}

	_, err = svc.Cancel(ctx, b.ID, userID, auth.RoleUser, nil)
	wantStatus(t, err, http.StatusUnprocessableEntity)
}

func TestCancel_PastAppointment(t *testing.T) {
	repo := newMockBookingRepo()
	svc, testID := newTestBookingService(repo)
	ctx := context.Background()
	userID := uuid.New()

	b, err := svc.Create(ctx, userID, testID, validRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Appointment slips into the past.
	stored := repo.bookings[b.ID]
	stored.AppointmentDate = testNow.Add(-time.Hour)

	_, err = svc.Cancel(ctx, b.ID, userID, auth.RoleUser, nil)
	he := wantStatus(t, err, http.StatusUnprocessableEntity)
	if he.Code != httperr.CodeBusinessRule {
		t.Errorf("expected BUSINESS_LOGIC_ERROR, got %s", he.Code)
	}
}

func TestGet_Visibility(t *testing.T) {
	repo := newMockBookingRepo()
	svc, testID := newTestBookingService(repo)
	ctx := context.Background()
	owner := uuid.New()
	stranger := uuid.New()

	b, err := svc.Create(ctx, owner, testID, validRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Get(ctx, b.ID, owner, auth.RoleUser); err != nil {
		t.Errorf("owner get: %v", err)
	}
	if _, err := svc.Get(ctx, b.ID, stranger, auth.RoleLabTechnician); err != nil {
		t.Errorf("staff get: %v", err)
	}
	_, err = svc.Get(ctx, b.ID, stranger, auth.RoleUser)
	wantStatus(t, err, http.StatusNotFound)
}

func TestList_ScopedToOwner(t *testing.T) {
	repo := newMockBookingRepo()
	svc, testID := newTestBookingService(repo)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	for _, uid := range []uuid.UUID{alice, alice, bob} {
		if _, err := svc.Create(ctx, uid, testID, validRequest()); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	_, total, err := svc.List(ctx, alice, auth.RoleUser, Filter{}, 20, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 {
		t.Errorf("expected alice to see 2 bookings, got %d", total)
	}

	// A plain user cannot widen the filter to another user.
	_, total, err = svc.List(ctx, alice, auth.RoleUser, Filter{UserID: &bob}, 20, 0)
	if err != nil {
		t.Fatalf("list with foreign filter: %v", err)
	}
	if total != 2 {
		t.Errorf("expected foreign filter to be overridden, got %d", total)
	}

	_, total, err = svc.List(ctx, alice, auth.RoleAdmin, Filter{}, 20, 0)
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if total != 3 {
		t.Errorf("expected admin to see 3 bookings, got %d", total)
	}
}

func TestUpdate(t *testing.T) {
	repo := newMockBookingRepo()
	svc, testID := newTestBookingService(repo)
	ctx := context.Background()
	userID := uuid.New()

	b, err := svc.Create(ctx, userID, testID, validRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.Update(ctx, b.ID, userID, auth.RoleUser, UpdateRequest{
		PatientAge:      intPtr(40),
		AppointmentDate: timePtr(testNow.Add(72 * time.Hour)),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.PatientAge != 40 {
		t.Errorf("expected age 40, got %d", updated.PatientAge)
	}
	if updated.Status != StatusPending {
		t.Errorf("patch must not change status, got %s", updated.Status)
	}

	_, err = svc.Update(ctx, b.ID, userID, auth.RoleUser, UpdateRequest{PatientAge: intPtr(2)})
	wantStatus(t, err, http.StatusUnprocessableEntity)

	_, err = svc.Update(ctx, b.ID, userID, auth.RoleUser, UpdateRequest{
		HomeCollection: boolPtr(true),
	})
	wantStatus(t, err, http.StatusBadRequest)

	if _, err := svc.Cancel(ctx, b.ID, userID, auth.RoleUser, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err = svc.Update(ctx, b.ID, userID, auth.RoleUser, UpdateRequest{PatientAge: intPtr(41)})
	wantStatus(t, err, http.StatusUnprocessableEntity)
}

func TestStats(t *testing.T) {
	repo := newMockBookingRepo()
	svc, testID := newTestBookingService(repo)
	ctx := context.Background()

	b1, _ := svc.Create(ctx, uuid.New(), testID, validRequest())
	if _, err := svc.Create(ctx, uuid.New(), testID, validRequest()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, b1.ID, StatusConfirmed, nil); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	counts, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if counts[StatusPending] != 1 || counts[StatusConfirmed] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}
	for _, status := range []string{StatusCompleted, StatusCancelled, StatusNoShow} {
		if n, ok := counts[status]; !ok || n != 0 {
			t.Errorf("expected zero entry for %s, got %v present=%v", status, n, ok)
		}
	}
}

package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitalab/vitalab/internal/domain/booking"
	"github.com/vitalab/vitalab/internal/domain/catalog"
	"github.com/vitalab/vitalab/internal/domain/identity"
	"github.com/vitalab/vitalab/internal/platform/auth"
)

// seedPassword is shared by every generated demo account.
const seedPassword = "passw0rd1"

var seedCategories = map[string][]struct {
	name       string
	sampleType string
}{
	"hematology": {
		{"Complete Blood Count", "blood"},
		{"ESR", "blood"},
		{"Coagulation Profile", "blood"},
		{"Reticulocyte Count", "blood"},
	},
	"biochemistry": {
		{"Lipid Profile", "blood"},
		{"Liver Function Test", "blood"},
		{"Kidney Function Test", "blood"},
		{"HbA1c", "blood"},
	},
	"microbiology": {
		{"Urine Culture", "urine"},
		{"Blood Culture", "blood"},
		{"Throat Swab Culture", "swab"},
	},
	"serology": {
		{"Vitamin D", "blood"},
		{"Vitamin B12", "blood"},
		{"Thyroid Profile", "blood"},
		{"CRP", "blood"},
	},
}

// runSeed fills the database with plausible demo data: an admin and a lab
// technician account, regular users, a lab test catalog, and bookings spread
// around the current date. Every account's password is "passw0rd1".
func runSeed(ctx context.Context, pool *pgxpool.Pool, userCount, testCount, bookingCount int) error {
	faker := gofakeit.New(0)
	userRepo := identity.NewUserRepoPG(pool)
	testRepo := catalog.NewLabTestRepoPG(pool)
	bookingRepo := booking.NewBookingRepoPG(pool)

	hash, err := auth.HashPassword(seedPassword)
	if err != nil {
		return err
	}

	staff := []struct {
		username string
		role     string
	}{
		{"admin", auth.RoleAdmin},
		{"lab_tech", auth.RoleLabTechnician},
	}
	for _, s := range staff {
		u := &identity.User{
			Username:     s.username,
			Email:        s.username + "@vitalab.example",
			PasswordHash: hash,
			Role:         s.role,
			IsActive:     true,
			IsVerified:   true,
		}
		if err := userRepo.Create(ctx, u); err != nil {
			return fmt.Errorf("seed %s: %w", s.username, err)
		}
	}

	var userIDs []uuid.UUID
	for i := 0; i < userCount; i++ {
		first := faker.FirstName()
		last := faker.LastName()
		phone := faker.Phone()
		u := &identity.User{
			Username:     fmt.Sprintf("%s%s%d", first, last, i),
			Email:        fmt.Sprintf("%s.%s%d@%s", first, last, i, faker.DomainName()),
			PasswordHash: hash,
			FirstName:    &first,
			LastName:     &last,
			PhoneNumber:  &phone,
			Role:         auth.RoleUser,
			IsActive:     true,
			IsVerified:   faker.Bool(),
		}
		if err := userRepo.Create(ctx, u); err != nil {
			return fmt.Errorf("seed user %d: %w", i, err)
		}
		userIDs = append(userIDs, u.ID)
	}
	fmt.Printf("Seeded %d users (password %q).\n", userCount+len(staff), seedPassword)

	var testIDs []uuid.UUID
	seeded := 0
	for category, entries := range seedCategories {
		for _, entry := range entries {
			if seeded >= testCount {
				break
			}
			desc := faker.Sentence(12)
			minAge := 0
			t := &catalog.LabTest{
				Name:                      entry.name,
				Code:                      fmt.Sprintf("T%03d", seeded+1),
				Description:               &desc,
				Category:                  category,
				SampleType:                entry.sampleType,
				Price:                     float64(faker.Number(150, 5000)),
				DurationMinutes:           faker.Number(10, 60),
				ReportDeliveryHours:       faker.Number(4, 72),
				IsActive:                  true,
				IsHomeCollectionAvailable: faker.Bool(),
				MinimumAge:                &minAge,
			}
			if err := testRepo.Create(ctx, t); err != nil {
				return fmt.Errorf("seed lab test %s: %w", entry.name, err)
			}
			testIDs = append(testIDs, t.ID)
			seeded++
		}
	}
	fmt.Printf("Seeded %d lab tests.\n", seeded)

	if len(userIDs) == 0 || len(testIDs) == 0 {
		return nil
	}
	genders := []string{"male", "female", "other"}
	for i := 0; i < bookingCount; i++ {
		b := &booking.Booking{
			BookingReference: booking.NewReference(),
			UserID:           userIDs[rand.Intn(len(userIDs))],
			LabTestID:        testIDs[rand.Intn(len(testIDs))],
			PatientName:      faker.Name(),
			PatientAge:       faker.Number(1, 90),
			PatientGender:    genders[rand.Intn(len(genders))],
			PhoneNumber:      faker.Phone(),
			AppointmentDate:  time.Now().Add(time.Duration(faker.Number(12, 24*14)) * time.Hour),
			HomeCollection:   false,
			Status:           booking.StatusPending,
		}
		if err := bookingRepo.Create(ctx, b); err != nil {
			return fmt.Errorf("seed booking %d: %w", i, err)
		}
	}
	fmt.Printf("Seeded %d bookings.\n", bookingCount)
	return nil
}

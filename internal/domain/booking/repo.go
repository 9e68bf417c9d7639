package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type BookingRepository interface {
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	Update(ctx context.Context, b *Booking) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Booking, int, error)
	// Upcoming lists pending and confirmed bookings with appointments after
	// the given instant, soonest first.
	Upcoming(ctx context.Context, userID *uuid.UUID, after time.Time, limit, offset int) ([]*Booking, int, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}

package appointment

import (
	"context"
	"net/url"

	"github.com/clinsys/clinsys/internal/platform/listsync"
)

type AppointmentRepository interface {
	List(ctx context.Context, query url.Values) (listsync.Collection[Appointment], error)
	Get(ctx context.Context, id int64) (*Appointment, error)
	Create(ctx context.Context, a *Appointment) error
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id int64) error
}

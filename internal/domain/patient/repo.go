package patient

import (
	"context"
	"net/url"

	"github.com/clinsys/clinsys/internal/platform/listsync"
)

type PatientRepository interface {
	List(ctx context.Context, query url.Values) (listsync.Collection[Patient], error)
	Get(ctx context.Context, id int64) (*Patient, error)
	Create(ctx context.Context, p *Patient) error
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id int64) error
}

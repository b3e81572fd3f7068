package evolution

import (
	"context"
	"net/url"

	"github.com/clinsys/clinsys/internal/platform/listsync"
)

type EvolutionRepository interface {
	ListByPatient(ctx context.Context, patientID int64, query url.Values) (listsync.Collection[Evolution], error)
	Get(ctx context.Context, id int64) (*Evolution, error)
	Create(ctx context.Context, e *Evolution) error
	Update(ctx context.Context, e *Evolution) error
	Delete(ctx context.Context, id int64) error
}

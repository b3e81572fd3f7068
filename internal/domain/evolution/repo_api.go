package evolution

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/clinsys/clinsys/internal/platform/gateway"
	"github.com/clinsys/clinsys/internal/platform/listsync"
)

const basePath = "/evolutions"

type evolutionRepoAPI struct {
	api gateway.Doer
}

// NewEvolutionRepoAPI returns a repository backed by the REST backend.
func NewEvolutionRepoAPI(api gateway.Doer) EvolutionRepository {
	return &evolutionRepoAPI{api: api}
}

func (r *evolutionRepoAPI) ListByPatient(ctx context.Context, patientID int64, query url.Values) (listsync.Collection[Evolution], error) {
	path := fmt.Sprintf("%s/patient/%d", basePath, patientID)
	resp, err := r.api.Do(ctx, path, gateway.Options{Method: http.MethodGet, Query: query})
	if err != nil {
		return nil, fmt.Errorf("list evolutions of patient %d: %w", patientID, err)
	}
	return listsync.Decode[Evolution](resp.JSON)
}

func (r *evolutionRepoAPI) Get(ctx context.Context, id int64) (*Evolution, error) {
	resp, err := r.api.Do(ctx, itemPath(id), gateway.Options{Method: http.MethodGet})
	if err != nil {
		return nil, fmt.Errorf("get evolution %d: %w", id, err)
	}
	e, err := gateway.DecodeJSON[Evolution](resp)
	if err != nil {
		return nil, fmt.Errorf("get evolution %d: %w", id, err)
	}
	return &e, nil
}

func (r *evolutionRepoAPI) Create(ctx context.Context, e *Evolution) error {
	resp, err := r.api.Do(ctx, basePath, gateway.Options{Method: http.MethodPost, Body: e})
	if err != nil {
		return fmt.Errorf("create evolution: %w", err)
	}
	return decodeInto(resp, e)
}

func (r *evolutionRepoAPI) Update(ctx context.Context, e *Evolution) error {
	resp, err := r.api.Do(ctx, itemPath(e.ID), gateway.Options{Method: http.MethodPut, Body: e})
	if err != nil {
		return fmt.Errorf("update evolution %d: %w", e.ID, err)
	}
	return decodeInto(resp, e)
}

func (r *evolutionRepoAPI) Delete(ctx context.Context, id int64) error {
	if _, err := r.api.Do(ctx, itemPath(id), gateway.Options{Method: http.MethodDelete}); err != nil {
		return fmt.Errorf("delete evolution %d: %w", id, err)
	}
	return nil
}

func itemPath(id int64) string {
	return fmt.Sprintf("%s/%d", basePath, id)
}

func decodeInto(resp *gateway.Response, e *Evolution) error {
	if len(resp.JSON) == 0 {
		return nil
	}
	id, patientID := e.ID, e.PatientID
	if err := resp.Decode(e); err != nil {
		return fmt.Errorf("decode saved evolution: %w", err)
	}
	if e.ID == 0 {
		e.ID = id
	}
	if e.PatientID == 0 {
		e.PatientID = patientID
	}
	return nil
}

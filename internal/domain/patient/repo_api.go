package patient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/clinsys/clinsys/internal/platform/gateway"
	"github.com/clinsys/clinsys/internal/platform/listsync"
)

const basePath = "/patients"

type patientRepoAPI struct {
	api gateway.Doer
}

// NewPatientRepoAPI returns a repository backed by the REST backend.
func NewPatientRepoAPI(api gateway.Doer) PatientRepository {
	return &patientRepoAPI{api: api}
}

func (r *patientRepoAPI) List(ctx context.Context, query url.Values) (listsync.Collection[Patient], error) {
	resp, err := r.api.Do(ctx, basePath, gateway.Options{Method: http.MethodGet, Query: query})
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return listsync.Decode[Patient](resp.JSON)
}

func (r *patientRepoAPI) Get(ctx context.Context, id int64) (*Patient, error) {
	resp, err := r.api.Do(ctx, itemPath(id), gateway.Options{Method: http.MethodGet})
	if err != nil {
		return nil, fmt.Errorf("get patient %d: %w", id, err)
	}
	p, err := gateway.DecodeJSON[Patient](resp)
	if err != nil {
		return nil, fmt.Errorf("get patient %d: %w", id, err)
	}
	return &p, nil
}

func (r *patientRepoAPI) Create(ctx context.Context, p *Patient) error {
	resp, err := r.api.Do(ctx, basePath, gateway.Options{Method: http.MethodPost, Body: p})
	if err != nil {
		return fmt.Errorf("create patient: %w", err)
	}
	return decodeInto(resp, p)
}

func (r *patientRepoAPI) Update(ctx context.Context, p *Patient) error {
	resp, err := r.api.Do(ctx, itemPath(p.ID), gateway.Options{Method: http.MethodPut, Body: p})
	if err != nil {
		return fmt.Errorf("update patient %d: %w", p.ID, err)
	}
	return decodeInto(resp, p)
}

func (r *patientRepoAPI) Delete(ctx context.Context, id int64) error {
	if _, err := r.api.Do(ctx, itemPath(id), gateway.Options{Method: http.MethodDelete}); err != nil {
		return fmt.Errorf("delete patient %d: %w", id, err)
	}
	return nil
}

func itemPath(id int64) string {
	return fmt.Sprintf("%s/%d", basePath, id)
}

// decodeInto refreshes p from the saved record when the backend echoes it.
func decodeInto(resp *gateway.Response, p *Patient) error {
	if len(resp.JSON) == 0 {
		return nil
	}
	id := p.ID
	if err := resp.Decode(p); err != nil {
		return fmt.Errorf("decode saved patient: %w", err)
	}
	if p.ID == 0 {
		p.ID = id
	}
	return nil
}

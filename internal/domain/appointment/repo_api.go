package appointment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/clinsys/clinsys/internal/platform/gateway"
	"github.com/clinsys/clinsys/internal/platform/listsync"
)

const basePath = "/appointments"

type appointmentRepoAPI struct {
	api gateway.Doer
}

// NewAppointmentRepoAPI returns a repository backed by the REST backend.
func NewAppointmentRepoAPI(api gateway.Doer) AppointmentRepository {
	return &appointmentRepoAPI{api: api}
}

func (r *appointmentRepoAPI) List(ctx context.Context, query url.Values) (listsync.Collection[Appointment], error) {
	resp, err := r.api.Do(ctx, basePath, gateway.Options{Method: http.MethodGet, Query: query})
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return listsync.Decode[Appointment](resp.JSON)
}

func (r *appointmentRepoAPI) Get(ctx context.Context, id int64) (*Appointment, error) {
	resp, err := r.api.Do(ctx, fmt.Sprintf("%s/%d", basePath, id), gateway.Options{Method: http.MethodGet})
	if err != nil {
		return nil, fmt.Errorf("get appointment %d: %w", id, err)
	}
	a, err := gateway.DecodeJSON[Appointment](resp)
	if err != nil {
		return nil, fmt.Errorf("get appointment %d: %w", id, err)
	}
	return &a, nil
}

func (r *appointmentRepoAPI) Create(ctx context.Context, a *Appointment) error {
	resp, err := r.api.Do(ctx, basePath, gateway.Options{Method: http.MethodPost, Body: a})
	if err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return refresh(resp, a)
}

func (r *appointmentRepoAPI) Update(ctx context.Context, a *Appointment) error {
	resp, err := r.api.Do(ctx, fmt.Sprintf("%s/%d", basePath, a.ID), gateway.Options{Method: http.MethodPut, Body: a})
	if err != nil {
		return fmt.Errorf("update appointment %d: %w", a.ID, err)
	}
	return refresh(resp, a)
}

func (r *appointmentRepoAPI) Delete(ctx context.Context, id int64) error {
	if _, err := r.api.Do(ctx, fmt.Sprintf("%s/%d", basePath, id), gateway.Options{Method: http.MethodDelete}); err != nil {
		return fmt.Errorf("delete appointment %d: %w", id, err)
	}
	return nil
}

func refresh(resp *gateway.Response, a *Appointment) error {
	if len(resp.JSON) == 0 {
		return nil
	}
	saved, err := gateway.DecodeJSON[Appointment](resp)
	if err != nil {
		return fmt.Errorf("decode saved appointment: %w", err)
	}
	if saved.ID == 0 {
		saved.ID = a.ID
	}
	*a = saved
	return nil
}

package web

import (
	"bytes"
	"strings"
	"testing"

	"github.com/clinsys/clinsys/internal/platform/form"
	"github.com/clinsys/clinsys/internal/platform/render"
	"github.com/clinsys/clinsys/internal/platform/ui"
)

func TestRenderer_Form(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	page := &ui.Page{
		Title: "New appointment",
		User:  "Dr. Lima",
		CSRF:  "tok",
		Fields: []form.Field{
			{Name: "date", Label: "Date", Type: "date", Value: "2025-01-05", Required: true},
			{Name: "status", Label: "Status", Type: "select", Options: []string{"AGENDADA", "CANCELADA"}, Value: "CANCELADA"},
			{Name: "description", Label: "Description", Type: "textarea", Value: "</textarea><script>"},
			{Name: "patientName", Label: "Patient", Type: "readonly", Value: "Ana"},
			{Name: "page", Type: "hidden", Value: "0"},
		},
		Action: "/appointments/new",
		Cancel: "/appointments",
	}
	var buf bytes.Buffer
	if err := r.Render(&buf, ui.FormTemplate, page, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		`<input type="date" name="date" value="2025-01-05" required>`,
		`<option value="CANCELADA" selected>`,
		`<output name="patientName">Ana</output>`,
		`name="_csrf" value="tok"`,
		`action="/appointments/new"`,
		"&lt;/textarea&gt;&lt;script&gt;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %s", want)
		}
	}
}

func TestRenderer_ListWithoutTable(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	page := &ui.Page{Title: "Patients", Alerts: []ui.Message{{Kind: ui.Danger, Text: "Failed to load patients."}}}
	if err := r.Render(&buf, ui.ListTemplate, page, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), `<div class="alert alert-danger" role="alert">Failed to load patients.</div>`) {
		t.Errorf("expected the alert, got %s", buf.String())
	}
}

func TestRenderer_ListWithTable(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	page := &ui.Page{Title: "Patients", Create: "/patients/new"}
	page.WithTable(render.Table{Headers: []string{"Name"}, Empty: "No patients found."})
	var buf bytes.Buffer
	if err := r.Render(&buf, ui.ListTemplate, page, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "No patients found.") || !strings.Contains(buf.String(), `href="/patients/new"`) {
		t.Errorf("unexpected output %s", buf.String())
	}
}

func TestRenderer_UnknownTemplate(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Render(&bytes.Buffer{}, "nope", &ui.Page{}, nil); err == nil {
		t.Error("expected an error")
	}
}

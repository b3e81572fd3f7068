package evolution

import (
	"strconv"
	"strings"

	"github.com/clinsys/clinsys/internal/platform/form"
)

// Party is an embedded reference to a patient or author.
type Party struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Evolution is a clinical progress note attached to a patient.
type Evolution struct {
	ID            int64  `json:"id,omitempty"`
	Content       string `json:"content"`
	PatientID     int64  `json:"patientId,omitempty"`
	AppointmentID *int64 `json:"appointmentId"`
	AuthorName    string `json:"authorName,omitempty"`
	UserName      string `json:"userName,omitempty"`
	Author        *Party `json:"author,omitempty"`
	User          *Party `json:"user,omitempty"`
	Patient       *Party `json:"patient,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

func (e Evolution) RowID() int64 { return e.ID }

// RowName is the author; the name filter searches by who wrote the note.
func (e Evolution) RowName() string { return e.AuthorName }

func (e Evolution) Field(name string) string {
	switch name {
	case "id":
		return strconv.FormatInt(e.ID, 10)
	case "content":
		return e.Content
	case "patientId":
		return strconv.FormatInt(e.PatientID, 10)
	case "appointmentId":
		if e.AppointmentID == nil {
			return ""
		}
		return strconv.FormatInt(*e.AppointmentID, 10)
	case "authorName":
		return e.AuthorName
	case "createdAt":
		return e.CreatedAt
	case "updatedAt":
		return e.UpdatedAt
	}
	return ""
}

// Normalize resolves the author name from whichever shape the backend sent
// and the patient id from an embedded patient.
func Normalize(e Evolution) Evolution {
	if e.AuthorName == "" {
		switch {
		case e.UserName != "":
			e.AuthorName = e.UserName
		case e.Author != nil && e.Author.Name != "":
			e.AuthorName = e.Author.Name
		case e.User != nil:
			e.AuthorName = e.User.Name
		}
	}
	if e.PatientID == 0 && e.Patient != nil {
		e.PatientID = e.Patient.ID
	}
	return e
}

func (e *Evolution) Validate() error {
	if strings.TrimSpace(e.Content) == "" {
		return form.Invalid("content", "Content is required.")
	}
	if e.PatientID <= 0 {
		return form.Invalid("patientId", "Enter a valid patient ID.")
	}
	if e.AppointmentID != nil && *e.AppointmentID <= 0 {
		return form.Invalid("appointmentId", "Enter a valid appointment ID.")
	}
	return nil
}

// FromForm builds a note for patientID from a submitted form.
func FromForm(v form.Values, patientID int64) (*Evolution, error) {
	e := &Evolution{Content: v.String("content"), PatientID: patientID}
	id, err := v.Int64("appointmentId")
	if err != nil {
		return e, form.Invalid("appointmentId", "Enter a valid appointment ID.")
	}
	e.AppointmentID = id
	return e, nil
}

func Fields() []form.Field {
	return []form.Field{
		{Name: "content", Label: "Content", Type: "textarea", Required: true},
		{Name: "appointmentId", Label: "Appointment ID", Type: "number"},
	}
}

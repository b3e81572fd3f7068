package appointment

import (
	"strconv"
	"strings"

	"github.com/clinsys/clinsys/internal/platform/form"
)

// StatusScheduled is the status of a newly booked appointment.
const StatusScheduled = "AGENDADA"

// Statuses offered by the edit form. The backend owns the full set.
var Statuses = []string{StatusScheduled, "CONFIRMADA", "REALIZADA", "CANCELADA"}

// Party is an embedded reference to a patient or provider.
type Party struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Appointment is the backend's appointment record. The patient and
// provider may arrive as ids with denormalized names or as embedded
// objects; Normalize folds both into the flat fields.
type Appointment struct {
	ID          int64   `json:"id,omitempty"`
	Date        string  `json:"date"`
	Time        string  `json:"time"`
	Description *string `json:"description"`
	Status      string  `json:"status"`
	Paid        bool    `json:"paid"`
	PatientID   int64   `json:"patientId,omitempty"`
	PatientName string  `json:"patientName,omitempty"`
	Patient     *Party  `json:"patient,omitempty"`
	UserID      int64   `json:"userId,omitempty"`
	UserName    string  `json:"userName,omitempty"`
	User        *Party  `json:"user,omitempty"`
}

func (a Appointment) RowID() int64 { return a.ID }

// RowName is the patient's name; the name filter searches by patient.
func (a Appointment) RowName() string { return a.PatientName }

func (a Appointment) Field(name string) string {
	switch name {
	case "id":
		return strconv.FormatInt(a.ID, 10)
	case "date":
		return a.Date
	case "time":
		return a.Time
	case "description":
		if a.Description == nil {
			return ""
		}
		return *a.Description
	case "status":
		return a.Status
	case "paid":
		return strconv.FormatBool(a.Paid)
	case "patientId":
		return idString(a.PatientID)
	case "patientName":
		return a.PatientName
	case "userId":
		return idString(a.UserID)
	case "userName":
		return a.UserName
	}
	return ""
}

// Normalize resolves the display names and ids from embedded references
// and trims a timestamped date to its calendar date.
func Normalize(a Appointment) Appointment {
	if a.Patient != nil {
		if a.PatientName == "" {
			a.PatientName = a.Patient.Name
		}
		if a.PatientID == 0 {
			a.PatientID = a.Patient.ID
		}
	}
	if a.User != nil {
		if a.UserName == "" {
			a.UserName = a.User.Name
		}
		if a.UserID == 0 {
			a.UserID = a.User.ID
		}
	}
	a.Date, _, _ = strings.Cut(a.Date, "T")
	return a
}

// Validate applies the checks made before anything is sent.
func (a *Appointment) Validate() error {
	if strings.TrimSpace(a.Date) == "" || strings.TrimSpace(a.Time) == "" {
		return form.Invalid("date", "Date and time are required.")
	}
	if a.PatientID <= 0 {
		return form.Invalid("patientId", "Enter a valid patient ID.")
	}
	if a.UserID <= 0 {
		return form.Invalid("userId", "Enter a valid user (doctor) ID.")
	}
	return nil
}

// FromForm builds an appointment from a submitted edit form. The ids must be
// positive integers; status defaults to scheduled.
func FromForm(v form.Values) (*Appointment, error) {
	a := &Appointment{
		Date:        v.String("date"),
		Time:        v.String("time"),
		Description: v.Ptr("description"),
		Status:      v.String("status"),
		Paid:        v.Bool("paid"),
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if a.Date == "" || a.Time == "" {
		return a, form.Invalid("date", "Date and time are required.")
	}

	patientID, err := parseID(v.String("patientId"))
	if err != nil {
		return a, form.Invalid("patientId", "Enter a valid patient ID.")
	}
	a.PatientID = patientID

	userID, err := parseID(v.String("userId"))
	if err != nil {
		return a, form.Invalid("userId", "Enter a valid user (doctor) ID.")
	}
	a.UserID = userID
	return a, nil
}

// Fields is the edit form layout.
func Fields() []form.Field {
	return []form.Field{
		{Name: "date", Label: "Date", Type: "date", Required: true},
		{Name: "time", Label: "Time", Type: "time", Required: true},
		{Name: "description", Label: "Description", Type: "textarea"},
		{Name: "status", Label: "Status", Type: "select", Options: Statuses, Value: StatusScheduled},
		{Name: "paid", Label: "Paid", Type: "select", Options: []string{"false", "true"}, Value: "false"},
		{Name: "patientId", Label: "Patient ID", Type: "number", Required: true},
		{Name: "patientName", Label: "Patient", Type: "readonly"},
		{Name: "userId", Label: "Doctor (user ID)", Type: "number", Required: true},
	}
}

func parseID(s string) (int64, error) {
	if !form.IsPositiveInt(s) {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

func idString(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

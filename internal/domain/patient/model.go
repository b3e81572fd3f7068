package patient

import (
	"strconv"
	"strings"
	"time"

	"github.com/clinsys/clinsys/internal/platform/form"
)

// Patient is the backend's patient record. Optional fields are sent as null
// when blank.
type Patient struct {
	ID        int64   `json:"id,omitempty"`
	Name      string  `json:"name"`
	CPF       *string `json:"cpf"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	BirthDate *string `json:"birthDate"`
	Gender    *string `json:"gender"`
}

func (p Patient) RowID() int64    { return p.ID }
func (p Patient) RowName() string { return p.Name }

func (p Patient) Field(name string) string {
	switch name {
	case "id":
		return strconv.FormatInt(p.ID, 10)
	case "name":
		return p.Name
	case "cpf":
		return deref(p.CPF)
	case "email":
		return deref(p.Email)
	case "phone":
		return deref(p.Phone)
	case "birthDate":
		return deref(p.BirthDate)
	case "gender":
		return deref(p.Gender)
	}
	return ""
}

// Normalize trims a timestamped birth date to its calendar date.
func Normalize(p Patient) Patient {
	if p.BirthDate != nil {
		d, _, _ := strings.Cut(*p.BirthDate, "T")
		p.BirthDate = &d
	}
	return p
}

// Genders offered by the edit form.
var Genders = []string{"", "MALE", "FEMALE", "OTHER"}

// Validate checks what the backend would otherwise reject.
func (p *Patient) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return form.Invalid("name", "Name is required.")
	}
	if p.CPF != nil {
		if !isDigits(*p.CPF, 11) {
			return form.Invalid("cpf", "CPF must have 11 digits.")
		}
	}
	if p.Email != nil && !strings.Contains(*p.Email, "@") {
		return form.Invalid("email", "Enter a valid email address.")
	}
	if p.BirthDate != nil {
		if _, err := time.Parse("2006-01-02", *p.BirthDate); err != nil {
			return form.Invalid("birthDate", "Birth date must be a valid date.")
		}
	}
	return nil
}

// FromForm builds a patient from a submitted edit form. Punctuation in the
// CPF is dropped.
func FromForm(v form.Values) *Patient {
	p := &Patient{
		Name:      v.String("name"),
		CPF:       v.Ptr("cpf"),
		Email:     v.Ptr("email"),
		Phone:     v.Ptr("phone"),
		BirthDate: v.Ptr("birthDate"),
		Gender:    v.Ptr("gender"),
	}
	if p.CPF != nil {
		d := Digits(*p.CPF)
		p.CPF = &d
	}
	return p
}

// Fields is the edit form layout.
func Fields() []form.Field {
	return []form.Field{
		{Name: "name", Label: "Name", Type: "text", Required: true},
		{Name: "cpf", Label: "CPF", Type: "text"},
		{Name: "email", Label: "Email", Type: "email"},
		{Name: "phone", Label: "Phone", Type: "text"},
		{Name: "birthDate", Label: "Birth date", Type: "date"},
		{Name: "gender", Label: "Gender", Type: "select", Options: Genders},
	}
}

// Digits keeps only the decimal digits of s.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isDigits(s string, n int) bool {
	return len(s) == n && Digits(s) == s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

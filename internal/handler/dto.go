package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pesio-ai/be-ojt-placements/internal/errors"
	"github.com/pesio-ai/be-ojt-placements/internal/service"
)

const maxJSONBody = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. An empty body is
// accepted when dst has no required fields.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && err != io.EOF {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

type companyBody struct {
	Name           string `json:"name" validate:"required,max=200"`
	Address        string `json:"address" validate:"max=500"`
	ContactPerson  string `json:"contact_person" validate:"max=200"`
	ContactEmail   string `json:"contact_email" validate:"omitempty,email,max=254"`
	ContactPhone   string `json:"contact_phone" validate:"max=50"`
	AvailableSlots *int   `json:"available_slots" validate:"omitempty,min=0"`
}

func (b *companyBody) request() *service.CompanyRequest {
	return &service.CompanyRequest{
		Name:           b.Name,
		Address:        b.Address,
		ContactPerson:  b.ContactPerson,
		ContactEmail:   b.ContactEmail,
		ContactPhone:   b.ContactPhone,
		AvailableSlots: b.AvailableSlots,
	}
}

type companyPatch struct {
	Name           *string `json:"name" validate:"omitempty,min=1,max=200"`
	Address        *string `json:"address" validate:"omitempty,max=500"`
	ContactPerson  *string `json:"contact_person" validate:"omitempty,max=200"`
	ContactEmail   *string `json:"contact_email" validate:"omitempty,email,max=254"`
	ContactPhone   *string `json:"contact_phone" validate:"omitempty,max=50"`
	AvailableSlots *int    `json:"available_slots" validate:"omitempty,min=0"`
	Unbounded      bool    `json:"unbounded"`
}

func (b *companyPatch) request() *service.UpdateCompanyRequest {
	return &service.UpdateCompanyRequest{
		Name:           b.Name,
		Address:        b.Address,
		ContactPerson:  b.ContactPerson,
		ContactEmail:   b.ContactEmail,
		ContactPhone:   b.ContactPhone,
		AvailableSlots: b.AvailableSlots,
		Unbounded:      b.Unbounded,
	}
}

// Date and hour bounds are checked by the domain so that error fields
// match across transports.
type applicationBody struct {
	StudentID     string `json:"student_id" validate:"max=100"`
	CompanyID     string `json:"company_id" validate:"required"`
	StartDate     string `json:"proposed_start_date"`
	EndDate       string `json:"proposed_end_date"`
	ProposedHours int    `json:"proposed_hours"`
	CoverLetter   string `json:"cover_letter" validate:"max=10000"`
	Skills        string `json:"skills" validate:"max=2000"`
}

func (b *applicationBody) request() *service.CreateApplicationRequest {
	return &service.CreateApplicationRequest{
		StudentID:     b.StudentID,
		CompanyID:     b.CompanyID,
		StartDate:     b.StartDate,
		EndDate:       b.EndDate,
		ProposedHours: b.ProposedHours,
		CoverLetter:   b.CoverLetter,
		Skills:        b.Skills,
	}
}

type applicationPatch struct {
	CompanyID     *string `json:"company_id" validate:"omitempty,min=1"`
	StartDate     *string `json:"proposed_start_date"`
	EndDate       *string `json:"proposed_end_date"`
	ProposedHours *int    `json:"proposed_hours"`
	CoverLetter   *string `json:"cover_letter" validate:"omitempty,max=10000"`
	Skills        *string `json:"skills" validate:"omitempty,max=2000"`
}

func (b *applicationPatch) request() *service.UpdateDraftRequest {
	return &service.UpdateDraftRequest{
		CompanyID:     b.CompanyID,
		StartDate:     b.StartDate,
		EndDate:       b.EndDate,
		ProposedHours: b.ProposedHours,
		CoverLetter:   b.CoverLetter,
		Skills:        b.Skills,
	}
}

type notesBody struct {
	Notes string `json:"notes" validate:"max=2000"`
}

type rejectBody struct {
	Reason string `json:"reason" validate:"required,max=2000"`
	Notes  string `json:"notes" validate:"max=2000"`
}

package placement

import (
	"fmt"
	"time"

	"github.com/pesio-ai/be-ojt-placements/internal/errors"
)

// RequirementType is one entry of the OJT document checklist.
type RequirementType string

const (
	RequirementResume                  RequirementType = "resume"
	RequirementApplicationLetter       RequirementType = "application_letter"
	RequirementEndorsementLetter       RequirementType = "endorsement_letter"
	RequirementParentsConsent          RequirementType = "parents_consent"
	RequirementMedicalCertificate      RequirementType = "medical_certificate"
	RequirementInsurance               RequirementType = "insurance"
	RequirementMemorandumOfAgreement   RequirementType = "memorandum_of_agreement"
	RequirementTrainingPlan            RequirementType = "training_plan"
	RequirementNBIClearance            RequirementType = "nbi_clearance"
	RequirementBarangayClearance       RequirementType = "barangay_clearance"
	RequirementStudentID               RequirementType = "student_id"
	RequirementCertificateRegistration RequirementType = "certificate_of_registration"
	RequirementGoodMoral               RequirementType = "good_moral"
)

// Checklist is the full document checklist.
var Checklist = []RequirementType{
	RequirementResume,
	RequirementApplicationLetter,
	RequirementEndorsementLetter,
	RequirementParentsConsent,
	RequirementMedicalCertificate,
	RequirementInsurance,
	RequirementMemorandumOfAgreement,
	RequirementTrainingPlan,
	RequirementNBIClearance,
	RequirementBarangayClearance,
	RequirementStudentID,
	RequirementCertificateRegistration,
	RequirementGoodMoral,
}

// ChecklistSize is the completeness target and the per-application cap.
const ChecklistSize = 13

// MandatoryRequirements must be attached before a draft can be submitted.
// The rest of the checklist is a soft precondition for review.
var MandatoryRequirements = []RequirementType{
	RequirementResume,
	RequirementApplicationLetter,
	RequirementParentsConsent,
}

// ParseRequirementType validates a checklist entry name.
func ParseRequirementType(s string) (RequirementType, error) {
	for _, t := range Checklist {
		if string(t) == s {
			return t, nil
		}
	}
	return "", errors.InvalidInput("type", fmt.Sprintf("unknown requirement type %q", s))
}

// MissingMandatory returns the mandatory types absent from attached.
func MissingMandatory(attached []RequirementType) []RequirementType {
	have := make(map[RequirementType]bool, len(attached))
	for _, t := range attached {
		have[t] = true
	}
	var missing []RequirementType
	for _, t := range MandatoryRequirements {
		if !have[t] {
			missing = append(missing, t)
		}
	}
	return missing
}

// Requirement is one attached checklist document.
type Requirement struct {
	ID            string          `json:"id"`
	ApplicationID string          `json:"application_id"`
	Type          RequirementType `json:"type"`
	FileRef       string          `json:"file_ref"`
	Submitted     bool            `json:"submitted"`
	SubmittedAt   *time.Time      `json:"submitted_at,omitempty"`
	Verification  *Verification   `json:"verification,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Verification is staff sign-off on a requirement.
type Verification struct {
	By    string    `json:"by"`
	At    time.Time `json:"at"`
	Notes string    `json:"notes,omitempty"`
}

// Replace swaps the file and resets submission and verification.
func (r *Requirement) Replace(fileRef string, now time.Time) {
	r.FileRef = fileRef
	r.Submitted = true
	r.SubmittedAt = &now
	r.Verification = nil
	r.UpdatedAt = now
}

// Completion counts submitted requirements against the checklist.
func Completion(reqs []*Requirement) (submitted, total int) {
	for _, r := range reqs {
		if r.Submitted {
			submitted++
		}
	}
	return submitted, ChecklistSize
}

// Document describes a file handed to the document store.
type Document struct {
	ApplicationID string
	Type          RequirementType
	Filename      string
	ContentType   string
}

// Clone returns a deep copy.
func (r *Requirement) Clone() *Requirement {
	if r == nil {
		return nil
	}
	out := *r
	if r.SubmittedAt != nil {
		t := *r.SubmittedAt
		out.SubmittedAt = &t
	}
	if r.Verification != nil {
		v := *r.Verification
		out.Verification = &v
	}
	return &out
}

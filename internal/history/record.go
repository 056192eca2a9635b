package history

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"clinical-scribe/internal/platform/fhir"
)

// Category names one of the four clinical record kinds the pipeline
// aggregates. The set is closed; no further categories are expected.
type Category string

const (
	CategoryAllergies   Category = "Allergies"
	CategoryMedications Category = "Medications"
	CategoryConditions  Category = "Conditions"
	CategoryReports     Category = "Reports"
)

// categoryOrder is the assembly order of context blocks. The note
// prompt relies on allergy and medication information appearing before
// the condition narrative, so this order is fixed regardless of how the
// caller listed the categories.
var categoryOrder = []Category{
	CategoryAllergies,
	CategoryMedications,
	CategoryConditions,
	CategoryReports,
}

// Selection is the caller-requested subset of categories.
type Selection []Category

func (s Selection) Has(c Category) bool {
	for _, got := range s {
		if got == c {
			return true
		}
	}
	return false
}

// AllSelected covers every category.
func AllSelected() Selection {
	return Selection(append([]Category(nil), categoryOrder...))
}

// ParseSelection maps caller-supplied category names onto the closed
// category set. Input order is irrelevant; assembly order is fixed.
func ParseSelection(names []string) (Selection, error) {
	var selection Selection
	for _, name := range names {
		switch Category(name) {
		case CategoryAllergies, CategoryMedications, CategoryConditions, CategoryReports:
			if !selection.Has(Category(name)) {
				selection = append(selection, Category(name))
			}
		default:
			return nil, fmt.Errorf("unknown category %q", name)
		}
	}
	if len(selection) == 0 {
		return AllSelected(), nil
	}
	return selection, nil
}

type AllergyRecord struct {
	Name           string   `json:"name"`
	Type           string   `json:"type,omitempty"`
	Categories     []string `json:"categories,omitempty"`
	Criticality    string   `json:"criticality,omitempty"`
	ClinicalStatus string   `json:"clinical_status,omitempty"`
	RecordedDate   string   `json:"recorded_date,omitempty"`

	recordedAt time.Time
}

type ConditionRecord struct {
	Name               string   `json:"name"`
	ClinicalStatus     string   `json:"clinical_status,omitempty"`
	VerificationStatus string   `json:"verification_status,omitempty"`
	Categories         []string `json:"categories,omitempty"`
	OnsetDate          string   `json:"onset_date,omitempty"`
	AbatementDate      string   `json:"abatement_date,omitempty"`
	RecordedDate       string   `json:"recorded_date,omitempty"`

	onsetAt     time.Time
	recordedAt  time.Time
	abatementAt time.Time
}

type MedicationRecord struct {
	Name       string   `json:"name"`
	Status     string   `json:"status,omitempty"`
	Category   string   `json:"category,omitempty"`
	Prescriber string   `json:"prescriber,omitempty"`
	Reasons    []string `json:"reasons,omitempty"`
	AuthoredOn string   `json:"authored_on,omitempty"`

	authoredAt time.Time
}

type ReportRecord struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Status        string   `json:"status,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	Performer     string   `json:"performer,omitempty"`
	EffectiveDate string   `json:"effective_date,omitempty"`
	Content       string   `json:"content,omitempty"`

	effectiveAt time.Time
}

// AllergyHistory holds one category's normalized records plus its
// rendered context block. Allergies have no active/historical split;
// everything returned is treated as currently active.
type AllergyHistory struct {
	Records []AllergyRecord
	Text    string
}

type ConditionHistory struct {
	Active     []ConditionRecord
	Historical []ConditionRecord
	Text       string
}

type MedicationHistory struct {
	Active     []MedicationRecord
	Historical []MedicationRecord
	Text       string
}

// ReportHistory splits reports strictly by date relative to the cutoff.
// Malformed collects per-record document decode failures; a single bad
// payload never discards the rest of the result set.
type ReportHistory struct {
	Recent    []ReportRecord
	Older     []ReportRecord
	Malformed error
	Text      string
}

// HistoryData is the output of one aggregation run: the per-category
// results (nil where a category was unselected or legitimately empty)
// and the per-category fetch failures.
type HistoryData struct {
	Allergies   *AllergyHistory
	Medications *MedicationHistory
	Conditions  *ConditionHistory
	Reports     *ReportHistory

	Failures map[Category]error
}

// Fetcher is the search surface of the clinical record server. Defined
// here, consumer-side, so the pipeline stays decoupled from the
// concrete HTTP client.
type Fetcher interface {
	SearchResource(ctx context.Context, resourceType string, params map[string]string) (*fhir.Bundle, error)
}

// Service is the patient-context aggregation pipeline. All per-call
// state (patient, window, selection) arrives as parameters; the service
// itself holds only its collaborators.
type Service struct {
	fetcher Fetcher
	log     *zap.Logger
	now     func() time.Time
}

func NewService(fetcher Fetcher, log *zap.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		log:     log,
		now:     time.Now,
	}
}

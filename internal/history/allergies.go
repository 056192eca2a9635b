package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"clinical-scribe/internal/platform/fhir"
)

// Allergies fetches and normalizes the patient's AllergyIntolerance
// resources. There is no time classification for allergies: everything
// the server returns is treated as currently active. A (nil, nil)
// return means the search legitimately matched nothing.
func (s *Service) Allergies(ctx context.Context, patientID string) (*AllergyHistory, error) {
	bundle, err := s.fetcher.SearchResource(ctx, fhir.ResourceAllergyIntolerance, map[string]string{"patient": patientID})
	if err != nil {
		return nil, err
	}
	if len(bundle.Entry) == 0 {
		return nil, nil
	}

	records := make([]AllergyRecord, 0, len(bundle.Entry))
	for _, entry := range bundle.Entry {
		var resource fhir.AllergyIntolerance
		if err := json.Unmarshal(entry.Resource, &resource); err != nil {
			s.log.Warn("skipping undecodable allergy entry", zap.Error(err))
			continue
		}

		records = append(records, AllergyRecord{
			Name:           allergyName(resource.Code),
			Type:           resource.Type,
			Categories:     resource.Category,
			Criticality:    resource.Criticality,
			ClinicalStatus: firstCode(resource.ClinicalStatus),
			RecordedDate:   resource.RecordedDate,
			recordedAt:     parseDate(resource.RecordedDate),
		})
	}

	return &AllergyHistory{
		Records: records,
		Text:    renderAllergies(records),
	}, nil
}

// allergyName prefers the concept's free-text label and falls back to
// the first coded display value.
func allergyName(code *fhir.CodeableConcept) string {
	if code == nil {
		return "Unknown"
	}
	if code.Text != "" {
		return code.Text
	}
	if len(code.Coding) > 0 && code.Coding[0].Display != "" {
		return code.Coding[0].Display
	}
	return "Unknown"
}

func firstCode(concept *fhir.CodeableConcept) string {
	if concept == nil || len(concept.Coding) == 0 {
		return ""
	}
	return concept.Coding[0].Code
}

func firstDisplay(concept *fhir.CodeableConcept) string {
	if concept == nil {
		return ""
	}
	if len(concept.Coding) > 0 && concept.Coding[0].Display != "" {
		return concept.Coding[0].Display
	}
	return concept.Text
}

func renderAllergies(records []AllergyRecord) string {
	var b strings.Builder
	b.WriteString("The patient has the following allergies:\n")
	for _, r := range records {
		fmt.Fprintf(&b, "\nName: %s\n", r.Name)
		fmt.Fprintf(&b, "Category: %s\n", strings.Join(r.Categories, ", "))
		fmt.Fprintf(&b, "Criticality: %s\n", r.Criticality)
		fmt.Fprintf(&b, "Clinical Status: %s\n", r.ClinicalStatus)
	}
	return b.String()
}

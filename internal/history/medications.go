package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"clinical-scribe/internal/platform/fhir"
)

// Medication request statuses. Active-equivalent and historical-eligible
// sets are disjoint; anything outside both is dropped entirely.
var (
	medicationActiveStatuses     = map[string]bool{"active": true, "intended": true}
	medicationHistoricalStatuses = map[string]bool{"stopped": true, "completed": true}
)

// Medications fetches the patient's MedicationRequest resources.
// Historical admission is tested against the authored (prescribed)
// date.
func (s *Service) Medications(ctx context.Context, patientID string, lookback Lookback) (*MedicationHistory, error) {
	bundle, err := s.fetcher.SearchResource(ctx, fhir.ResourceMedicationRequest, map[string]string{"patient": patientID})
	if err != nil {
		return nil, err
	}
	if len(bundle.Entry) == 0 {
		return nil, nil
	}

	win := resolveWindow(lookback, s.now())

	var active, historical []MedicationRecord
	for _, entry := range bundle.Entry {
		var resource fhir.MedicationRequest
		if err := json.Unmarshal(entry.Resource, &resource); err != nil {
			s.log.Warn("skipping undecodable medication entry", zap.Error(err))
			continue
		}

		record := MedicationRecord{
			Name:       medicationName(&resource),
			Status:     resource.Status,
			Category:   medicationCategory(resource.Category),
			Prescriber: requesterDisplay(resource.Requester),
			Reasons:    referenceDisplays(resource.ReasonReference),
			AuthoredOn: resource.AuthoredOn,
			authoredAt: parseDate(resource.AuthoredOn),
		}

		switch {
		case medicationActiveStatuses[record.Status]:
			active = append(active, record)
		case medicationHistoricalStatuses[record.Status]:
			if win.classify(false, record.authoredAt) == classHistorical {
				historical = append(historical, record)
			}
		}
	}

	return &MedicationHistory{
		Active:     active,
		Historical: historical,
		Text:       renderMedications(active, historical, win),
	}, nil
}

// medicationName resolves the drug's display name from the coded
// concept first, then from the reference's display label.
func medicationName(resource *fhir.MedicationRequest) string {
	if concept := resource.MedicationCodeableConcept; concept != nil {
		if len(concept.Coding) > 0 && concept.Coding[0].Display != "" {
			return concept.Coding[0].Display
		}
		if concept.Text != "" {
			return concept.Text
		}
	}
	if resource.MedicationReference != nil {
		return resource.MedicationReference.Display
	}
	return ""
}

func medicationCategory(categories []fhir.CodeableConcept) string {
	if len(categories) == 0 {
		return ""
	}
	return firstDisplay(&categories[0])
}

func requesterDisplay(requester *fhir.Reference) string {
	if requester == nil {
		return ""
	}
	return requester.Display
}

func referenceDisplays(refs []fhir.Reference) []string {
	var displays []string
	for _, ref := range refs {
		if ref.Display != "" {
			displays = append(displays, ref.Display)
		}
	}
	return displays
}

func renderMedications(active, historical []MedicationRecord, win window) string {
	var b strings.Builder
	b.WriteString("Patient's Current Medications:\n")
	if len(active) > 0 {
		for _, m := range active {
			writeMedication(&b, m)
		}
	} else {
		b.WriteString("No active medications.\n")
	}

	if win.bounded {
		fmt.Fprintf(&b, "\nDiscontinued Medications (Past %d months):\n", win.months)
	} else {
		b.WriteString("\nHistorical Medications:\n")
	}

	if len(historical) > 0 {
		for _, m := range historical {
			writeMedication(&b, m)
		}
	} else {
		b.WriteString("No historical medications in the specified timeframe.\n")
	}
	return b.String()
}

func writeMedication(b *strings.Builder, m MedicationRecord) {
	fmt.Fprintf(b, "\nMedication: %s\n", m.Name)
	fmt.Fprintf(b, "Status: %s\n", m.Status)
	fmt.Fprintf(b, "Category: %s\n", m.Category)
	fmt.Fprintf(b, "Prescribed by: %s\n", m.Prescriber)
	fmt.Fprintf(b, "Prescribed Date: %s\n", m.AuthoredOn)
	if len(m.Reasons) > 0 {
		fmt.Fprintf(b, "Reason: %s\n", strings.Join(m.Reasons, ", "))
	}
}

package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"clinical-scribe/internal/platform/fhir"
)

// statusConditionActive is the single active-equivalent clinical status
// code for conditions.
const statusConditionActive = "active"

// Conditions fetches the patient's Condition resources and splits them
// into active and historical per the lookback window. Historical
// admission is tested against the recorded date, not the onset date.
func (s *Service) Conditions(ctx context.Context, patientID string, lookback Lookback) (*ConditionHistory, error) {
	bundle, err := s.fetcher.SearchResource(ctx, fhir.ResourceCondition, map[string]string{"patient": patientID})
	if err != nil {
		return nil, err
	}
	if len(bundle.Entry) == 0 {
		return nil, nil
	}

	win := resolveWindow(lookback, s.now())

	var active, historical []ConditionRecord
	for _, entry := range bundle.Entry {
		var resource fhir.Condition
		if err := json.Unmarshal(entry.Resource, &resource); err != nil {
			s.log.Warn("skipping undecodable condition entry", zap.Error(err))
			continue
		}

		record := ConditionRecord{
			Name:               firstDisplay(resource.Code),
			ClinicalStatus:     firstCode(resource.ClinicalStatus),
			VerificationStatus: firstCode(resource.VerificationStatus),
			Categories:         conceptDisplays(resource.Category),
			OnsetDate:          resource.OnsetDateTime,
			AbatementDate:      resource.AbatementDateTime,
			RecordedDate:       resource.RecordedDate,
			onsetAt:            parseDate(resource.OnsetDateTime),
			recordedAt:         parseDate(resource.RecordedDate),
			abatementAt:        parseDate(resource.AbatementDateTime),
		}

		switch win.classify(record.ClinicalStatus == statusConditionActive, record.recordedAt) {
		case classActive:
			active = append(active, record)
		case classHistorical:
			historical = append(historical, record)
		}
	}

	return &ConditionHistory{
		Active:     active,
		Historical: historical,
		Text:       renderConditions(active, historical, win),
	}, nil
}

func conceptDisplays(concepts []fhir.CodeableConcept) []string {
	var displays []string
	for _, concept := range concepts {
		for _, coding := range concept.Coding {
			if coding.Display != "" {
				displays = append(displays, coding.Display)
			}
		}
	}
	return displays
}

func joinOr(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return strings.Join(values, ", ")
}

func renderConditions(active, historical []ConditionRecord, win window) string {
	var b strings.Builder
	b.WriteString("Patient's Current Medical Conditions:\n")
	if len(active) > 0 {
		for _, c := range active {
			fmt.Fprintf(&b, "\nCondition: %s\n", c.Name)
			fmt.Fprintf(&b, "Status: %s\n", c.ClinicalStatus)
			fmt.Fprintf(&b, "Category: %s\n", joinOr(c.Categories, "Not specified"))
			fmt.Fprintf(&b, "Onset Date: %s\n", c.OnsetDate)
		}
	} else {
		b.WriteString("No active medical conditions.\n")
	}

	if win.bounded {
		fmt.Fprintf(&b, "\nResolved Conditions (Past %d months):\n", win.months)
	} else {
		b.WriteString("\nHistorical Conditions:\n")
	}

	if len(historical) > 0 {
		for _, c := range historical {
			fmt.Fprintf(&b, "\nCondition: %s\n", c.Name)
			fmt.Fprintf(&b, "Status: %s\n", c.ClinicalStatus)
			fmt.Fprintf(&b, "Category: %s\n", joinOr(c.Categories, "Not specified"))
			fmt.Fprintf(&b, "Onset Date: %s\n", c.OnsetDate)
			fmt.Fprintf(&b, "Resolved Date: %s\n", c.AbatementDate)
		}
	} else {
		b.WriteString("No historical conditions in the specified timeframe.\n")
	}
	return b.String()
}

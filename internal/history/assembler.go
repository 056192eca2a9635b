package history

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Collect runs the selected extractors in the fixed category order and
// gathers their results. A failing category is logged and recorded in
// Failures; the remaining categories still run, so one unreachable
// resource kind never empties the whole context.
func (s *Service) Collect(ctx context.Context, patientID string, selection Selection, lookback Lookback) *HistoryData {
	data := &HistoryData{Failures: make(map[Category]error)}

	for _, category := range categoryOrder {
		if !selection.Has(category) {
			continue
		}

		var err error
		switch category {
		case CategoryAllergies:
			data.Allergies, err = s.Allergies(ctx, patientID)
		case CategoryMedications:
			data.Medications, err = s.Medications(ctx, patientID, lookback)
		case CategoryConditions:
			data.Conditions, err = s.Conditions(ctx, patientID, lookback)
		case CategoryReports:
			data.Reports, err = s.Reports(ctx, patientID, lookback)
		}
		if err != nil {
			s.log.Error("category fetch failed",
				zap.String("category", string(category)),
				zap.String("patient_id", patientID),
				zap.Error(err),
			)
			data.Failures[category] = err
		}
	}
	return data
}

// ContextText concatenates the rendered category blocks in the fixed
// order Allergies, Medications, Conditions, Reports. Categories that
// returned no records (or failed) are omitted entirely; no error text
// is ever embedded in the context.
func (d *HistoryData) ContextText() string {
	var b strings.Builder
	if d.Allergies != nil {
		b.WriteString(d.Allergies.Text)
	}
	if d.Medications != nil {
		b.WriteString(d.Medications.Text)
	}
	if d.Conditions != nil {
		b.WriteString(d.Conditions.Text)
	}
	if d.Reports != nil {
		b.WriteString(d.Reports.Text)
	}
	return b.String()
}

// BuildContext produces the prompt-ready patient context in one call.
// It never partially fails: whatever the reachable categories produced
// is returned.
func (s *Service) BuildContext(ctx context.Context, patientID string, selection Selection, lookback Lookback) string {
	return s.Collect(ctx, patientID, selection, lookback).ContextText()
}

package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time { return parseDate(s) }

func TestBuildViewActiveUnion(t *testing.T) {
	data := &HistoryData{
		Allergies: &AllergyHistory{Records: []AllergyRecord{
			{Name: "Latex allergy", ClinicalStatus: "active", RecordedDate: "2024-01-01"},
		}},
		Medications: &MedicationHistory{
			Active: []MedicationRecord{
				{Name: "Atorvastatin 20mg", Status: "active", AuthoredOn: "2026-02-01"},
			},
		},
		Conditions: &ConditionHistory{
			Active: []ConditionRecord{
				{Name: "Asthma", ClinicalStatus: "active", OnsetDate: "2015-05-01"},
			},
		},
	}

	view := BuildView(data)
	require.Len(t, view.Active, 3)

	var categories []Category
	for _, item := range view.Active {
		categories = append(categories, item.Category)
	}
	assert.Contains(t, categories, CategoryAllergies)
	assert.Contains(t, categories, CategoryMedications)
	assert.Contains(t, categories, CategoryConditions)
	assert.Empty(t, view.Historical)
}

func TestBuildViewActiveSortedDescending(t *testing.T) {
	data := &HistoryData{
		Allergies: &AllergyHistory{Records: []AllergyRecord{
			{Name: "Latex allergy", RecordedDate: "2026-05-01", recordedAt: date("2026-05-01")},
			{Name: "Dust mites", RecordedDate: ""},
		}},
		Medications: &MedicationHistory{
			Active: []MedicationRecord{
				{Name: "Atorvastatin 20mg", AuthoredOn: "2026-02-01", authoredAt: date("2026-02-01")},
			},
		},
		Conditions: &ConditionHistory{
			Active: []ConditionRecord{
				{Name: "Asthma", OnsetDate: "2026-07-01", onsetAt: date("2026-07-01")},
			},
		},
	}

	view := BuildView(data)
	require.Len(t, view.Active, 4)

	assert.Equal(t, "Asthma", view.Active[0].Name)
	assert.Equal(t, "Latex allergy", view.Active[1].Name)
	assert.Equal(t, "Atorvastatin 20mg", view.Active[2].Name)

	// Dateless items sort last under the descending order.
	assert.Equal(t, "Dust mites", view.Active[3].Name)
}

func TestBuildViewHistoricalSortedDescending(t *testing.T) {
	data := &HistoryData{
		Conditions: &ConditionHistory{
			Historical: []ConditionRecord{
				{Name: "Sinusitis", AbatementDate: "2026-03-10", abatementAt: date("2026-03-10")},
				{Name: "Old sprain", RecordedDate: ""},
			},
		},
		Medications: &MedicationHistory{
			Historical: []MedicationRecord{
				{Name: "Amoxicillin 500mg", AuthoredOn: "2026-06-01", authoredAt: date("2026-06-01")},
			},
		},
		Reports: &ReportHistory{
			Recent: []ReportRecord{
				{Name: "CBC panel", EffectiveDate: "2026-07-01", effectiveAt: date("2026-07-01")},
			},
			Older: []ReportRecord{
				{Name: "Lipid panel", EffectiveDate: "2025-01-15", effectiveAt: date("2025-01-15")},
			},
		},
	}

	view := BuildView(data)
	require.Len(t, view.Historical, 5)

	// Both recent and older reports count as historical for display.
	assert.Equal(t, "CBC panel", view.Historical[0].Name)
	assert.Equal(t, "Amoxicillin 500mg", view.Historical[1].Name)
	assert.Equal(t, "Sinusitis", view.Historical[2].Name)
	assert.Equal(t, "Lipid panel", view.Historical[3].Name)

	// Dateless items sort last under the descending order.
	assert.Equal(t, "Old sprain", view.Historical[4].Name)
}

func TestBuildViewConditionDateFallback(t *testing.T) {
	data := &HistoryData{
		Conditions: &ConditionHistory{
			Historical: []ConditionRecord{
				{Name: "Bronchitis", RecordedDate: "2026-04-01", recordedAt: date("2026-04-01")},
			},
		},
	}

	view := BuildView(data)
	require.Len(t, view.Historical, 1)
	// No abatement date: the recorded date stands in for display and sorting.
	assert.Equal(t, "2026-04-01", view.Historical[0].Date)
}

func TestBuildViewDoesNotMutateSource(t *testing.T) {
	historical := []ConditionRecord{
		{Name: "B", AbatementDate: "2026-01-01", abatementAt: date("2026-01-01")},
		{Name: "A", AbatementDate: "2026-05-01", abatementAt: date("2026-05-01")},
	}
	data := &HistoryData{Conditions: &ConditionHistory{Historical: historical}}

	view := BuildView(data)
	require.Len(t, view.Historical, 2)
	assert.Equal(t, "A", view.Historical[0].Name)

	// The source slice keeps its original order.
	assert.Equal(t, "B", historical[0].Name)
	assert.Equal(t, "A", historical[1].Name)
}

func TestBuildViewSkipsMissingCategories(t *testing.T) {
	view := BuildView(&HistoryData{Failures: map[Category]error{}})
	assert.Empty(t, view.Active)
	assert.Empty(t, view.Historical)
}

package history

import (
	"sort"
	"time"
)

// Item is one row of the patient history view.
type Item struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Status   string   `json:"status,omitempty"`
	Date     string   `json:"date,omitempty"`

	sortKey time.Time
}

// View is the display-oriented split of the collected records. It is
// derived from HistoryData without mutating it.
type View struct {
	Active     []Item `json:"active"`
	Historical []Item `json:"historical"`
}

// BuildView merges the collected categories into two display lists.
// Active unions active conditions, active medications and all
// allergies. Historical unions historical conditions, historical
// medications and every report regardless of its recent/older split.
// Both lists come out sorted by relevant date descending with dateless
// items last.
func BuildView(data *HistoryData) *View {
	view := &View{}

	if data.Conditions != nil {
		for _, c := range data.Conditions.Active {
			view.Active = append(view.Active, Item{
				Name:     c.Name,
				Category: CategoryConditions,
				Status:   c.ClinicalStatus,
				Date:     c.OnsetDate,
				sortKey:  c.onsetAt,
			})
		}
	}
	if data.Medications != nil {
		for _, m := range data.Medications.Active {
			view.Active = append(view.Active, Item{
				Name:     m.Name,
				Category: CategoryMedications,
				Status:   m.Status,
				Date:     m.AuthoredOn,
				sortKey:  m.authoredAt,
			})
		}
	}
	if data.Allergies != nil {
		for _, a := range data.Allergies.Records {
			view.Active = append(view.Active, Item{
				Name:     a.Name,
				Category: CategoryAllergies,
				Status:   a.ClinicalStatus,
				Date:     a.RecordedDate,
				sortKey:  a.recordedAt,
			})
		}
	}

	if data.Conditions != nil {
		for _, c := range data.Conditions.Historical {
			item := Item{
				Name:     c.Name,
				Category: CategoryConditions,
				Status:   c.ClinicalStatus,
				Date:     c.AbatementDate,
				sortKey:  c.abatementAt,
			}
			if item.Date == "" {
				item.Date = c.RecordedDate
				item.sortKey = c.recordedAt
			}
			view.Historical = append(view.Historical, item)
		}
	}
	if data.Medications != nil {
		for _, m := range data.Medications.Historical {
			view.Historical = append(view.Historical, Item{
				Name:     m.Name,
				Category: CategoryMedications,
				Status:   m.Status,
				Date:     m.AuthoredOn,
				sortKey:  m.authoredAt,
			})
		}
	}
	if data.Reports != nil {
		for _, r := range append(append([]ReportRecord(nil), data.Reports.Recent...), data.Reports.Older...) {
			view.Historical = append(view.Historical, Item{
				Name:     r.Name,
				Category: CategoryReports,
				Status:   r.Status,
				Date:     r.EffectiveDate,
				sortKey:  r.effectiveAt,
			})
		}
	}

	sortItemsByDate(view.Active)
	sortItemsByDate(view.Historical)

	return view
}

func sortItemsByDate(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].sortKey, items[j].sortKey
		if a.IsZero() {
			return false
		}
		if b.IsZero() {
			return true
		}
		return a.After(b)
	})
}

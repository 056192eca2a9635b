package history

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"clinical-scribe/internal/platform/fhir"
)

// Reports fetches the patient's DiagnosticReport resources. Reports
// carry no active/historical status; they split strictly by effective
// date relative to the cutoff. Each report's presented document is
// base64-decoded; a malformed payload is recorded on the result's
// Malformed error and does not abort the category.
func (s *Service) Reports(ctx context.Context, patientID string, lookback Lookback) (*ReportHistory, error) {
	bundle, err := s.fetcher.SearchResource(ctx, fhir.ResourceDiagnosticReport, map[string]string{"patient": patientID})
	if err != nil {
		return nil, err
	}
	if len(bundle.Entry) == 0 {
		return nil, nil
	}

	win := resolveWindow(lookback, s.now())

	var recent, older []ReportRecord
	var malformed *multierror.Error
	for _, entry := range bundle.Entry {
		var resource fhir.DiagnosticReport
		if err := json.Unmarshal(entry.Resource, &resource); err != nil {
			s.log.Warn("skipping undecodable report entry", zap.Error(err))
			continue
		}
		if len(resource.PresentedForm) == 0 {
			continue
		}

		content, err := decodeDocument(resource.PresentedForm[0])
		if err != nil {
			malformed = multierror.Append(malformed,
				errors.Wrapf(err, "report %s", resource.ID))
			continue
		}

		record := ReportRecord{
			ID:            resource.ID,
			Name:          reportName(resource.Code),
			Status:        resource.Status,
			Categories:    conceptDisplays(resource.Category),
			Performer:     performerDisplay(resource.Performer),
			EffectiveDate: resource.EffectiveDateTime,
			Content:       content,
			effectiveAt:   parseDate(resource.EffectiveDateTime),
		}

		if win.admitsDate(record.effectiveAt) {
			recent = append(recent, record)
		} else {
			older = append(older, record)
		}
	}

	return &ReportHistory{
		Recent:    recent,
		Older:     older,
		Malformed: malformed.ErrorOrNil(),
		Text:      renderReports(recent, older, win),
	}, nil
}

func decodeDocument(form fhir.Attachment) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(form.Data)
	if err != nil {
		return "", errors.Wrap(err, "decode presented form")
	}
	return string(decoded), nil
}

func reportName(code *fhir.CodeableConcept) string {
	if code == nil {
		return ""
	}
	var displays []string
	for _, coding := range code.Coding {
		if coding.Display != "" {
			displays = append(displays, coding.Display)
		}
	}
	if len(displays) == 0 && code.Text != "" {
		return code.Text
	}
	return strings.Join(displays, ", ")
}

func performerDisplay(performers []fhir.Reference) string {
	if len(performers) == 0 {
		return ""
	}
	return performers[0].Display
}

const reportRule = "--------------------------------------------------"
const reportSeparator = "=================================================="

func renderReports(recent, older []ReportRecord, win window) string {
	var b strings.Builder
	if win.bounded {
		fmt.Fprintf(&b, "Diagnostic Reports (Past %d months):\n", win.months)
	} else {
		b.WriteString("All Diagnostic Reports:\n")
	}
	b.WriteString(reportRule + "\n")

	if len(recent) > 0 {
		for _, r := range recent {
			writeReport(&b, r)
		}
	} else {
		b.WriteString("No recent diagnostic reports found.\n")
	}

	if win.bounded && len(older) > 0 {
		fmt.Fprintf(&b, "\nOlder Reports (Before %d months):\n", win.months)
		b.WriteString(reportRule + "\n")
		for _, r := range older {
			writeReport(&b, r)
		}
	}
	return b.String()
}

func writeReport(b *strings.Builder, r ReportRecord) {
	fmt.Fprintf(b, "\nReport Type: %s\n", r.Name)
	fmt.Fprintf(b, "Status: %s\n", r.Status)
	fmt.Fprintf(b, "Category: %s\n", strings.Join(r.Categories, ", "))
	fmt.Fprintf(b, "Date: %s\n", r.EffectiveDate)
	fmt.Fprintf(b, "Provider: %s\n", r.Performer)
	fmt.Fprintf(b, "\nContent:\n%s\n", r.Content)
	b.WriteString(reportSeparator + "\n")
}

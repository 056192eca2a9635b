package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/signintech/gopdf"
	"go.uber.org/zap"

	"clinical-scribe/internal/platform/fhir"
)

// CompletionClient is the hosted language-model collaborator. Declared
// here to decouple the note service from the concrete agent client.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Service struct {
	completions CompletionClient
	log         *zap.Logger
}

func NewService(completions CompletionClient, log *zap.Logger) *Service {
	return &Service{
		completions: completions,
		log:         log,
	}
}

// Generate produces the draft clinical note for one consultation. The
// result is opaque markdown; a completion failure yields no note but
// leaves the already-built context and transcription untouched in the
// caller's hands.
func (s *Service) Generate(ctx context.Context, patient *fhir.Patient, patientContext, transcription, consultationType string) (string, error) {
	prompt := BuildPrompt(patient, patientContext, transcription, consultationType)

	note, err := s.completions.Complete(ctx, prompt)
	if err != nil {
		return "", errors.Wrap(err, "generate clinical note")
	}

	s.log.Info("clinical note generated",
		zap.String("patient_id", patient.ID),
		zap.Int("note_length", len(note)),
	)
	return note, nil
}

// BuildPrompt assembles the single completion request: instruction
// preamble, patient context block, consultation transcription, and the
// markdown skeleton the model must fill in. The context block precedes
// the transcription; the note sections rely on that order.
func BuildPrompt(patient *fhir.Patient, patientContext, transcription, consultationType string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "This is a %s consultation for this patient. Based on the transcription of the doctor-patient\n", consultationType)
	b.WriteString(`consultation session below, write a report that includes the following sections:
1. Patient information
2. Prior conditions and pre-diagnosis
3. Requested tests or medication to be prescribed

Before the consultation transcription, here are active and historical allergies,
medications, conditions and medical reports of the patient that you need to take into account.

Historical patient data:
`)
	b.WriteString(patientContext)
	b.WriteString("\nTranscription of the consultation session:\n")
	b.WriteString(transcription)
	b.WriteString("\n\nGive your response in the following markdown format:\n")
	fmt.Fprintf(&b, `# Patient information:
Name: %s
Gender: %s
Birth Date: %s
[Pre-existing conditions, active and previous medications if any]

# Allergies
[Allergies if any]

# Consultation summary:
[Findings / complaints]

# Pre-diagnosis:
[pre-diagnosis]

# Requested tests:
- [test 1]
- [test 2]
- ...

The final section should include either requested tests (if any) or a prescription if this is a follow-up consultation.
If not needed, the final section can be omitted.
`, patientName(patient), patient.Gender, patient.BirthDate)

	return b.String()
}

func patientName(patient *fhir.Patient) string {
	if len(patient.Name) == 0 {
		return ""
	}
	name := patient.Name[0]
	if name.Text != "" {
		return name.Text
	}
	parts := append([]string(nil), name.Given...)
	if name.Family != "" {
		parts = append(parts, name.Family)
	}
	return strings.Join(parts, " ")
}

var fontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

// ExportPDF renders the (possibly edited) note as a PDF document.
func (s *Service) ExportPDF(note, patientID string) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	var fontErr error
	fontLoaded := false
	for _, path := range fontPaths {
		if err := pdf.AddTTFFont("DejaVu", path); err == nil {
			fontLoaded = true
			break
		} else {
			fontErr = err
		}
	}
	if !fontLoaded {
		return nil, fmt.Errorf("failed to load font for PDF, ensure ttf-dejavu is installed: %w", fontErr)
	}

	if err := pdf.SetFont("DejaVu", "", 16); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Consultation Report")
	pdf.Br(25)

	if err := pdf.SetFont("DejaVu", "", 10); err != nil {
		return nil, err
	}
	pdf.Cell(nil, fmt.Sprintf("Date: %s", time.Now().Format("2006-01-02 15:04")))
	pdf.Br(12)
	pdf.Cell(nil, fmt.Sprintf("Patient ID: %s", patientID))
	pdf.Br(20)

	if err := pdf.SetFont("DejaVu", "", 11); err != nil {
		return nil, err
	}
	for _, line := range strings.Split(note, "\n") {
		if strings.TrimSpace(line) == "" {
			pdf.Br(8)
			continue
		}
		wrapped, _ := pdf.SplitText(line, 500)
		for _, l := range wrapped {
			pdf.Cell(nil, l)
			pdf.Br(13)
		}
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

package consultation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"clinical-scribe/internal/history"
	"clinical-scribe/internal/platform/fhir"
	"clinical-scribe/internal/platform/session"
)

// Transcriber is the hosted speech-to-text collaborator.
type Transcriber interface {
	Transcribe(ctx context.Context, audioData []byte, fileName string) (string, error)
}

// NoteService generates and exports the draft clinical note.
type NoteService interface {
	Generate(ctx context.Context, patient *fhir.Patient, patientContext, transcription, consultationType string) (string, error)
	ExportPDF(note, patientID string) ([]byte, error)
}

// PatientDirectory resolves patient demographics from the record server.
type PatientDirectory interface {
	FindPatient(ctx context.Context, patientID string) (*fhir.Patient, error)
}

// ContextService is the patient-context aggregation pipeline.
type ContextService interface {
	Collect(ctx context.Context, patientID string, selection history.Selection, lookback history.Lookback) *history.HistoryData
}

// SessionCache holds per-consultation artifacts between requests.
type SessionCache interface {
	Set(ctx context.Context, consultationID, field, value string) error
	Get(ctx context.Context, consultationID, field string) (string, bool, error)
	Invalidate(ctx context.Context, consultationID string, fields ...string) error
}

type Service interface {
	Create(ctx context.Context, patientID string) (*Consultation, error)
	Get(ctx context.Context, id uuid.UUID) (*Consultation, error)
	TranscribeAudio(ctx context.Context, id uuid.UUID, audioData []byte, fileName string) (string, error)
	BuildContext(ctx context.Context, id uuid.UUID, selection history.Selection, lookback history.Lookback) (string, error)
	GenerateNote(ctx context.Context, id uuid.UUID, consultationType string) (string, error)
	UpdateNote(ctx context.Context, id uuid.UUID, note string) error
	ExportPDF(ctx context.Context, id uuid.UUID) ([]byte, error)
	History(ctx context.Context, patientID string, selection history.Selection, lookback history.Lookback) (*history.View, error)
	Process(ctx context.Context, id uuid.UUID, audioData []byte, fileName string, selection history.Selection, lookback history.Lookback, consultationType string) (*Consultation, error)
}

type service struct {
	repo        Repository
	patients    PatientDirectory
	contexts    ContextService
	transcriber Transcriber
	notes       NoteService
	cache       SessionCache
	log         *zap.Logger
}

func NewService(repo Repository, patients PatientDirectory, contexts ContextService, transcriber Transcriber, notes NoteService, cache SessionCache, log *zap.Logger) Service {
	return &service{
		repo:        repo,
		patients:    patients,
		contexts:    contexts,
		transcriber: transcriber,
		notes:       notes,
		cache:       cache,
		log:         log,
	}
}

func (s *service) Create(ctx context.Context, patientID string) (*Consultation, error) {
	if _, err := s.patients.FindPatient(ctx, patientID); err != nil {
		return nil, fmt.Errorf("resolve patient: %w", err)
	}

	c := &Consultation{
		ID:        uuid.New(),
		PatientID: patientID,
		Lookback:  history.Lookback3Months,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return s.repo.GetByID(ctx, id)
}

// TranscribeAudio sends the uploaded recording to the transcription
// collaborator and stores the result on the consultation. A previously
// generated note is invalidated since it no longer reflects the session.
func (s *service) TranscribeAudio(ctx context.Context, id uuid.UUID, audioData []byte, fileName string) (string, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}

	text, err := s.transcriber.Transcribe(ctx, audioData, fileName)
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	c.Transcription = text
	if err := s.repo.Save(ctx, c); err != nil {
		return "", err
	}
	s.cacheSet(ctx, id, session.FieldTranscription, text)
	if err := s.cache.Invalidate(ctx, id.String(), session.FieldNote); err != nil {
		s.log.Warn("session cache invalidation failed", zap.Error(err))
	}
	return text, nil
}

// BuildContext runs the aggregation pipeline with the caller-supplied
// selection and lookback and stores the resulting context text. A rerun
// with unchanged selection and lookback within the session is served
// from the cache; the pipeline only reruns when the parameters changed
// or the cache missed.
func (s *service) BuildContext(ctx context.Context, id uuid.UUID, selection history.Selection, lookback history.Lookback) (string, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}

	if sameSelection(c.Categories, selection) && c.Lookback == lookback {
		if cached, ok := s.cacheGet(ctx, id, session.FieldPatientContext); ok {
			return cached, nil
		}
	}

	data := s.contexts.Collect(ctx, c.PatientID, selection, lookback)
	text := data.ContextText()

	c.Categories = selection
	c.Lookback = lookback
	c.PatientContext = text
	if err := s.repo.Save(ctx, c); err != nil {
		return "", err
	}
	s.cacheSet(ctx, id, session.FieldPatientContext, text)
	return text, nil
}

// GenerateNote builds the prompt from the stored context and
// transcription and calls the completion collaborator. A completion
// failure is fatal to this action only; the stored transcription and
// context are left intact.
func (s *service) GenerateNote(ctx context.Context, id uuid.UUID, consultationType string) (string, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if c.Transcription == "" {
		return "", fmt.Errorf("no transcription recorded for consultation %s", id)
	}

	patient, err := s.patients.FindPatient(ctx, c.PatientID)
	if err != nil {
		return "", fmt.Errorf("resolve patient: %w", err)
	}

	note, err := s.notes.Generate(ctx, patient, c.PatientContext, c.Transcription, consultationType)
	if err != nil {
		return "", err
	}

	c.ConsultationType = consultationType
	c.Note = note
	if err := s.repo.Save(ctx, c); err != nil {
		return "", err
	}
	s.cacheSet(ctx, id, session.FieldNote, note)
	return note, nil
}

func (s *service) UpdateNote(ctx context.Context, id uuid.UUID, note string) error {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	c.Note = note
	if err := s.repo.Save(ctx, c); err != nil {
		return err
	}
	s.cacheSet(ctx, id, session.FieldNote, note)
	return nil
}

func (s *service) ExportPDF(ctx context.Context, id uuid.UUID) ([]byte, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Note == "" {
		return nil, fmt.Errorf("no note generated for consultation %s", id)
	}
	return s.notes.ExportPDF(c.Note, c.PatientID)
}

// History renders the display-oriented active/historical view using the
// same pipeline rules as the context assembler.
func (s *service) History(ctx context.Context, patientID string, selection history.Selection, lookback history.Lookback) (*history.View, error) {
	data := s.contexts.Collect(ctx, patientID, selection, lookback)
	return history.BuildView(data), nil
}

// Process is the one-shot flow behind the "process consultation"
// action: transcribe the recording if one was uploaded, rebuild the
// patient context, then generate the note when a transcription exists.
func (s *service) Process(ctx context.Context, id uuid.UUID, audioData []byte, fileName string, selection history.Selection, lookback history.Lookback, consultationType string) (*Consultation, error) {
	if len(audioData) > 0 {
		if _, err := s.TranscribeAudio(ctx, id, audioData, fileName); err != nil {
			return nil, err
		}
	}

	if _, err := s.BuildContext(ctx, id, selection, lookback); err != nil {
		return nil, err
	}

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Transcription != "" {
		if _, err := s.GenerateNote(ctx, id, consultationType); err != nil {
			return nil, err
		}
		c, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// cacheSet is best-effort; a cache failure never fails the request.
func (s *service) cacheSet(ctx context.Context, id uuid.UUID, field, value string) {
	if err := s.cache.Set(ctx, id.String(), field, value); err != nil {
		s.log.Warn("session cache write failed",
			zap.String("field", field),
			zap.Error(err),
		)
	}
}

// cacheGet treats a cache failure as a miss.
func (s *service) cacheGet(ctx context.Context, id uuid.UUID, field string) (string, bool) {
	value, ok, err := s.cache.Get(ctx, id.String(), field)
	if err != nil {
		s.log.Warn("session cache read failed",
			zap.String("field", field),
			zap.Error(err),
		)
		return "", false
	}
	return value, ok
}

// sameSelection compares category selections as sets; assembly order is
// fixed, so caller order carries no meaning.
func sameSelection(a, b history.Selection) bool {
	if len(a) != len(b) {
		return false
	}
	for _, c := range a {
		if !b.Has(c) {
			return false
		}
	}
	return true
}

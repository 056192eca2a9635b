package consultation

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clinical-scribe/internal/history"
	"clinical-scribe/internal/platform/fhir"
)

type fakeRepo struct {
	store map[uuid.UUID]*Consultation
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{store: make(map[uuid.UUID]*Consultation)}
}

func (r *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	c, ok := r.store[id]
	if !ok {
		return nil, fmt.Errorf("consultation not found")
	}
	copied := *c
	return &copied, nil
}

func (r *fakeRepo) Save(ctx context.Context, c *Consultation) error {
	copied := *c
	r.store[c.ID] = &copied
	return nil
}

type fakePatients struct {
	patient *fhir.Patient
	err     error
}

func (f *fakePatients) FindPatient(ctx context.Context, patientID string) (*fhir.Patient, error) {
	return f.patient, f.err
}

type fakeContexts struct {
	data  *history.HistoryData
	calls int
}

func (f *fakeContexts) Collect(ctx context.Context, patientID string, selection history.Selection, lookback history.Lookback) *history.HistoryData {
	f.calls++
	return f.data
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioData []byte, fileName string) (string, error) {
	return f.text, f.err
}

type fakeNotes struct {
	note string
	err  error
}

func (f *fakeNotes) Generate(ctx context.Context, patient *fhir.Patient, patientContext, transcription, consultationType string) (string, error) {
	return f.note, f.err
}

func (f *fakeNotes) ExportPDF(note, patientID string) ([]byte, error) {
	return []byte("%PDF-" + note), nil
}

type fakeCache struct {
	values      map[string]string
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]string)}
}

func (f *fakeCache) Set(ctx context.Context, consultationID, field, value string) error {
	f.values[consultationID+":"+field] = value
	return nil
}

func (f *fakeCache) Get(ctx context.Context, consultationID, field string) (string, bool, error) {
	v, ok := f.values[consultationID+":"+field]
	return v, ok, nil
}

func (f *fakeCache) Invalidate(ctx context.Context, consultationID string, fields ...string) error {
	for _, field := range fields {
		delete(f.values, consultationID+":"+field)
		f.invalidated = append(f.invalidated, field)
	}
	return nil
}

type serviceFixture struct {
	svc         Service
	repo        *fakeRepo
	cache       *fakeCache
	contexts    *fakeContexts
	transcriber *fakeTranscriber
	notes       *fakeNotes
}

func newFixture() *serviceFixture {
	repo := newFakeRepo()
	cache := newFakeCache()
	transcriber := &fakeTranscriber{text: "patient reports headaches"}
	notes := &fakeNotes{note: "# Patient information:\ndraft"}

	contexts := &fakeContexts{data: &history.HistoryData{
		Allergies: &history.AllergyHistory{
			Records: []history.AllergyRecord{{Name: "Latex allergy"}},
			Text:    "The patient has the following allergies:\n\nName: Latex allergy\n",
		},
		Failures: map[history.Category]error{},
	}}

	svc := NewService(
		repo,
		&fakePatients{patient: &fhir.Patient{ResourceType: "Patient", ID: "p1"}},
		contexts,
		transcriber,
		notes,
		cache,
		zap.NewNop(),
	)
	return &serviceFixture{svc: svc, repo: repo, cache: cache, contexts: contexts, transcriber: transcriber, notes: notes}
}

func (f *serviceFixture) create(t *testing.T) *Consultation {
	t.Helper()
	c, err := f.svc.Create(context.Background(), "p1")
	require.NoError(t, err)
	return c
}

func TestCreateValidatesPatient(t *testing.T) {
	f := newFixture()
	c := f.create(t)
	assert.Equal(t, "p1", c.PatientID)

	badSvc := NewService(f.repo, &fakePatients{err: fmt.Errorf("not found")}, &fakeContexts{}, f.transcriber, f.notes, f.cache, zap.NewNop())
	_, err := badSvc.Create(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestTranscribeAudioStoresAndInvalidatesNote(t *testing.T) {
	f := newFixture()
	c := f.create(t)

	text, err := f.svc.TranscribeAudio(context.Background(), c.ID, []byte("wav"), "audio.wav")
	require.NoError(t, err)
	assert.Equal(t, "patient reports headaches", text)

	stored, err := f.svc.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, text, stored.Transcription)
	assert.Contains(t, f.cache.invalidated, "note")
}

func TestBuildContextStoresSelection(t *testing.T) {
	f := newFixture()
	c := f.create(t)

	selection := history.Selection{history.CategoryAllergies}
	text, err := f.svc.BuildContext(context.Background(), c.ID, selection, history.LookbackYear)
	require.NoError(t, err)
	assert.Contains(t, text, "Latex allergy")

	stored, err := f.svc.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, history.LookbackYear, stored.Lookback)
	assert.Equal(t, selection, stored.Categories)
	assert.Equal(t, text, stored.PatientContext)
}

func TestBuildContextServedFromSessionCache(t *testing.T) {
	f := newFixture()
	c := f.create(t)

	selection := history.AllSelected()
	first, err := f.svc.BuildContext(context.Background(), c.ID, selection, history.Lookback3Months)
	require.NoError(t, err)
	assert.Equal(t, 1, f.contexts.calls)

	second, err := f.svc.BuildContext(context.Background(), c.ID, selection, history.Lookback3Months)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.contexts.calls, "unchanged parameters are served from the cache")

	// Changing either parameter reruns the pipeline.
	_, err = f.svc.BuildContext(context.Background(), c.ID, selection, history.LookbackYear)
	require.NoError(t, err)
	assert.Equal(t, 2, f.contexts.calls)

	_, err = f.svc.BuildContext(context.Background(), c.ID, history.Selection{history.CategoryAllergies}, history.LookbackYear)
	require.NoError(t, err)
	assert.Equal(t, 3, f.contexts.calls)
}

func TestGenerateNoteRequiresTranscription(t *testing.T) {
	f := newFixture()
	c := f.create(t)

	_, err := f.svc.GenerateNote(context.Background(), c.ID, TypeInitialVisit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no transcription")
}

func TestGenerateNoteFailureLeavesStateIntact(t *testing.T) {
	f := newFixture()
	c := f.create(t)

	_, err := f.svc.TranscribeAudio(context.Background(), c.ID, []byte("wav"), "audio.wav")
	require.NoError(t, err)
	_, err = f.svc.BuildContext(context.Background(), c.ID, history.AllSelected(), history.Lookback3Months)
	require.NoError(t, err)

	f.notes.err = fmt.Errorf("completion upstream unavailable")
	_, err = f.svc.GenerateNote(context.Background(), c.ID, TypeFollowUp)
	require.Error(t, err)

	stored, err := f.svc.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.Transcription, "transcription survives a failed note generation")
	assert.NotEmpty(t, stored.PatientContext, "context survives a failed note generation")
	assert.Empty(t, stored.Note)
}

func TestProcessFullFlow(t *testing.T) {
	f := newFixture()
	c := f.create(t)

	result, err := f.svc.Process(context.Background(), c.ID, []byte("wav"), "audio.wav",
		history.AllSelected(), history.Lookback3Months, TypeFollowUp)
	require.NoError(t, err)

	assert.Equal(t, "patient reports headaches", result.Transcription)
	assert.Contains(t, result.PatientContext, "Latex allergy")
	assert.Equal(t, "# Patient information:\ndraft", result.Note)
	assert.Equal(t, TypeFollowUp, result.ConsultationType)
}

func TestProcessWithoutAudioSkipsNote(t *testing.T) {
	f := newFixture()
	c := f.create(t)

	result, err := f.svc.Process(context.Background(), c.ID, nil, "",
		history.AllSelected(), history.Lookback3Months, TypeInitialVisit)
	require.NoError(t, err)

	assert.Empty(t, result.Transcription)
	assert.Empty(t, result.Note, "no note without a transcription")
	assert.NotEmpty(t, result.PatientContext)
}

func TestExportPDFRequiresNote(t *testing.T) {
	f := newFixture()
	c := f.create(t)

	_, err := f.svc.ExportPDF(context.Background(), c.ID)
	require.Error(t, err)

	_, err = f.svc.TranscribeAudio(context.Background(), c.ID, []byte("wav"), "audio.wav")
	require.NoError(t, err)
	_, err = f.svc.GenerateNote(context.Background(), c.ID, TypeInitialVisit)
	require.NoError(t, err)

	pdfData, err := f.svc.ExportPDF(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, len(pdfData) > 0)
}

func TestHistoryView(t *testing.T) {
	f := newFixture()

	view, err := f.svc.History(context.Background(), "p1", history.AllSelected(), history.LookbackAll)
	require.NoError(t, err)
	require.Len(t, view.Active, 1)
	assert.Equal(t, "Latex allergy", view.Active[0].Name)
}

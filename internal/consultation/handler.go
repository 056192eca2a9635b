package consultation

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"clinical-scribe/internal/history"
)

// maxAudioUpload bounds consultation recordings to 25MB, the hosted
// transcription endpoint's file limit.
const maxAudioUpload = 25 << 20

type Handler struct {
	svc      Service
	validate *validator.Validate
}

func NewHandler(svc Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

type CreateConsultationRequest struct {
	PatientID string `json:"patient_id" validate:"required"`
}

type ContextRequest struct {
	Lookback   string   `json:"lookback" validate:"required"`
	Categories []string `json:"categories" validate:"required,min=1"`
}

type GenerateNoteRequest struct {
	ConsultationType string `json:"consultation_type" validate:"required"`
}

type UpdateNoteRequest struct {
	Note string `json:"note" validate:"required"`
}

func (h *Handler) CreateConsultation(w http.ResponseWriter, r *http.Request) {
	var req CreateConsultationRequest
	if err := h.decode(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c, err := h.svc.Create(r.Context(), req.PatientID)
	if err != nil {
		http.Error(w, "Failed to create consultation: "+err.Error(), http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *Handler) GetConsultation(w http.ResponseWriter, r *http.Request) {
	id, err := consultationID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handler) UploadAudio(w http.ResponseWriter, r *http.Request) {
	id, err := consultationID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	audioData, fileName, err := readAudio(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	text, err := h.svc.TranscribeAudio(r.Context(), id, audioData, fileName)
	if err != nil {
		http.Error(w, "Transcription failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"transcription": text})
}

func (h *Handler) BuildContext(w http.ResponseWriter, r *http.Request) {
	id, err := consultationID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req ContextRequest
	if err := h.decode(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	selection, lookback, err := parseContextParams(req.Categories, req.Lookback)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	text, err := h.svc.BuildContext(r.Context(), id, selection, lookback)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"patient_context": text})
}

func (h *Handler) GenerateNote(w http.ResponseWriter, r *http.Request) {
	id, err := consultationID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req GenerateNoteRequest
	if err := h.decode(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	note, err := h.svc.GenerateNote(r.Context(), id, req.ConsultationType)
	if err != nil {
		http.Error(w, "Note generation failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"note": note})
}

func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id, err := consultationID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req UpdateNoteRequest
	if err := h.decode(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.svc.UpdateNote(r.Context(), id, req.Note); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DownloadPDF(w http.ResponseWriter, r *http.Request) {
	id, err := consultationID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pdfData, err := h.svc.ExportPDF(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="consultation_report_%s.pdf"`, id))
	w.Write(pdfData)
}

func (h *Handler) PatientHistory(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")
	if patientID == "" {
		http.Error(w, "Missing patient id", http.StatusBadRequest)
		return
	}

	selection, lookback, err := parseContextParams(
		r.URL.Query()["category"],
		r.URL.Query().Get("lookback"),
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	view, err := h.svc.History(r.Context(), patientID, selection, lookback)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// ProcessConsultation is the one-shot flow: optional audio upload,
// context rebuild, note generation.
func (h *Handler) ProcessConsultation(w http.ResponseWriter, r *http.Request) {
	id, err := consultationID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	selection, lookback, err := parseContextParams(
		r.MultipartForm.Value["category"],
		r.FormValue("lookback"),
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	consultationType := r.FormValue("consultation_type")
	if consultationType == "" {
		consultationType = TypeInitialVisit
	}

	var audioData []byte
	fileName := "audio.wav"
	if file, header, err := r.FormFile("audio"); err == nil {
		defer file.Close()
		audioData, err = io.ReadAll(file)
		if err != nil {
			http.Error(w, "Failed to read audio file", http.StatusInternalServerError)
			return
		}
		if header.Filename != "" {
			fileName = header.Filename
		}
	}

	c, err := h.svc.Process(r.Context(), id, audioData, fileName, selection, lookback, consultationType)
	if err != nil {
		http.Error(w, "Processing failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handler) decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body")
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

func consultationID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid consultation id")
	}
	return id, nil
}

func parseContextParams(categories []string, lookback string) (history.Selection, history.Lookback, error) {
	selection, err := history.ParseSelection(categories)
	if err != nil {
		return nil, "", err
	}
	window, err := history.ParseLookback(lookback)
	if err != nil {
		return nil, "", err
	}
	return selection, window, nil
}

func readAudio(r *http.Request) ([]byte, string, error) {
	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		return nil, "", fmt.Errorf("invalid multipart form")
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		return nil, "", fmt.Errorf("missing audio file")
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read audio file")
	}
	fileName := header.Filename
	if fileName == "" {
		fileName = "audio.wav"
	}
	return audioData, fileName, nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/consultations", h.CreateConsultation)
	r.Get("/consultations/{id}", h.GetConsultation)
	r.Post("/consultations/{id}/audio", h.UploadAudio)
	r.Post("/consultations/{id}/context", h.BuildContext)
	r.Post("/consultations/{id}/note", h.GenerateNote)
	r.Put("/consultations/{id}/note", h.UpdateNote)
	r.Get("/consultations/{id}/note/pdf", h.DownloadPDF)
	r.Post("/consultations/{id}/process", h.ProcessConsultation)
	r.Get("/patients/{patientID}/history", h.PatientHistory)
}

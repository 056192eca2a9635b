package consultation

import (
	"time"

	"github.com/google/uuid"

	"clinical-scribe/internal/history"
)

// Consultation is the aggregate for one recorded doctor-patient
// session: the selected patient, the caller-chosen context policy, the
// transcription, the assembled patient context and the generated note.
type Consultation struct {
	ID        uuid.UUID `json:"id" db:"id"`
	PatientID string    `json:"patient_id" db:"patient_id"`

	ConsultationType string            `json:"consultation_type" db:"consultation_type"`
	Lookback         history.Lookback  `json:"lookback" db:"lookback"`
	Categories       history.Selection `json:"categories" db:"categories"`

	Transcription  string `json:"transcription" db:"transcription"`
	PatientContext string `json:"patient_context" db:"patient_context"`
	Note           string `json:"note" db:"note"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Consultation types offered by the UI.
const (
	TypeInitialVisit       = "Initial Visit"
	TypeFollowUp           = "Follow-up"
	TypeSpecialistReferral = "Specialist Referral"
	TypeRegularCheckUp     = "Regular Check-up"
)

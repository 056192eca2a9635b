package consultation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	Save(ctx context.Context, c *Consultation) error
}

type postgresRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &postgresRepo{db: db}
}

func (r *postgresRepo) GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	query := `SELECT id, patient_id, consultation_type, lookback, categories, transcription, patient_context, note, created_at, updated_at
		FROM consultations WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)

	var c Consultation
	var categoriesJSON []byte

	err := row.Scan(
		&c.ID,
		&c.PatientID,
		&c.ConsultationType,
		&c.Lookback,
		&categoriesJSON,
		&c.Transcription,
		&c.PatientContext,
		&c.Note,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("consultation not found")
		}
		return nil, err
	}

	if len(categoriesJSON) > 0 {
		if err := json.Unmarshal(categoriesJSON, &c.Categories); err != nil {
			return nil, fmt.Errorf("failed to unmarshal categories: %w", err)
		}
	}

	return &c, nil
}

func (r *postgresRepo) Save(ctx context.Context, c *Consultation) error {
	categoriesJSON, err := json.Marshal(c.Categories)
	if err != nil {
		return err
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.UpdatedAt = time.Now()

	query := `
		INSERT INTO consultations (id, patient_id, consultation_type, lookback, categories, transcription, patient_context, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			consultation_type = $3,
			lookback = $4,
			categories = $5,
			transcription = $6,
			patient_context = $7,
			note = $8,
			updated_at = $10
	`
	_, err = r.db.ExecContext(ctx, query,
		c.ID, c.PatientID, c.ConsultationType, c.Lookback, categoriesJSON,
		c.Transcription, c.PatientContext, c.Note, c.CreatedAt, c.UpdatedAt)
	return err
}

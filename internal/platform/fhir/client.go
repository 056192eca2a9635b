package fhir

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Resource kinds consumed by the aggregation pipeline.
const (
	ResourceAllergyIntolerance = "AllergyIntolerance"
	ResourceCondition          = "Condition"
	ResourceMedicationRequest  = "MedicationRequest"
	ResourceDiagnosticReport   = "DiagnosticReport"
	ResourcePatient            = "Patient"
)

// Client is a thin search client against a FHIR R4 record server.
// It owns no retry or caching policy; a failed search is returned to
// the caller as-is.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	log         *zap.Logger
}

func NewClient(baseURL, accessToken string, log *zap.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// SearchResource issues a parametrized search for one resource kind.
// A response without an "entry" list is a legitimate empty result and
// decodes to a Bundle with no entries.
func (c *Client) SearchResource(ctx context.Context, resourceType string, params map[string]string) (*Bundle, error) {
	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}

	endpoint := c.baseURL + "/" + resourceType
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s search request", resourceType)
	}
	req.Header.Set("Accept", "application/fhir+json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "search %s", resourceType)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		c.log.Error("fhir search failed",
			zap.String("resource", resourceType),
			zap.Int("status", resp.StatusCode),
		)
		return nil, errors.Errorf("search %s: server returned %s: %s", resourceType, resp.Status, string(body))
	}

	var bundle Bundle
	if err := json.NewDecoder(resp.Body).Decode(&bundle); err != nil {
		return nil, errors.Wrapf(err, "decode %s search bundle", resourceType)
	}

	c.log.Debug("fhir search completed",
		zap.String("resource", resourceType),
		zap.Int("entries", len(bundle.Entry)),
	)
	return &bundle, nil
}

// FindPatient resolves a patient's demographics by logical id.
func (c *Client) FindPatient(ctx context.Context, patientID string) (*Patient, error) {
	bundle, err := c.SearchResource(ctx, ResourcePatient, map[string]string{"_id": patientID})
	if err != nil {
		return nil, err
	}
	if len(bundle.Entry) == 0 {
		return nil, errors.Errorf("patient %s not found", patientID)
	}

	var patient Patient
	if err := json.Unmarshal(bundle.Entry[0].Resource, &patient); err != nil {
		return nil, errors.Wrap(err, "decode patient resource")
	}
	if patient.ResourceType != ResourcePatient {
		return nil, errors.Errorf("expected Patient resource, got %q", patient.ResourceType)
	}
	return &patient, nil
}

package fhir

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSearchResourcePassesParamsAndToken(t *testing.T) {
	var gotPath, gotPatient, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotPatient = r.URL.Query().Get("patient")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/fhir+json")
		w.Write([]byte(`{"resourceType":"Bundle","type":"searchset","total":1,"entry":[{"resource":{"resourceType":"Condition","id":"c1"}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token", zap.NewNop())
	bundle, err := client.SearchResource(context.Background(), ResourceCondition, map[string]string{"patient": "p1"})
	require.NoError(t, err)

	assert.Equal(t, "/Condition", gotPath)
	assert.Equal(t, "p1", gotPatient)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Len(t, bundle.Entry, 1)
}

func TestSearchResourceMissingEntryIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resourceType":"Bundle","type":"searchset","total":0}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", zap.NewNop())
	bundle, err := client.SearchResource(context.Background(), ResourceAllergyIntolerance, map[string]string{"patient": "p1"})
	require.NoError(t, err)
	assert.Empty(t, bundle.Entry, "a bundle without entry is zero results, not an error")
}

func TestSearchResourceServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", zap.NewNop())
	_, err := client.SearchResource(context.Background(), ResourceCondition, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Condition")
}

func TestFindPatient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "p1", r.URL.Query().Get("_id"))
		w.Write([]byte(`{"resourceType":"Bundle","type":"searchset","entry":[{"resource":{"resourceType":"Patient","id":"p1","gender":"female","birthDate":"1980-04-12","name":[{"given":["Jane"],"family":"Doe"}]}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", zap.NewNop())
	patient, err := client.FindPatient(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", patient.ID)
	assert.Equal(t, "female", patient.Gender)
	assert.Equal(t, "Doe", patient.Name[0].Family)
}

func TestFindPatientNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resourceType":"Bundle","type":"searchset"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", zap.NewNop())
	_, err := client.FindPatient(context.Background(), "missing")
	assert.Error(t, err)
}

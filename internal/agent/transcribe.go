package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

const (
	transcriptionURL   = "https://api.groq.com/openai/v1/audio/transcriptions"
	transcriptionModel = "whisper-large-v3-turbo"
)

type TranscriptionClient interface {
	Transcribe(ctx context.Context, audioData []byte, fileName string) (string, error)
}

type whisperClient struct {
	apiKey     string
	httpClient *http.Client
}

func NewWhisperClient(apiKey string) TranscriptionClient {
	return &whisperClient{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads one consultation recording and returns the plain
// transcription text. Chunking and resampling are the caller's concern;
// this client is a single passthrough upload.
func (c *whisperClient) Transcribe(ctx context.Context, audioData []byte, fileName string) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audioData); err != nil {
		return "", err
	}
	if err := writer.WriteField("model", transcriptionModel); err != nil {
		return "", err
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return "", err
	}
	if err := writer.WriteField("temperature", "0"); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, transcriptionURL, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcription API error: %s - %s", resp.Status, string(respBody))
	}

	var result transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Text, nil
}

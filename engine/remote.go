package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"murmur/encoder"
	"murmur/vad"
)

// Remote transcribes against an OpenAI-compatible /audio/transcriptions
// endpoint. Utterances are FLAC-encoded before upload to cut payload
// size roughly in half.
type Remote struct {
	url    string
	apiKey string
	model  string
	client *http.Client

	mu   sync.Mutex
	lang string
}

func NewRemote(url, apiKey, model string) *Remote {
	return &Remote{
		url:    url,
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (r *Remote) Name() string { return "remote" }

func (r *Remote) SetLanguage(lang string) {
	r.mu.Lock()
	r.lang = lang
	r.mu.Unlock()
}

func (r *Remote) GetLanguage() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lang
}

type remoteResponse struct {
	Text string `json:"text"`
}

func (r *Remote) Transcribe(ctx context.Context, utt *vad.Utterance) (string, error) {
	audioData, err := encoder.EncodePCM(utt.Samples())
	if err != nil {
		return "", fmt.Errorf("encoding utterance: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.flac")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audioData); err != nil {
		return "", err
	}

	if r.model != "" {
		writer.WriteField("model", r.model)
	}
	writer.WriteField("response_format", "json")
	if lang := r.GetLanguage(); lang != "" {
		writer.WriteField("language", lang)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", r.url, &body)
	if err != nil {
		return "", err
	}
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription API error %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed remoteResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("transcription response parse error: %w", err)
	}

	return strings.TrimSpace(parsed.Text), nil
}

func (r *Remote) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

package transcription

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/adimov-eth/transcribe/internal/types"
)

// DefaultWhisperModel is the recognition model requested by default
const DefaultWhisperModel = "whisper-1"

const transcriptionsEndpoint = "https://api.openai.com/v1/audio/transcriptions"

// WhisperClient calls the remote speech-to-text service
type WhisperClient struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewWhisperClient creates a recognition client for the given API key
func NewWhisperClient(apiKey, model string) (*WhisperClient, error) {
	if apiKey == "" {
		return nil, types.NewError(types.CodeConfig, "API key is required")
	}
	if model == "" {
		model = DefaultWhisperModel
	}
	return &WhisperClient{
		apiKey:   apiKey,
		model:    model,
		endpoint: transcriptionsEndpoint,
		client:   &http.Client{},
	}, nil
}

// Model returns the configured recognition model name
func (wc *WhisperClient) Model() string {
	return wc.model
}

type whisperResponse struct {
	Text string `json:"text"`
}

// Transcribe submits one audio file and returns the recognized text.
// An oversized-payload rejection maps to FILE_TOO_LARGE; every other
// failure maps to API_ERROR with the underlying message.
func (wc *WhisperClient) Transcribe(audioPath, language string) (string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return "", types.WrapError(types.CodeAPI, err, "transcription failed: %v", err)
	}
	defer file.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("model", wc.model); err != nil {
		return "", types.WrapError(types.CodeAPI, err, "transcription failed: %v", err)
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return "", types.WrapError(types.CodeAPI, err, "transcription failed: %v", err)
		}
	}

	fw, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", types.WrapError(types.CodeAPI, err, "transcription failed: %v", err)
	}
	if _, err := io.Copy(fw, file); err != nil {
		return "", types.WrapError(types.CodeAPI, err, "transcription failed: %v", err)
	}
	if err := mw.Close(); err != nil {
		return "", types.WrapError(types.CodeAPI, err, "transcription failed: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, wc.endpoint, &body)
	if err != nil {
		return "", types.WrapError(types.CodeAPI, err, "transcription failed: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+wc.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := wc.client.Do(req)
	if err != nil {
		return "", types.WrapError(types.CodeAPI, err, "transcription failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return "", types.NewError(types.CodeFileTooLarge,
			"file too large for recognition service, consider reducing chunk size")
	}
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", types.NewError(types.CodeAPI,
			"transcription failed: http "+resp.Status+": "+strings.TrimSpace(string(respBody)))
	}

	var wr whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return "", types.WrapError(types.CodeAPI, err, "transcription failed: %v", err)
	}

	log.Printf("Transcribed %s (%d chars)", filepath.Base(audioPath), len(wr.Text))
	return wr.Text, nil
}

package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"inspection-chat/models"
)

// BackendService calls the inspection backend's /analyze and /chat endpoints
type BackendService struct {
	baseURL string
	client  *http.Client
}

// NewBackendService creates a client for the backend at baseURL
func NewBackendService(baseURL string, timeout time.Duration) *BackendService {
	return &BackendService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// BackendChatRequest is the /chat request body
type BackendChatRequest struct {
	Message             string            `json:"message"`
	SystemPrompt        string            `json:"systemPrompt"`
	Context             string            `json:"context"`
	ConversationHistory []models.ChatTurn `json:"conversationHistory"`
}

// SubmitInspectionPhotos uploads the photos and returns the generated report
func (s *BackendService) SubmitInspectionPhotos(ctx context.Context, photos []models.Photo) (string, error) {
	const op = "analyze"

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	categories := make([]string, 0, len(photos))
	for i, p := range photos {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename="photo_%d.jpg"`, i))
		h.Set("Content-Type", contentType(p))
		part, err := w.CreatePart(h)
		if err != nil {
			return "", models.ServiceFailure(op, fmt.Errorf("failed to create form part: %w", err))
		}
		if _, err := part.Write(p.Data); err != nil {
			return "", models.ServiceFailure(op, fmt.Errorf("failed to write photo: %w", err))
		}
		categories = append(categories, p.Category)
	}

	catJSON, err := json.Marshal(categories)
	if err != nil {
		return "", models.ServiceFailure(op, fmt.Errorf("failed to marshal categories: %w", err))
	}
	if err := w.WriteField("categories", string(catJSON)); err != nil {
		return "", models.ServiceFailure(op, fmt.Errorf("failed to write categories: %w", err))
	}
	if err := w.Close(); err != nil {
		return "", models.ServiceFailure(op, fmt.Errorf("failed to close form: %w", err))
	}

	req, err := newRequest(ctx, http.MethodPost, s.baseURL+"/analyze", &buf, op)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	body, err := do(s.client, req, op)
	if err != nil {
		return "", err
	}
	report := strings.TrimSpace(string(body))
	if report == "" {
		return "", models.ServiceFailure(op, fmt.Errorf("empty report from backend"))
	}
	return report, nil
}

// AskFollowUp sends one chat turn and returns the reply text
func (s *BackendService) AskFollowUp(ctx context.Context, message string, payload models.PromptPayload) (string, error) {
	const op = "chat"

	jsonBody, err := json.Marshal(BackendChatRequest{
		Message:             message,
		SystemPrompt:        payload.SystemPrompt,
		Context:             payload.Context,
		ConversationHistory: payload.History,
	})
	if err != nil {
		return "", models.ServiceFailure(op, fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := newRequest(ctx, http.MethodPost, s.baseURL+"/chat", bytes.NewReader(jsonBody), op)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := do(s.client, req, op)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

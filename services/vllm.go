package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"inspection-chat/models"
)

type VLLMService struct {
	baseURL string
	model   string
	client  *http.Client
}

type VLLMMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string, or []VLLMContentPart for images
}

type VLLMContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *VLLMImageURL `json:"image_url,omitempty"`
}

type VLLMImageURL struct {
	URL string `json:"url"`
}

type VLLMRequest struct {
	Model       string        `json:"model"`
	Messages    []VLLMMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type VLLMResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func NewVLLMService(baseURL, model string, timeout time.Duration) *VLLMService {
	return &VLLMService{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (s *VLLMService) SubmitInspectionPhotos(ctx context.Context, photos []models.Photo) (string, error) {
	parts := make([]VLLMContentPart, 0, 2*len(photos)+1)
	for _, p := range photos {
		dataURL := fmt.Sprintf("data:%s;base64,%s", contentType(p), base64.StdEncoding.EncodeToString(p.Data))
		parts = append(parts,
			VLLMContentPart{Type: "text", Text: "Category: " + p.Category},
			VLLMContentPart{Type: "image_url", ImageURL: &VLLMImageURL{URL: dataURL}},
		)
	}
	parts = append(parts, VLLMContentPart{Type: "text", Text: "Write the inspection report."})

	return s.complete(ctx, "analyze", []VLLMMessage{
		{Role: "system", Content: reportPrompt},
		{Role: "user", Content: parts},
	})
}

func (s *VLLMService) AskFollowUp(ctx context.Context, _ string, payload models.PromptPayload) (string, error) {
	turns := mergeTurns(payload.History)
	vllmMessages := make([]VLLMMessage, 0, len(turns)+1)
	vllmMessages = append(vllmMessages, VLLMMessage{Role: "system", Content: payload.SystemPrompt})
	for _, t := range turns {
		vllmMessages = append(vllmMessages, VLLMMessage{Role: t.Role, Content: t.Content})
	}

	return s.complete(ctx, "chat", vllmMessages)
}

func (s *VLLMService) complete(ctx context.Context, op string, messages []VLLMMessage) (string, error) {
	reqBody := VLLMRequest{
		Model:       s.model,
		Messages:    messages,
		MaxTokens:   4096,
		Temperature: 0.7,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", models.ServiceFailure(op, fmt.Errorf("failed to marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/v1/chat/completions", s.baseURL)
	req, err := newRequest(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData), op)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := do(s.client, req, op)
	if err != nil {
		return "", err
	}

	var vllmResp VLLMResponse
	if err := json.Unmarshal(body, &vllmResp); err != nil {
		return "", models.ServiceFailure(op, fmt.Errorf("failed to parse response: %w", err))
	}

	if len(vllmResp.Choices) == 0 {
		return "", models.ServiceFailure(op, fmt.Errorf("no response from vLLM"))
	}

	return vllmResp.Choices[0].Message.Content, nil
}

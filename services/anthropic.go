package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"inspection-chat/models"
)

const anthropicAPIURL = "https://api.anthropic.com/v1/messages"

// AnthropicService generates reports and replies with Claude directly
type AnthropicService struct {
	apiKey string
	model  string
	url    string
	client *http.Client
}

// NewAnthropicService creates a new Anthropic service
func NewAnthropicService(apiKey, model string, timeout time.Duration) *AnthropicService {
	return &AnthropicService{
		apiKey: apiKey,
		model:  model,
		url:    anthropicAPIURL,
		client: &http.Client{Timeout: timeout},
	}
}

// AnthropicContent is one content block of a message
type AnthropicContent struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *AnthropicImageSource `json:"source,omitempty"`
}

// AnthropicImageSource carries a base64 encoded image
type AnthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// AnthropicMessage represents a message in the Anthropic API format
type AnthropicMessage struct {
	Role    string             `json:"role"`
	Content []AnthropicContent `json:"content"`
}

// AnthropicRequest represents a request to the Anthropic API
type AnthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []AnthropicMessage `json:"messages"`
}

// AnthropicResponse represents a response from the Anthropic API
type AnthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// SubmitInspectionPhotos asks Claude to write the report from the photos
func (s *AnthropicService) SubmitInspectionPhotos(ctx context.Context, photos []models.Photo) (string, error) {
	content := make([]AnthropicContent, 0, 2*len(photos)+1)
	for _, p := range photos {
		content = append(content,
			AnthropicContent{Type: "text", Text: "Category: " + p.Category},
			AnthropicContent{Type: "image", Source: &AnthropicImageSource{
				Type:      "base64",
				MediaType: contentType(p),
				Data:      base64.StdEncoding.EncodeToString(p.Data),
			}},
		)
	}
	content = append(content, AnthropicContent{Type: "text", Text: "Write the inspection report."})

	return s.send(ctx, "analyze", AnthropicRequest{
		Model:     s.model,
		MaxTokens: 4096,
		System:    reportPrompt,
		Messages:  []AnthropicMessage{{Role: "user", Content: content}},
	})
}

// AskFollowUp continues the conversation about the report
func (s *AnthropicService) AskFollowUp(ctx context.Context, _ string, payload models.PromptPayload) (string, error) {
	turns := mergeTurns(payload.History)
	messages := make([]AnthropicMessage, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, AnthropicMessage{
			Role:    t.Role,
			Content: []AnthropicContent{{Type: "text", Text: t.Content}},
		})
	}

	return s.send(ctx, "chat", AnthropicRequest{
		Model:     s.model,
		MaxTokens: 4096,
		System:    payload.SystemPrompt,
		Messages:  messages,
	})
}

func (s *AnthropicService) send(ctx context.Context, op string, reqBody AnthropicRequest) (string, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", models.ServiceFailure(op, fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := newRequest(ctx, http.MethodPost, s.url, bytes.NewBuffer(jsonBody), op)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	body, err := do(s.client, req, op)
	if err != nil {
		return "", err
	}

	var anthropicResp AnthropicResponse
	if err := json.Unmarshal(body, &anthropicResp); err != nil {
		return "", models.ServiceFailure(op, fmt.Errorf("failed to unmarshal response: %w", err))
	}

	if anthropicResp.Error != nil {
		return "", models.ServiceFailure(op, fmt.Errorf("anthropic API error: %s", anthropicResp.Error.Message))
	}

	if len(anthropicResp.Content) == 0 {
		return "", models.ServiceFailure(op, fmt.Errorf("empty response from Anthropic"))
	}

	return anthropicResp.Content[0].Text, nil
}

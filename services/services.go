package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"inspection-chat/models"
)

// reportPrompt is sent by the adapters that generate the report themselves
const reportPrompt = `You are a professional home inspector. Analyze the attached photos, grouped by inspection category, and write an inspection report.

Format:
- Start each category with a "### " heading
- List findings as "- " bullets, with the severity in **bold**
- Finish with a "### Summary" section listing repair priorities`

// errorSnippetLimit bounds how much of an error body ends up in an error message
const errorSnippetLimit = 512

// do sends req and returns the body of a 2xx response. Transport errors are
// network failures; anything the server answered with is a service failure
func do(client *http.Client, req *http.Request, op string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, models.NetworkFailure(op, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NetworkFailure(op, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, models.ServiceFailure(op, fmt.Errorf("status %d: %s", resp.StatusCode, snippet(body)))
	}
	return body, nil
}

func newRequest(ctx context.Context, method, url string, body io.Reader, op string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, models.ServiceFailure(op, fmt.Errorf("failed to create request: %w", err))
	}
	return req, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > errorSnippetLimit {
		s = s[:errorSnippetLimit] + "..."
	}
	return s
}

func contentType(p models.Photo) string {
	if p.ContentType != "" {
		return p.ContentType
	}
	return "image/jpeg"
}

// mergeTurns folds consecutive turns of the same role and makes the
// conversation open with a user turn, as chat APIs require
func mergeTurns(turns []models.ChatTurn) []models.ChatTurn {
	out := make([]models.ChatTurn, 0, len(turns)+1)
	if len(turns) > 0 && turns[0].Role != "user" {
		out = append(out, models.ChatTurn{Role: "user", Content: "Please share the inspection report for my property."})
	}
	for _, t := range turns {
		if n := len(out); n > 0 && out[n-1].Role == t.Role {
			out[n-1].Content += "\n\n" + t.Content
			continue
		}
		out = append(out, t)
	}
	return out
}

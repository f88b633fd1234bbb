package session

import (
	"fmt"

	"inspection-chat/models"
)

// DefaultSystemPrompt is the inspector persona used when no other prompt is configured
const DefaultSystemPrompt = `You are a highly professional home inspection consultant evaluating residential properties. You have access to detailed inspection reports and can answer follow-up questions about the analysis.

Key capabilities:
- Provide detailed explanations of inspection findings
- Offer specific maintenance recommendations
- Explain building codes and safety standards
- Assess repair priorities and budget estimates
- Clarify technical terminology
- Address homeowner concerns professionally

Always maintain a professional, authoritative tone while being helpful and accessible to homeowners.

IMPORTANT: You have access to the complete inspection report from this property inspection. Always reference the specific findings from the initial report when answering questions. Maintain continuity with the original inspection analysis.`

const (
	reportStatusComplete = "Complete inspection findings and analysis"
	reportStatusPending  = "Analysis in progress"

	// pendingContext stands in for the report text until generation completes
	pendingContext = "Report being generated (analysis in progress)"
)

const contextTemplate = `%s

INSPECTION CONTEXT:
- You have previously provided a detailed inspection report for this property
- The initial report contains: %s
- Maintain continuity with all previous responses in this conversation

Initial Inspection Report Summary:
%s

Continue the conversation while maintaining full context of the inspection and all previous exchanges.`

// BuildPrompt assembles the payload for one follow-up turn. History must hold
// the prior messages in order; notices and unsent messages are skipped and userMessage is appended last
func BuildPrompt(systemPrompt, report string, history []models.Message, userMessage string) models.PromptPayload {
	status, body := reportStatusComplete, report
	if report == "" {
		status, body = reportStatusPending, pendingContext
	}

	turns := make([]models.ChatTurn, 0, len(history)+1)
	for _, msg := range history {
		// Unsent messages never reached the backend; a resend carries them as userMessage
		if msg.Notice || msg.Unsent {
			continue
		}
		role := "assistant"
		if msg.Sender == models.SenderUser {
			role = "user"
		}
		turns = append(turns, models.ChatTurn{Role: role, Content: msg.Text})
	}
	turns = append(turns, models.ChatTurn{Role: "user", Content: userMessage})

	return models.PromptPayload{
		SystemPrompt: fmt.Sprintf(contextTemplate, systemPrompt, status, body),
		Context:      body,
		History:      turns,
	}
}

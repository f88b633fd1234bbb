package session

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspection-chat/models"
)

func msg(sender models.Sender, text string) models.Message {
	return models.Message{ID: uuid.New(), Sender: sender, Text: text, DeliveryState: models.DeliveryComplete}
}

func TestBuildPromptIncludesReportAndHistory(t *testing.T) {
	history := []models.Message{
		msg(models.SenderAssistant, "Report body"),
		msg(models.SenderUser, "Is the roof old?"),
		msg(models.SenderAssistant, "About 15 years."),
	}

	p := BuildPrompt("SYSTEM", "Report body", history, "What about the gutters?")

	assert.True(t, strings.HasPrefix(p.SystemPrompt, "SYSTEM\n"))
	assert.Contains(t, p.SystemPrompt, "The initial report contains: Complete inspection findings and analysis")
	assert.Contains(t, p.SystemPrompt, "Initial Inspection Report Summary:\nReport body")
	assert.Equal(t, "Report body", p.Context)

	require.Len(t, p.History, 4)
	assert.Equal(t, models.ChatTurn{Role: "assistant", Content: "Report body"}, p.History[0])
	assert.Equal(t, models.ChatTurn{Role: "user", Content: "Is the roof old?"}, p.History[1])
	assert.Equal(t, models.ChatTurn{Role: "assistant", Content: "About 15 years."}, p.History[2])
	assert.Equal(t, models.ChatTurn{Role: "user", Content: "What about the gutters?"}, p.History[3])
}

func TestBuildPromptPendingReport(t *testing.T) {
	p := BuildPrompt(DefaultSystemPrompt, "", nil, "Any results yet?")

	assert.Contains(t, p.SystemPrompt, "The initial report contains: Analysis in progress")
	assert.NotEmpty(t, p.Context)
	assert.Contains(t, p.Context, "analysis in progress")
	require.Len(t, p.History, 1)
	assert.Equal(t, "Any results yet?", p.History[0].Content)
}

func TestBuildPromptSkipsNotices(t *testing.T) {
	placeholder := msg(models.SenderAssistant, placeholderText)
	placeholder.Notice = true
	failure := msg(models.SenderAssistant, replyFailedText)
	failure.Notice = true

	history := []models.Message{placeholder, msg(models.SenderUser, "Hello"), failure}
	p := BuildPrompt("S", "R", history, "Again?")

	assert.Equal(t, []models.ChatTurn{
		{Role: "user", Content: "Hello"},
		{Role: "user", Content: "Again?"},
	}, p.History)
}

func TestBuildPromptSkipsUnsent(t *testing.T) {
	unsent := msg(models.SenderUser, "Is the deck safe?")
	unsent.Unsent = true

	p := BuildPrompt("S", "R", []models.Message{msg(models.SenderAssistant, "R"), unsent}, "Is the deck safe?")

	assert.Equal(t, []models.ChatTurn{
		{Role: "assistant", Content: "R"},
		{Role: "user", Content: "Is the deck safe?"},
	}, p.History)
}

func TestBuildPromptIsDeterministic(t *testing.T) {
	history := []models.Message{msg(models.SenderAssistant, "R"), msg(models.SenderUser, "Q")}

	first := BuildPrompt("S", "R", history, "next")
	second := BuildPrompt("S", "R", history, "next")

	assert.Equal(t, first, second)
}

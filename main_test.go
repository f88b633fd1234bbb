package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"inspection-chat/config"
	"inspection-chat/models"
	"inspection-chat/photos"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePhotoArgs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roof.jpg")
	require.NoError(t, os.WriteFile(path, []byte("roof"), 0o600))

	set, err := parsePhotoArgs([]string{"Roofing=" + path, "Basement & Foundation=" + path})
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())

	_, err = parsePhotoArgs([]string{path})
	assert.ErrorContains(t, err, "expected Category=path")

	_, err = parsePhotoArgs([]string{"Garage=" + path})
	assert.ErrorIs(t, err, photos.ErrUnknownCategory)

	_, err = parsePhotoArgs([]string{"Roofing=" + filepath.Join(dir, "missing.jpg")})
	assert.Error(t, err)
}

func TestChatViewStreamsDeltas(t *testing.T) {
	var out bytes.Buffer
	v := &chatView{out: &out, styles: newChatStyles(&out), shown: make(map[uuid.UUID]shownMessage)}
	id := uuid.New()

	v.show(models.Message{ID: id, Sender: models.SenderAssistant, Text: "Ro", DeliveryState: models.DeliveryInProgress})
	v.show(models.Message{ID: id, Sender: models.SenderAssistant, Text: "Roof", DeliveryState: models.DeliveryInProgress})
	v.show(models.Message{ID: id, Sender: models.SenderAssistant, Text: "Roof ok", DeliveryState: models.DeliveryComplete})
	v.show(models.Message{ID: id, Sender: models.SenderAssistant, Text: "Roof ok", DeliveryState: models.DeliveryComplete})

	assert.Equal(t, "Inspector: Roof ok\n", out.String())
}

func TestChatViewReplacedTextAndUnsent(t *testing.T) {
	var out bytes.Buffer
	v := &chatView{out: &out, styles: newChatStyles(&out), shown: make(map[uuid.UUID]shownMessage)}
	placeholder := uuid.New()
	user := uuid.New()

	v.show(models.Message{ID: placeholder, Sender: models.SenderAssistant, Text: "analyzing...", Notice: true, DeliveryState: models.DeliveryInProgress})
	v.show(models.Message{ID: placeholder, Sender: models.SenderAssistant, Text: "Report", DeliveryState: models.DeliveryComplete})
	v.show(models.Message{ID: user, Sender: models.SenderUser, Text: "Why?", DeliveryState: models.DeliveryComplete})
	v.show(models.Message{ID: user, Sender: models.SenderUser, Text: "Why?", Unsent: true, DeliveryState: models.DeliveryComplete})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{
		"Inspector: analyzing...",
		"Inspector: Report",
		"You: Why?",
		"You: Why? (not sent)",
	}, lines)
}

func TestWriteReportList(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeReportList(&out, nil))
	assert.Equal(t, "No archived reports.\n", out.String())

	out.Reset()
	id := uuid.New()
	require.NoError(t, writeReportList(&out, []models.ArchivedReport{{
		ID:         id,
		Categories: []string{"Kitchen", "Utilities"},
		CreatedAt:  time.Now(),
	}}))
	assert.Contains(t, out.String(), "CATEGORIES")
	assert.Contains(t, out.String(), id.String())
	assert.Contains(t, out.String(), "Kitchen, Utilities")
}

func TestMarshalConfigMasksSecrets(t *testing.T) {
	cfg := &config.Config{
		Anthropic: config.AnthropicConfig{APIKey: "sk-secret", Model: "m"},
		Database:  config.DatabaseConfig{URL: "postgres://app:hunter2@db:5432/inspector"},
		Session:   config.SessionConfig{TickInterval: 20 * time.Millisecond},
	}

	data, err := marshalConfig(cfg)
	require.NoError(t, err)
	text := string(data)

	assert.NotContains(t, text, "sk-secret")
	assert.NotContains(t, text, "hunter2")
	assert.Contains(t, text, "app:xxxxx@db:5432")
	assert.Contains(t, text, "tick_interval: 20ms")
	assert.Equal(t, "sk-secret", cfg.Anthropic.APIKey)
}

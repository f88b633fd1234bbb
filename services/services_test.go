package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspection-chat/models"
)

func TestBackendSubmitInspectionPhotos(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		files := r.MultipartForm.File["photo"]
		require.Len(t, files, 2)
		assert.Equal(t, "photo_0.jpg", files[0].Filename)
		assert.Equal(t, "photo_1.jpg", files[1].Filename)

		f, err := files[1].Open()
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, []byte("kitchen"), data)

		var cats []string
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("categories")), &cats))
		assert.Equal(t, []string{"Roofing", "Kitchen"}, cats)

		io.WriteString(w, "### Roofing\n- Shingles worn\n")
	}))
	defer srv.Close()

	svc := NewBackendService(srv.URL+"/", time.Second)
	report, err := svc.SubmitInspectionPhotos(context.Background(), []models.Photo{
		{Category: "Roofing", Data: []byte("roof")},
		{Category: "Kitchen", Data: []byte("kitchen")},
	})

	require.NoError(t, err)
	assert.Equal(t, "### Roofing\n- Shingles worn", report)
}

func TestBackendAskFollowUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req BackendChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "What about the roof?", req.Message)
		assert.Equal(t, "SYS", req.SystemPrompt)
		assert.Equal(t, "R", req.Context)
		assert.Len(t, req.ConversationHistory, 2)

		io.WriteString(w, "Roof is fine.")
	}))
	defer srv.Close()

	svc := NewBackendService(srv.URL, time.Second)
	reply, err := svc.AskFollowUp(context.Background(), "What about the roof?", models.PromptPayload{
		SystemPrompt: "SYS",
		Context:      "R",
		History: []models.ChatTurn{
			{Role: "assistant", Content: "R"},
			{Role: "user", Content: "What about the roof?"},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "Roof is fine.", reply)
}

func TestBackendFailureKinds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusInternalServerError)
	}))
	svc := NewBackendService(srv.URL, time.Second)

	_, err := svc.AskFollowUp(context.Background(), "q", models.PromptPayload{})
	assert.ErrorIs(t, err, models.ErrServiceFailure)
	assert.Contains(t, err.Error(), "status 500")

	srv.Close()
	_, err = svc.AskFollowUp(context.Background(), "q", models.PromptPayload{})
	assert.ErrorIs(t, err, models.ErrNetworkFailure)
}

func TestBackendTimeoutIsNetworkFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	svc := NewBackendService(srv.URL, 20*time.Millisecond)
	_, err := svc.SubmitInspectionPhotos(context.Background(), []models.Photo{{Category: "Roofing"}})

	assert.ErrorIs(t, err, models.ErrNetworkFailure)
}

func TestBackendEmptyReportIsServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	_, err := NewBackendService(srv.URL, time.Second).SubmitInspectionPhotos(context.Background(), nil)
	assert.ErrorIs(t, err, models.ErrServiceFailure)
}

func TestAnthropicRequests(t *testing.T) {
	var got []AnthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		var req AnthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		got = append(got, req)
		io.WriteString(w, `{"content":[{"type":"text","text":"done"}]}`)
	}))
	defer srv.Close()

	svc := NewAnthropicService("secret", "claude-test", time.Second)
	svc.url = srv.URL

	text, err := svc.SubmitInspectionPhotos(context.Background(), []models.Photo{{Category: "Bathroom", Data: []byte{1, 2, 3}}})
	require.NoError(t, err)
	assert.Equal(t, "done", text)

	_, err = svc.AskFollowUp(context.Background(), "q", models.PromptPayload{
		SystemPrompt: "SYS",
		History: []models.ChatTurn{
			{Role: "assistant", Content: "report"},
			{Role: "user", Content: "q"},
		},
	})
	require.NoError(t, err)

	require.Len(t, got, 2)
	report := got[0]
	assert.Equal(t, "claude-test", report.Model)
	assert.Equal(t, reportPrompt, report.System)
	require.Len(t, report.Messages, 1)
	blocks := report.Messages[0].Content
	require.Len(t, blocks, 3)
	assert.Equal(t, "Category: Bathroom", blocks[0].Text)
	require.NotNil(t, blocks[1].Source)
	assert.Equal(t, "AQID", blocks[1].Source.Data)
	assert.Equal(t, "image/jpeg", blocks[1].Source.MediaType)

	chat := got[1]
	assert.Equal(t, "SYS", chat.System)
	require.Len(t, chat.Messages, 3)
	assert.Equal(t, "user", chat.Messages[0].Role)
	assert.Equal(t, "assistant", chat.Messages[1].Role)
	assert.Equal(t, "q", chat.Messages[2].Content[0].Text)
}

func TestAnthropicAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":{"type":"invalid_request_error","message":"bad image"}}`)
	}))
	defer srv.Close()

	svc := NewAnthropicService("k", "m", time.Second)
	svc.url = srv.URL
	_, err := svc.SubmitInspectionPhotos(context.Background(), nil)

	assert.ErrorIs(t, err, models.ErrServiceFailure)
	assert.Contains(t, err.Error(), "bad image")
}

func TestVLLMRequests(t *testing.T) {
	var raw []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		raw = append(raw, body)
		io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer srv.Close()

	svc := NewVLLMService(srv.URL, "llava", time.Second)
	_, err := svc.SubmitInspectionPhotos(context.Background(), []models.Photo{{Category: "Utilities", Data: []byte("x")}})
	require.NoError(t, err)
	reply, err := svc.AskFollowUp(context.Background(), "q", models.PromptPayload{
		SystemPrompt: "SYS",
		History:      []models.ChatTurn{{Role: "user", Content: "q"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)

	require.Len(t, raw, 2)
	msgs := raw[0]["messages"].([]any)
	user := msgs[1].(map[string]any)
	parts := user["content"].([]any)
	image := parts[1].(map[string]any)
	assert.Equal(t, "image_url", image["type"])
	assert.Equal(t, "data:image/jpeg;base64,eA==", image["image_url"].(map[string]any)["url"])

	chat := raw[1]["messages"].([]any)
	require.Len(t, chat, 2)
	assert.Equal(t, "system", chat[0].(map[string]any)["role"])
	assert.Equal(t, "SYS", chat[0].(map[string]any)["content"])
}

func TestVLLMNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	_, err := NewVLLMService(srv.URL, "m", time.Second).AskFollowUp(context.Background(), "q", models.PromptPayload{})
	assert.ErrorIs(t, err, models.ErrServiceFailure)
}

func TestMergeTurns(t *testing.T) {
	got := mergeTurns([]models.ChatTurn{
		{Role: "assistant", Content: "report"},
		{Role: "assistant", Content: "error notice"},
		{Role: "user", Content: "a"},
		{Role: "user", Content: "b"},
	})

	require.Len(t, got, 3)
	assert.Equal(t, "user", got[0].Role)
	assert.Equal(t, "report\n\nerror notice", got[1].Content)
	assert.Equal(t, "a\n\nb", got[2].Content)
}

func TestReachabilityMonitor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
	}))
	m := NewReachabilityMonitor(srv.URL, 200*time.Millisecond, nil)

	var changes atomic.Int32
	var last atomic.Bool
	unsubscribe := m.SubscribeReachability(func(reachable bool) {
		changes.Add(1)
		last.Store(reachable)
	})

	ctx := context.Background()
	assert.True(t, m.CheckReachable(ctx))
	assert.True(t, m.CheckReachable(ctx))
	assert.Zero(t, changes.Load())

	srv.Close()
	assert.False(t, m.CheckReachable(ctx))
	assert.False(t, m.Reachable())
	assert.Equal(t, int32(1), changes.Load())
	assert.False(t, last.Load())

	unsubscribe()
	m.update(true)
	assert.Equal(t, int32(1), changes.Load())
}

func TestReachabilityMonitorStartStop(t *testing.T) {
	var probes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
	}))
	defer srv.Close()

	m := NewReachabilityMonitor(srv.URL, time.Second, nil)
	require.NoError(t, m.Start(time.Second))
	assert.Error(t, m.Start(time.Second))

	require.Eventually(t, func() bool { return probes.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	m.Stop()
}

func TestReachabilityEmptyURL(t *testing.T) {
	m := NewReachabilityMonitor("", time.Second, nil)
	assert.True(t, m.CheckReachable(context.Background()))
}

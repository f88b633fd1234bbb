package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"inspection-chat/models"
	"inspection-chat/photos"
	"inspection-chat/session"
	"inspection-chat/workflows"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SessionHandler handles inspection chat sessions over HTTP
type SessionHandler struct {
	sessions *session.Manager
	reports  ReportStore
	logger   *log.Logger
}

// NewSessionHandler creates a new session handler. reports may be nil when the archive is disabled
func NewSessionHandler(sessions *session.Manager, reports ReportStore, logger *log.Logger) *SessionHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &SessionHandler{
		sessions: sessions,
		reports:  reports,
		logger:   logger.With("component", "sessions"),
	}
}

// CreateSession enters a session with uploaded photos or an existing report
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var in session.StartInput
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		set, err := h.photoSet(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		in.Photos = set.Photos()
	} else {
		var req models.CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		in.Report = req.Report
		if req.ReportID != "" {
			body, status, err := h.archivedReport(c, req.ReportID)
			if err != nil {
				c.JSON(status, gin.H{"error": err.Error()})
				return
			}
			in.Report = body
		}
		if in.Report == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "report, report_id or photos are required"})
			return
		}
	}

	s, err := h.sessions.Create(in)
	if err != nil {
		h.logger.Warn("failed to create session", "error", err)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, s.State())
}

// photoSet reads repeated "photo" files paired with a JSON "categories" array
func (h *SessionHandler) photoSet(c *gin.Context) (*photos.Set, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, errors.New("invalid multipart form")
	}
	files := form.File["photo"]

	var categories []string
	if err := json.Unmarshal([]byte(c.PostForm("categories")), &categories); err != nil {
		return nil, errors.New("categories must be a JSON array")
	}
	if len(categories) != len(files) {
		return nil, errors.New("each photo needs a category")
	}

	set := photos.NewSet()
	for i, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, errors.New("failed to read photo")
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, errors.New("failed to read photo")
		}
		if _, err := set.Add(categories[i], data); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func (h *SessionHandler) archivedReport(c *gin.Context, rawID string) (string, int, error) {
	if h.reports == nil {
		return "", http.StatusServiceUnavailable, errors.New("report archive is disabled")
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return "", http.StatusBadRequest, errors.New("Invalid report ID")
	}
	r, err := h.reports.GetReport(c.Request.Context(), id)
	if errors.Is(err, workflows.ErrReportNotFound) {
		return "", http.StatusNotFound, errors.New("Report not found")
	}
	if err != nil {
		h.logger.Error("failed to load report", "report_id", id, "error", err)
		return "", http.StatusInternalServerError, errors.New("Failed to load report")
	}
	return r.Body, http.StatusOK, nil
}

// GetSession returns a session snapshot
func (h *SessionHandler) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.State())
}

// SendMessage submits a follow-up question. The reply arrives through the event stream
func (h *SessionHandler) SendMessage(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := s.Submit(req.Content); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, s.State())
}

// SetDraft records unsent input so it survives a reload
func (h *SessionHandler) SetDraft(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	s.SetPendingInput(req.Content)
	c.Status(http.StatusNoContent)
}

// Flush completes the message currently being delivered
func (h *SessionHandler) Flush(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.Flush()
	c.JSON(http.StatusOK, s.State())
}

// RetryReport restarts report generation after a failure
func (h *SessionHandler) RetryReport(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.RetryReport(); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, s.State())
}

// Events streams session events as server-sent events
func (h *SessionHandler) Events(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	events, cancel := s.Subscribe()
	defer cancel()

	c.SSEvent("state", s.State())
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// LeaveSession tears a session down. Sessions with messages need ?confirm=true
func (h *SessionHandler) LeaveSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	if s.Leave(c.Query("confirm") == "true") {
		c.JSON(http.StatusConflict, gin.H{"error": "Leaving discards the conversation; retry with confirm=true"})
		return
	}
	h.sessions.Remove(s.ID())
	c.JSON(http.StatusOK, gin.H{"message": "Session closed"})
}

func (h *SessionHandler) session(c *gin.Context) (*session.Session, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return nil, false
	}
	s, ok := h.sessions.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return nil, false
	}
	return s, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrEmptyInput),
		errors.Is(err, session.ErrEmptyPhotoSet):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrReportAvailable),
		errors.Is(err, session.ErrAlreadyStarted),
		errors.Is(err, session.ErrSessionClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

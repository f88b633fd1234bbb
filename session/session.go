package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"inspection-chat/models"
)

var (
	ErrEmptyInput      = errors.New("message is required")
	ErrBusy            = errors.New("session is waiting for the assistant")
	ErrEmptyPhotoSet   = errors.New("at least one photo is required")
	ErrSessionClosed   = errors.New("session is closed")
	ErrAlreadyStarted  = errors.New("session already started")
	ErrReportAvailable = errors.New("report already generated")
)

const (
	placeholderText  = "🤖 Your AI Inspector is analyzing the images..."
	reportFailedText = "❌ Error: Could not generate report. Please check your connection and try again."
	replyFailedText  = "❌ Error: Could not get response. Please check your connection and try again."
)

// ReportService talks to the remote inspection backend
type ReportService interface {
	SubmitInspectionPhotos(ctx context.Context, photos []models.Photo) (string, error)
	AskFollowUp(ctx context.Context, message string, payload models.PromptPayload) (string, error)
}

// Reachability reports whether the backend can currently be reached
type Reachability interface {
	CheckReachable(ctx context.Context) bool
	SubscribeReachability(fn func(reachable bool)) (unsubscribe func())
}

// Navigator receives navigation intents. Sessions never navigate themselves
type Navigator interface {
	RequestNavigate(target models.NavTarget)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(target models.NavTarget)

func (f NavigatorFunc) RequestNavigate(target models.NavTarget) { f(target) }

// ReportArchive keeps generated reports beyond the session
type ReportArchive interface {
	ArchiveReport(ctx context.Context, report models.ArchivedReport) error
}

// Config parameterizes a session
type Config struct {
	SystemPrompt   string
	TickInterval   time.Duration
	RequestTimeout time.Duration
}

// Deps are the collaborators a session drives. Navigator and Archive are optional
type Deps struct {
	Service      ReportService
	Reachability Reachability
	Navigator    Navigator
	Archive      ReportArchive
	Logger       *log.Logger
}

// StartInput enters a session with either a ready report or a photo set
type StartInput struct {
	Photos []models.Photo
	Report string
}

// delivery is the simulator currently pacing one message
type delivery struct {
	messageID uuid.UUID
	fullText  string
	cancel    context.CancelFunc
}

// Session owns the message log and phase of one inspection conversation.
// External events run to completion under mu; network calls and the
// delivery simulator run outside it and re-check currency before applying
type Session struct {
	id      uuid.UUID
	cfg     Config
	svc     ReportService
	reach   Reachability
	nav     Navigator
	archive ReportArchive
	logger  *log.Logger
	events  *broker
	now     func() time.Time

	ctx              context.Context
	cancel           context.CancelFunc
	unsubscribeReach func()

	mu           sync.Mutex
	phase        models.Phase
	messages     []models.Message
	pendingInput string
	report       string
	images       []models.Photo
	active       *delivery
	turn         uint64
	idle         chan struct{}
	closed       bool
}

// New creates an idle session. Call Start to enter it
func New(cfg Config, deps Deps) *Session {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	if deps.Reachability == nil {
		deps.Reachability = alwaysReachable{}
	}

	id := uuid.Must(uuid.NewV7())
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	s := &Session{
		id:      id,
		cfg:     cfg,
		svc:     deps.Service,
		reach:   deps.Reachability,
		nav:     deps.Navigator,
		archive: deps.Archive,
		logger:  logger.With("session_id", id),
		events:  newBroker(),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		phase:   models.PhaseIdle,
		idle:    idle,
	}
	s.unsubscribeReach = s.reach.SubscribeReachability(func(reachable bool) {
		s.logger.Debug("reachability changed", "reachable", reachable)
		s.events.publish(Event{Type: EventReachability, SessionID: s.id, Reachable: &reachable})
	})
	return s
}

// ID returns the session identifier
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Subscribe streams state changes until the returned cancel is called or the session closes
func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}

// Start enters the session. A non-empty report is shown as is; otherwise the
// photos are submitted for a new report in the background
func (s *Session) Start(in StartInput) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.phase != models.PhaseIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	if in.Report != "" {
		s.report = in.Report
		s.appendLocked(s.newMessage(models.SenderAssistant, in.Report, models.DeliveryComplete))
		s.setPhaseLocked(models.PhaseReady)
		s.mu.Unlock()
		s.logger.Info("session started with existing report")
		return nil
	}

	if len(in.Photos) == 0 {
		s.mu.Unlock()
		return ErrEmptyPhotoSet
	}
	s.images = append([]models.Photo(nil), in.Photos...)
	gen, placeholder := s.beginReportLocked()
	photos := s.images
	s.mu.Unlock()

	s.logger.Info("session started with photos", "photo_count", len(photos))
	go s.generateReport(gen, placeholder, photos)
	return nil
}

// RetryReport requests a new report for the same photos after a failed attempt
func (s *Session) RetryReport() error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrSessionClosed
	case s.phase != models.PhaseReady:
		s.mu.Unlock()
		return ErrBusy
	case s.report != "":
		s.mu.Unlock()
		return ErrReportAvailable
	case len(s.images) == 0:
		s.mu.Unlock()
		return ErrEmptyPhotoSet
	}
	gen, placeholder := s.beginReportLocked()
	photos := s.images
	s.mu.Unlock()

	s.logger.Info("retrying report generation")
	go s.generateReport(gen, placeholder, photos)
	return nil
}

// Submit appends the user's question and asks the backend for a reply in the background
func (s *Session) Submit(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.phase != models.PhaseReady {
		s.mu.Unlock()
		return ErrBusy
	}

	s.flushLocked()
	history := append([]models.Message(nil), s.messages...)
	userMsg := s.newMessage(models.SenderUser, text, models.DeliveryComplete)
	s.appendLocked(userMsg)
	s.pendingInput = ""
	s.markBusyLocked(models.PhaseAwaitingReply)
	s.turn++
	gen, report := s.turn, s.report
	s.mu.Unlock()

	go s.runTurn(gen, userMsg.ID, text, report, history)
	return nil
}

// SetPendingInput records text the user has typed but not submitted
func (s *Session) SetPendingInput(text string) {
	s.mu.Lock()
	s.pendingInput = text
	s.mu.Unlock()
}

// Flush shows the in-progress message in full and stops its simulator
func (s *Session) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return
	}
	s.flushLocked()
	s.markIdleLocked()
}

// WaitIdle blocks until the session is no longer waiting on the backend or a delivery
func (s *Session) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns a snapshot of the session
func (s *Session) State() models.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.SessionView{
		ID:           s.id,
		Phase:        s.phase,
		Messages:     append([]models.Message(nil), s.messages...),
		PendingInput: s.pendingInput,
		ReportReady:  s.report != "",
		Closed:       s.closed,
	}
}

// Report returns the inspection report, empty until generation completes
func (s *Session) Report() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Leave tears the session down and asks to navigate back. While the
// conversation has messages it needs confirmed to be true; otherwise
// nothing happens and Leave reports that confirmation is required
func (s *Session) Leave(confirmed bool) (needsConfirmation bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if !confirmed && len(s.messages) > 0 {
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	s.navigate(models.NavBack)
	s.Close()
	return false
}

// Close cancels in-flight work. Late responses and ticks are discarded afterwards
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.active != nil {
		s.active.cancel()
		s.active = nil
	}
	s.markIdleLocked()
	s.cancel()
	s.mu.Unlock()

	s.unsubscribeReach()
	s.events.close()
	s.logger.Info("session closed")
}

func (s *Session) generateReport(gen uint64, placeholder uuid.UUID, photos []models.Photo) {
	if !s.reach.CheckReachable(s.ctx) {
		s.logger.Warn("backend unreachable, report not requested")
		s.failReport(gen, placeholder, true)
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RequestTimeout)
	text, err := s.svc.SubmitInspectionPhotos(ctx, photos)
	cancel()

	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		offline := isConnectivityLoss(err)
		s.logger.Error("report generation failed", "error", err, "offline", offline)
		s.failReport(gen, placeholder, offline)
		return
	}

	s.mu.Lock()
	if s.staleLocked(gen) {
		s.mu.Unlock()
		s.logger.Debug("discarding late report")
		return
	}
	s.report = text
	if i := s.indexLocked(placeholder); i >= 0 {
		s.messages[i].Notice = false
		s.messages[i].Text = ""
	}
	s.startDeliveryLocked(placeholder, text)
	s.mu.Unlock()

	s.logger.Info("report generated", "length", len(text))
	if s.archive != nil {
		go s.archiveReport(text, photos)
	}
}

func (s *Session) failReport(gen uint64, placeholder uuid.UUID, offline bool) {
	s.mu.Lock()
	if s.staleLocked(gen) {
		s.mu.Unlock()
		return
	}
	if i := s.indexLocked(placeholder); i >= 0 {
		s.messages[i].Text = reportFailedText
		s.messages[i].DeliveryState = models.DeliveryComplete
		s.publishMessageLocked(i)
	}
	s.markIdleLocked()
	s.mu.Unlock()

	if offline {
		s.navigate(models.NavOfflineScreen)
	}
}

func (s *Session) runTurn(gen uint64, userMsgID uuid.UUID, text, report string, history []models.Message) {
	if !s.reach.CheckReachable(s.ctx) {
		s.logger.Warn("backend unreachable, message not sent")
		s.connectivityLost(gen, userMsgID, text)
		return
	}

	payload := BuildPrompt(s.cfg.SystemPrompt, report, history, text)
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RequestTimeout)
	reply, err := s.svc.AskFollowUp(ctx, text, payload)
	cancel()

	if err != nil && s.ctx.Err() != nil {
		return
	}
	if err != nil && isConnectivityLoss(err) {
		s.logger.Error("follow-up lost connectivity", "error", err)
		s.connectivityLost(gen, userMsgID, text)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleLocked(gen) {
		s.logger.Debug("discarding late reply")
		return
	}
	if err != nil {
		s.logger.Error("follow-up failed", "error", err)
		msg := s.newMessage(models.SenderAssistant, replyFailedText, models.DeliveryComplete)
		msg.Notice = true
		s.appendLocked(msg)
		s.markIdleLocked()
		return
	}

	msg := s.newMessage(models.SenderAssistant, "", models.DeliveryInProgress)
	s.appendLocked(msg)
	s.startDeliveryLocked(msg.ID, reply)
}

func (s *Session) connectivityLost(gen uint64, userMsgID uuid.UUID, text string) {
	s.mu.Lock()
	if s.staleLocked(gen) {
		s.mu.Unlock()
		return
	}
	if i := s.indexLocked(userMsgID); i >= 0 {
		s.messages[i].Unsent = true
		s.publishMessageLocked(i)
	}
	s.pendingInput = text
	s.markIdleLocked()
	s.mu.Unlock()

	s.navigate(models.NavOfflineScreen)
}

func (s *Session) archiveReport(text string, photos []models.Photo) {
	categories := make([]string, 0, len(photos))
	seen := make(map[string]bool)
	for _, p := range photos {
		if !seen[p.Category] {
			seen[p.Category] = true
			categories = append(categories, p.Category)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := s.archive.ArchiveReport(ctx, models.ArchivedReport{
		ID:         uuid.Must(uuid.NewV7()),
		SessionID:  s.id,
		Categories: categories,
		Body:       text,
		CreatedAt:  s.now(),
	})
	if err != nil {
		s.logger.Warn("failed to archive report", "error", err)
	}
}

// startDeliveryLocked paces msgID towards fullText, superseding any running simulator
func (s *Session) startDeliveryLocked(msgID uuid.UUID, fullText string) {
	s.flushLocked()

	ctx, cancel := context.WithCancel(s.ctx)
	d := &delivery{messageID: msgID, fullText: fullText, cancel: cancel}
	s.active = d
	if i := s.indexLocked(msgID); i >= 0 {
		s.messages[i].DeliveryState = models.DeliveryInProgress
		s.publishMessageLocked(i)
	}

	ch := Stream(ctx, fullText, s.cfg.TickInterval)
	go func() {
		for ev := range ch {
			s.applyDelivery(d, ev)
		}
	}()
}

func (s *Session) applyDelivery(d *delivery, ev Delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.active != d {
		return
	}
	i := s.indexLocked(d.messageID)
	if i < 0 || s.messages[i].DeliveryState == models.DeliveryComplete {
		return
	}
	s.messages[i].Text = ev.Text
	if ev.Done {
		s.messages[i].DeliveryState = models.DeliveryComplete
		s.active = nil
		d.cancel()
	}
	s.publishMessageLocked(i)
	if ev.Done {
		s.markIdleLocked()
	}
}

// flushLocked completes the active delivery with its full text
func (s *Session) flushLocked() {
	d := s.active
	if d == nil {
		return
	}
	s.active = nil
	d.cancel()
	if i := s.indexLocked(d.messageID); i >= 0 {
		s.messages[i].Text = d.fullText
		s.messages[i].DeliveryState = models.DeliveryComplete
		s.publishMessageLocked(i)
	}
}

func (s *Session) beginReportLocked() (uint64, uuid.UUID) {
	msg := s.newMessage(models.SenderAssistant, placeholderText, models.DeliveryInProgress)
	msg.Notice = true
	s.appendLocked(msg)
	s.markBusyLocked(models.PhaseAwaitingReport)
	s.turn++
	return s.turn, msg.ID
}

func (s *Session) staleLocked(gen uint64) bool {
	return s.closed || gen != s.turn
}

func (s *Session) markBusyLocked(phase models.Phase) {
	s.idle = make(chan struct{})
	s.setPhaseLocked(phase)
}

func (s *Session) markIdleLocked() {
	select {
	case <-s.idle:
	default:
		close(s.idle)
	}
	if !s.closed {
		s.setPhaseLocked(models.PhaseReady)
	}
}

func (s *Session) setPhaseLocked(phase models.Phase) {
	if s.phase == phase {
		return
	}
	s.logger.Debug("phase changed", "from", s.phase, "to", phase)
	s.phase = phase
	s.events.publish(Event{Type: EventPhase, SessionID: s.id, Phase: phase})
}

func (s *Session) newMessage(sender models.Sender, text string, state models.DeliveryState) models.Message {
	return models.Message{
		ID:            uuid.Must(uuid.NewV7()),
		Text:          text,
		Sender:        sender,
		DeliveryState: state,
		CreatedAt:     s.now(),
	}
}

func (s *Session) appendLocked(msg models.Message) {
	s.messages = append(s.messages, msg)
	s.publishMessageLocked(len(s.messages) - 1)
}

func (s *Session) publishMessageLocked(i int) {
	msg := s.messages[i]
	s.events.publish(Event{Type: EventMessage, SessionID: s.id, Message: &msg})
}

func (s *Session) indexLocked(id uuid.UUID) int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) navigate(target models.NavTarget) {
	s.logger.Info("navigation requested", "target", target)
	s.events.publish(Event{Type: EventNavigate, SessionID: s.id, Target: target})
	if s.nav != nil {
		s.nav.RequestNavigate(target)
	}
}

func isConnectivityLoss(err error) bool {
	return errors.Is(err, models.ErrNetworkFailure) || errors.Is(err, context.DeadlineExceeded)
}

type alwaysReachable struct{}

func (alwaysReachable) CheckReachable(context.Context) bool { return true }

func (alwaysReachable) SubscribeReachability(func(bool)) func() { return func() {} }

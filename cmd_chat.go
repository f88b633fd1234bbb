package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"inspection-chat/models"
	"inspection-chat/photos"
	"inspection-chat/report"
	"inspection-chat/session"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const offlineNotice = "You are offline. Your photos have been saved and will be uploaded when you reconnect."

func newChatCmd(a *app) *cobra.Command {
	var reportID string
	cmd := &cobra.Command{
		Use:   "chat [Category=photo.jpg ...]",
		Short: "Generate a report from photos and chat about it",
		Long: "Uploads categorized photos, streams the inspection report and answers follow-up questions.\n" +
			"Without arguments the photos cached by an offline attempt are used.\n" +
			"Categories: " + strings.Join(photos.Categories, ", ") + ".\n" +
			"Commands inside the chat: /report, /retry, /flush, /quit.",
		Example: `  inspector chat Roofing=roof.jpg "Basement & Foundation=crack.jpg"
  inspector chat --report-id 0190f6d2-...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), a, args, reportID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&reportID, "report-id", "", "chat about an archived report instead of new photos")
	return cmd
}

// chatStyles are plain when stdout is not a terminal
type chatStyles struct {
	user, assistant, notice, banner, errText lipgloss.Style
}

func newChatStyles(out io.Writer) chatStyles {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		plain := lipgloss.NewStyle()
		return chatStyles{plain, plain, plain, plain, plain}
	}
	return chatStyles{
		user:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		notice:    lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("245")),
		banner:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("214")).Padding(0, 1),
		errText:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

func terminalWidth(out io.Writer) int {
	if f, ok := out.(*os.File); ok {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			return w
		}
	}
	return 80
}

// parsePhotoArgs reads Category=path arguments into a compressed photo set
func parsePhotoArgs(args []string) (*photos.Set, error) {
	set := photos.NewSet()
	for _, arg := range args {
		category, path, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("expected Category=path, got %q", arg)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read photo: %w", err)
		}
		if _, err := set.Add(strings.TrimSpace(category), data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return set, nil
}

func runChat(ctx context.Context, a *app, args []string, reportID string, in io.Reader, out io.Writer) error {
	styles := newChatStyles(out)
	cache := photos.NewCache(a.cfg.Photos.CacheDir)

	svc, err := a.reportService()
	if err != nil {
		return err
	}
	monitor := a.reachability()

	var start session.StartInput
	var set *photos.Set
	switch {
	case reportID != "":
		body, err := a.loadArchivedReport(ctx, reportID)
		if err != nil {
			return err
		}
		start.Report = body
	case len(args) > 0:
		if set, err = parsePhotoArgs(args); err != nil {
			return err
		}
	default:
		set, err = cache.Load()
		if errors.Is(err, photos.ErrNoCache) {
			return errors.New("no photos given and none cached; pass Category=path arguments")
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Restored %d cached photos.\n", set.Len())
	}

	if set != nil {
		if !monitor.CheckReachable(ctx) {
			if err := cache.Save(set); err != nil {
				return err
			}
			fmt.Fprintln(out, styles.banner.Render(offlineNotice))
			return nil
		}
		start.Photos = set.Photos()
	}

	if err := monitor.Start(a.cfg.Reachability.Interval); err != nil {
		return err
	}
	defer monitor.Stop()

	deps := session.Deps{Service: svc, Reachability: monitor, Logger: a.logger}
	ar, err := a.openArchive(ctx)
	if err != nil {
		a.logger.Warn("report archive unavailable", "error", err)
	} else if ar != nil {
		defer ar.Close()
		deps.Archive = ar.workflows
	}

	s := session.New(a.sessionConfig(), deps)
	defer s.Close()
	events, unsubscribe := s.Subscribe()
	defer unsubscribe()
	if err := s.Start(start); err != nil {
		return err
	}

	v := &chatView{out: out, styles: styles, shown: make(map[uuid.UUID]shownMessage)}
	for _, msg := range s.State().Messages {
		v.show(msg)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	confirming := false
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case session.EventMessage:
				v.show(*ev.Message)
			case session.EventPhase:
				if ev.Phase == models.PhaseReady {
					// Catch up on anything the event buffer dropped
					state := s.State()
					for _, msg := range state.Messages {
						v.show(msg)
					}
					if set != nil && state.ReportReady {
						if err := cache.Clear(); err != nil {
							a.logger.Warn("failed to clear photo cache", "error", err)
						}
					}
				}
			case session.EventNavigate:
				if ev.Target == models.NavBack {
					return nil
				}
				if set != nil && s.Report() == "" {
					if err := cache.Save(set); err != nil {
						a.logger.Warn("failed to cache photos", "error", err)
					}
				}
				v.line(styles.banner.Render(offlineNotice))
			case session.EventReachability:
				if *ev.Reachable {
					v.line(styles.banner.Render("Back online."))
				} else {
					v.line(styles.banner.Render("Connection lost."))
				}
			}

		case line, ok := <-lines:
			if !ok {
				s.Leave(true)
				return nil
			}
			line = strings.TrimSpace(line)
			if confirming {
				confirming = false
				if strings.EqualFold(line, "y") || strings.EqualFold(line, "yes") {
					s.Leave(true)
				}
				continue
			}
			switch line {
			case "/quit":
				if s.Leave(false) {
					confirming = true
					v.line(styles.notice.Render("Leave and discard this conversation? [y/N]"))
				}
			case "/retry":
				if err := s.RetryReport(); err != nil {
					v.line(styles.errText.Render(err.Error()))
				}
			case "/flush":
				s.Flush()
			case "/report":
				text := s.Report()
				if text == "" {
					v.line(styles.notice.Render("The report is not ready yet."))
					continue
				}
				rendered, err := report.Render(text, terminalWidth(out))
				if err != nil {
					v.line(styles.errText.Render(err.Error()))
					continue
				}
				v.line(rendered)
			default:
				if err := s.Submit(line); err != nil {
					if errors.Is(err, session.ErrBusy) {
						s.SetPendingInput(line)
					}
					v.line(styles.errText.Render(err.Error()))
				}
			}
		}
	}
}

// chatView prints streamed messages incrementally
type chatView struct {
	out    io.Writer
	styles chatStyles
	shown  map[uuid.UUID]shownMessage
	open   uuid.UUID
}

type shownMessage struct {
	text   string
	unsent bool
}

func (v *chatView) show(msg models.Message) {
	prev, seen := v.shown[msg.ID]
	if seen && prev.text == msg.Text && prev.unsent == msg.Unsent {
		return
	}

	printed := prev.text
	if !seen || v.open != msg.ID || !strings.HasPrefix(msg.Text, prev.text) {
		v.endLine()
		label := v.styles.assistant.Render("Inspector:")
		if msg.Sender == models.SenderUser {
			label = v.styles.user.Render("You:")
		}
		fmt.Fprint(v.out, label, " ")
		v.open = msg.ID
		printed = ""
	}

	delta := msg.Text[len(printed):]
	if msg.Notice {
		delta = v.styles.notice.Render(delta)
	}
	fmt.Fprint(v.out, delta)
	v.shown[msg.ID] = shownMessage{text: msg.Text, unsent: msg.Unsent}

	if msg.Unsent {
		fmt.Fprint(v.out, " ", v.styles.errText.Render("(not sent)"))
		v.endLine()
		return
	}
	if msg.DeliveryState == models.DeliveryComplete {
		v.endLine()
	}
}

func (v *chatView) line(s string) {
	v.endLine()
	fmt.Fprintln(v.out, s)
}

func (v *chatView) endLine() {
	if v.open != uuid.Nil {
		fmt.Fprintln(v.out)
		v.open = uuid.Nil
	}
}

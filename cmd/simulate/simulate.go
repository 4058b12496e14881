package simulate

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"agentorchestrator/src/app"
	"agentorchestrator/src/model"
	"agentorchestrator/src/session"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	gainStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	lossStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// Simulation drives an offline session for a fixed number of ticks.
type Simulation struct {
	Log     *logrus.Entry
	Ticks   int
	Capital float64
	Out     io.Writer
	Manager *session.Manager
}

func (s *Simulation) Start(ctx context.Context) error {
	if s.Log == nil {
		s.Log = logrus.WithField("cmd", "simulate")
	}
	if s.Manager == nil {
		a, err := app.Build(ctx, app.Options{Offline: true, SkipAudit: true})
		if err != nil {
			return err
		}
		s.Manager = a.Manager
		if s.Capital <= 0 {
			s.Capital = a.Session.DefaultCapital
		}
	}
	if s.Ticks <= 0 {
		s.Ticks = 10
	}

	sess, err := s.Manager.CreateSession(ctx, s.Capital)
	if err != nil {
		return err
	}

	for i := 0; i < s.Ticks; i++ {
		if err := s.Manager.Tick(ctx, sess.ID); err != nil {
			s.Log.WithError(err).WithField("tick", i+1).Warn("tick failed")
		}
		if ctx.Err() != nil {
			break
		}
	}

	final, err := s.Manager.GetSession(sess.ID)
	if err != nil {
		return err
	}
	_, err = io.WriteString(s.Out, Render(final))
	return err
}

func signed(v float64) string {
	text := fmt.Sprintf("%+.2f", v)
	if v < 0 {
		return lossStyle.Render(text)
	}
	return gainStyle.Render(text)
}

// Render formats a session summary for the terminal.
func Render(s *model.TradingSession) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Session "+s.ID) + "\n")
	fmt.Fprintf(&b, "status=%s capital=%.2f used=%.2f pnl=%s verdicts=%d\n",
		s.Status, s.TotalCapital, s.UsedCapital, signed(s.TotalPnL), len(s.Decisions))
	if s.LastTickError != "" {
		b.WriteString(lossStyle.Render(s.LastTickError) + "\n")
	}

	b.WriteString("\n")
	for _, a := range s.Agents {
		fmt.Fprintf(&b, "%-16s %-15s %-7s alloc=%10.2f pnl=%s trades=%d win=%.1f%% open=%d\n",
			a.Name, a.Strategy, a.Status, a.AllocatedCapital, signed(a.Performance.TotalPnL),
			a.Performance.TotalTrades, a.Performance.WinRate, len(a.Positions))
	}

	if n := len(s.Decisions); n > 0 {
		last := s.Decisions[n-1]
		b.WriteString("\n" + dimStyle.Render(fmt.Sprintf("last verdict: %s (%s)", last.Action, last.Reasoning)) + "\n")
	}
	return b.String()
}

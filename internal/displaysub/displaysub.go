// Package displaysub subscribes to the event bus and renders a live,
// colorized terminal view of a conversation -- a demonstration subscriber
// showing that the conductor never needs special-case code for display: it
// only ever emits events.
package displaysub

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/pidginhq/pidgin/pkg/event"
)

var colors = []lipgloss.Color{
	lipgloss.Color("63"),  // Blue
	lipgloss.Color("212"), // Pink
	lipgloss.Color("86"),  // Green
	lipgloss.Color("214"), // Orange
}

var (
	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Italic(true)

	systemBadgeStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("235")).
				Foreground(lipgloss.Color("244")).
				Padding(0, 1).
				MarginRight(1)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	metricsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("236"))
)

// Display renders conversation events to a console writer with a distinct
// color per agent, assigned the first time that agent speaks.
type Display struct {
	console     io.Writer
	termWidth   int
	agentStyles map[string]lipgloss.Style
	badgeStyles map[string]lipgloss.Style
	colorIndex  int
	agentNames  map[string]string
}

// New constructs a Display writing to console. termWidth <= 0 defaults to 80.
func New(console io.Writer, termWidth int) *Display {
	if termWidth <= 0 {
		termWidth = 80
	}
	return &Display{
		console:     console,
		termWidth:   termWidth,
		agentStyles: make(map[string]lipgloss.Style),
		badgeStyles: make(map[string]lipgloss.Style),
		agentNames:  make(map[string]string),
	}
}

// Subscribe registers the display as a wildcard subscriber on bus.
func (d *Display) Subscribe(bus *event.Bus) uint64 {
	return bus.SubscribeAll(d.onEvent)
}

func (d *Display) onEvent(_ context.Context, e event.Event) error {
	switch ev := e.(type) {
	case event.ConversationStart:
		d.agentNames["agent_a"] = ev.DisplayNameA
		d.agentNames["agent_b"] = ev.DisplayNameB
		d.writeSystem(ev.Envelope.Timestamp, fmt.Sprintf("conversation started: %s vs %s, max %d turns", ev.DisplayNameA, ev.DisplayNameB, ev.MaxTurns))
	case event.SystemPrompt:
		d.writeSystem(ev.Envelope.Timestamp, fmt.Sprintf("system prompt set for %s", d.nameFor(ev.AgentID)))
	case event.MessageComplete:
		d.writeMessage(ev.Envelope.Timestamp, ev.AgentID, ev.Message.Content, ev.TotalTokens)
	case event.APIError:
		d.writeError(ev.Envelope.Timestamp, d.nameFor(ev.AgentID), ev.ErrorMessage)
	case event.ConversationPaused:
		d.writeSystem(ev.Envelope.Timestamp, fmt.Sprintf("paused during %s", ev.PausedDuring))
	case event.ConversationEnd:
		d.writeSystem(ev.Envelope.Timestamp, fmt.Sprintf("conversation ended after %d turns: %s", ev.TotalTurns, ev.Reason))
	}
	return nil
}

func (d *Display) nameFor(agentID string) string {
	if name, ok := d.agentNames[agentID]; ok && name != "" {
		return name
	}
	return agentID
}

func (d *Display) agentStyle(agentID string) lipgloss.Style {
	if style, ok := d.agentStyles[agentID]; ok {
		return style
	}
	color := colors[d.colorIndex%len(colors)]
	d.colorIndex++
	style := lipgloss.NewStyle().Foreground(color).Bold(true)
	d.agentStyles[agentID] = style
	d.badgeStyles[agentID] = lipgloss.NewStyle().
		Background(color).
		Foreground(lipgloss.Color("0")).
		Bold(true).
		Padding(0, 1).
		MarginRight(1)
	return style
}

func (d *Display) writeMessage(ts time.Time, agentID, content string, totalTokens int) {
	if d.console == nil {
		return
	}
	contentStyle := d.agentStyle(agentID)
	badgeStyle := d.badgeStyles[agentID]

	var out strings.Builder
	out.WriteString(separatorStyle.Render(strings.Repeat("-", min(d.termWidth, 80))))
	out.WriteString("\n")
	out.WriteString(timestampStyle.Render("[" + ts.Format("15:04:05") + "] "))
	out.WriteString(badgeStyle.Render(" " + d.nameFor(agentID) + " "))
	if totalTokens > 0 {
		out.WriteString(" ")
		out.WriteString(metricsStyle.Render(fmt.Sprintf("(%d tokens)", totalTokens)))
	}
	out.WriteString("\n\n")
	for _, line := range strings.Split(d.wrapText(content, 2), "\n") {
		out.WriteString(contentStyle.Render(line))
		out.WriteString("\n")
	}
	out.WriteString("\n")
	fmt.Fprint(d.console, out.String())
}

func (d *Display) writeSystem(ts time.Time, message string) {
	if d.console == nil {
		return
	}
	var out strings.Builder
	out.WriteString(timestampStyle.Render("[" + ts.Format("15:04:05") + "] "))
	out.WriteString(systemBadgeStyle.Render(" SYSTEM "))
	out.WriteString(systemStyle.Render(message))
	out.WriteString("\n")
	fmt.Fprint(d.console, out.String())
}

func (d *Display) writeError(ts time.Time, agentName, message string) {
	if d.console == nil {
		return
	}
	fmt.Fprintf(d.console, "%s %s %s: %s\n",
		timestampStyle.Render("["+ts.Format("15:04:05")+"]"),
		errorStyle.Render("ERROR"),
		agentName,
		message,
	)
}

func (d *Display) wrapText(text string, indent int) string {
	maxWidth := d.termWidth - indent - 2
	if maxWidth <= 20 {
		maxWidth = 20
	}

	indentStr := strings.Repeat(" ", indent)
	var wrapped []string
	for _, line := range strings.Split(text, "\n") {
		if len(line) <= maxWidth {
			wrapped = append(wrapped, indentStr+line)
			continue
		}
		words := strings.Fields(line)
		current := indentStr
		for _, word := range words {
			if len(current)+len(word)+1 > d.termWidth {
				wrapped = append(wrapped, current)
				current = indentStr + word
			} else {
				if len(current) > indent {
					current += " "
				}
				current += word
			}
		}
		if len(current) > indent {
			wrapped = append(wrapped, current)
		}
	}
	return strings.Join(wrapped, "\n")
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

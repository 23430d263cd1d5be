// Package export renders a finished conversation's message history to
// JSON, Markdown, or HTML for sharing outside the event log.
package export

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/pidginhq/pidgin/pkg/event"
)

// Format represents the export format type.
type Format string

const (
	// FormatJSON exports the conversation as JSON.
	FormatJSON Format = "json"
	// FormatMarkdown exports the conversation as Markdown.
	FormatMarkdown Format = "markdown"
	// FormatHTML exports the conversation as a standalone HTML page.
	FormatHTML Format = "html"
)

// Options controls one Export call.
type Options struct {
	// Format selects the output format.
	Format Format
	// IncludeTimestamps includes message timestamps in the export.
	IncludeTimestamps bool
	// Title is an optional title for the exported conversation.
	Title string
	// DisplayNames maps agent_a/agent_b (and "human") to the name shown in
	// the export; an agent id absent from the map is rendered as-is.
	DisplayNames map[string]string
}

// Exporter renders message histories to a configured format.
type Exporter struct {
	options Options
}

// NewExporter creates an Exporter with the given options.
func NewExporter(options Options) *Exporter {
	return &Exporter{options: options}
}

// Export writes messages to writer in the configured format.
func (e *Exporter) Export(messages []event.Message, writer io.Writer) error {
	switch e.options.Format {
	case FormatJSON:
		return e.exportJSON(messages, writer)
	case FormatMarkdown:
		return e.exportMarkdown(messages, writer)
	case FormatHTML:
		return e.exportHTML(messages, writer)
	default:
		return fmt.Errorf("unsupported export format: %s", e.options.Format)
	}
}

func (e *Exporter) displayName(agentID string) string {
	if name, ok := e.options.DisplayNames[agentID]; ok && name != "" {
		return name
	}
	return agentID
}

func (e *Exporter) exportJSON(messages []event.Message, writer io.Writer) error {
	output := struct {
		Title      string          `json:"title,omitempty"`
		ExportedAt string          `json:"exported_at"`
		Messages   []event.Message `json:"messages"`
		Summary    *Summary        `json:"summary,omitempty"`
	}{
		Title:      e.options.Title,
		ExportedAt: time.Now().Format(time.RFC3339),
		Messages:   messages,
		Summary:    calculateSummary(messages),
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func (e *Exporter) exportMarkdown(messages []event.Message, writer io.Writer) error {
	var sb strings.Builder

	if e.options.Title != "" {
		sb.WriteString("# ")
		sb.WriteString(e.options.Title)
		sb.WriteString("\n\n")
	}

	sb.WriteString("*Exported: ")
	sb.WriteString(time.Now().Format("2006-01-02 15:04:05"))
	sb.WriteString("*\n\n")

	summary := calculateSummary(messages)
	sb.WriteString("## Summary\n\n")
	sb.WriteString(fmt.Sprintf("- **Messages**: %d\n", summary.TotalMessages))
	sb.WriteString(fmt.Sprintf("- **Agents**: %d\n", summary.UniqueAgents))
	sb.WriteString("\n---\n\n")

	sb.WriteString("## Conversation\n\n")

	for _, msg := range messages {
		if msg.Role == event.RoleSystem {
			sb.WriteString("### [SYSTEM]")
		} else {
			sb.WriteString("### ")
			sb.WriteString(e.displayName(msg.AgentID))
		}

		if e.options.IncludeTimestamps {
			sb.WriteString(" - ")
			sb.WriteString(msg.Timestamp.Format("15:04:05"))
		}

		sb.WriteString("\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n---\n\n")
	}

	_, err := writer.Write([]byte(sb.String()))
	return err
}

func (e *Exporter) exportHTML(messages []event.Message, writer io.Writer) error {
	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("  <meta charset=\"UTF-8\">\n")
	sb.WriteString("  <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")

	title := e.options.Title
	if title == "" {
		title = "Pidgin Conversation"
	}
	sb.WriteString(fmt.Sprintf("  <title>%s</title>\n", html.EscapeString(title)))

	sb.WriteString("  <style>\n")
	sb.WriteString(getCSS())
	sb.WriteString("  </style>\n")
	sb.WriteString("</head>\n")
	sb.WriteString("<body>\n")

	sb.WriteString("  <div class=\"container\">\n")
	sb.WriteString("    <header>\n")
	sb.WriteString(fmt.Sprintf("      <h1>%s</h1>\n", html.EscapeString(title)))
	sb.WriteString(fmt.Sprintf("      <p class=\"export-date\">Exported: %s</p>\n", time.Now().Format("2006-01-02 15:04:05")))
	sb.WriteString("    </header>\n\n")

	summary := calculateSummary(messages)
	sb.WriteString("    <div class=\"summary\">\n")
	sb.WriteString("      <h2>Summary</h2>\n")
	sb.WriteString("      <div class=\"summary-stats\">\n")
	sb.WriteString(fmt.Sprintf("        <div class=\"stat\"><strong>Messages:</strong> %d</div>\n", summary.TotalMessages))
	sb.WriteString(fmt.Sprintf("        <div class=\"stat\"><strong>Agents:</strong> %d</div>\n", summary.UniqueAgents))
	sb.WriteString("      </div>\n")
	sb.WriteString("    </div>\n\n")

	sb.WriteString("    <div class=\"conversation\">\n")
	sb.WriteString("      <h2>Conversation</h2>\n")

	for _, msg := range messages {
		roleClass := "message-agent"
		if msg.Role == event.RoleSystem {
			roleClass = "message-system"
		}

		sb.WriteString(fmt.Sprintf("      <div class=\"message %s\">\n", roleClass))

		sb.WriteString("        <div class=\"message-header\">\n")
		if msg.Role == event.RoleSystem {
			sb.WriteString("          <span class=\"agent-name system\">SYSTEM</span>\n")
		} else {
			sb.WriteString(fmt.Sprintf("          <span class=\"agent-name\">%s</span>\n", html.EscapeString(e.displayName(msg.AgentID))))
		}

		if e.options.IncludeTimestamps {
			sb.WriteString(fmt.Sprintf("          <span class=\"timestamp\">%s</span>\n", msg.Timestamp.Format("15:04:05")))
		}
		sb.WriteString("        </div>\n")

		sb.WriteString("        <div class=\"message-content\">\n")
		content := html.EscapeString(msg.Content)
		content = strings.ReplaceAll(content, "\n", "<br>")
		sb.WriteString("          ")
		sb.WriteString(content)
		sb.WriteString("\n")
		sb.WriteString("        </div>\n")

		sb.WriteString("      </div>\n\n")
	}

	sb.WriteString("    </div>\n")
	sb.WriteString("  </div>\n")
	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")

	_, err := writer.Write([]byte(sb.String()))
	return err
}

// Summary contains summary statistics for an exported conversation.
type Summary struct {
	TotalMessages int `json:"total_messages"`
	UniqueAgents  int `json:"unique_agents"`
}

func calculateSummary(messages []event.Message) *Summary {
	summary := &Summary{}
	agents := make(map[string]bool)

	for _, msg := range messages {
		summary.TotalMessages++
		agents[msg.AgentID] = true
	}

	summary.UniqueAgents = len(agents)
	return summary
}

func getCSS() string {
	return `    body {
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
      line-height: 1.6;
      color: #333;
      max-width: 100%;
      margin: 0;
      padding: 0;
      background-color: #f5f5f5;
    }
    .container {
      max-width: 900px;
      margin: 0 auto;
      padding: 20px;
      background-color: white;
      box-shadow: 0 0 10px rgba(0,0,0,0.1);
    }
    header {
      border-bottom: 2px solid #e0e0e0;
      padding-bottom: 20px;
      margin-bottom: 30px;
    }
    h1 {
      margin: 0;
      color: #2c3e50;
    }
    h2 {
      color: #34495e;
      border-bottom: 1px solid #e0e0e0;
      padding-bottom: 10px;
    }
    .export-date {
      color: #7f8c8d;
      font-style: italic;
      margin: 10px 0 0 0;
    }
    .summary {
      background-color: #ecf0f1;
      padding: 20px;
      border-radius: 8px;
      margin-bottom: 30px;
    }
    .summary-stats {
      display: grid;
      grid-template-columns: repeat(auto-fit, minmax(200px, 1fr));
      gap: 15px;
      margin-top: 15px;
    }
    .stat {
      background-color: white;
      padding: 10px;
      border-radius: 4px;
      box-shadow: 0 1px 3px rgba(0,0,0,0.1);
    }
    .conversation {
      margin-top: 30px;
    }
    .message {
      margin-bottom: 25px;
      padding: 15px;
      border-radius: 8px;
      background-color: #fff;
      border-left: 4px solid #3498db;
      box-shadow: 0 1px 3px rgba(0,0,0,0.1);
    }
    .message-system {
      border-left-color: #95a5a6;
      background-color: #fafafa;
    }
    .message-header {
      display: flex;
      justify-content: space-between;
      align-items: center;
      margin-bottom: 10px;
      padding-bottom: 8px;
      border-bottom: 1px solid #e0e0e0;
    }
    .agent-name {
      font-weight: bold;
      color: #2980b9;
      font-size: 1.1em;
    }
    .agent-name.system {
      color: #7f8c8d;
    }
    .timestamp {
      color: #95a5a6;
      font-size: 0.9em;
    }
    .message-content {
      margin: 10px 0;
      line-height: 1.8;
    }
    @media print {
      .container {
        box-shadow: none;
      }
      .message {
        break-inside: avoid;
      }
    }`
}

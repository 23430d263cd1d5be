package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pidginhq/pidgin/pkg/event"
)

func sampleMessages() []event.Message {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return []event.Message{
		{Role: event.RoleSystem, AgentID: "agent_a", Content: "You are concise.", Timestamp: base},
		{Role: event.RoleUser, AgentID: "human", Content: "Discuss consciousness.", Timestamp: base.Add(time.Second)},
		{Role: event.RoleAssistant, AgentID: "agent_a", Content: "I think, therefore I am.", Timestamp: base.Add(2 * time.Second)},
		{Role: event.RoleAssistant, AgentID: "agent_b", Content: "A bold claim.", Timestamp: base.Add(3 * time.Second)},
	}
}

func TestExport_JSON(t *testing.T) {
	exporter := NewExporter(Options{Format: FormatJSON, Title: "Test"})
	var buf bytes.Buffer
	if err := exporter.Export(sampleMessages(), &buf); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	var decoded struct {
		Title    string          `json:"title"`
		Messages []event.Message `json:"messages"`
		Summary  *Summary        `json:"summary"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode exported JSON: %v", err)
	}

	if decoded.Title != "Test" {
		t.Errorf("expected title Test, got %s", decoded.Title)
	}
	if len(decoded.Messages) != 4 {
		t.Errorf("expected 4 messages, got %d", len(decoded.Messages))
	}
	if decoded.Summary.TotalMessages != 4 {
		t.Errorf("expected summary of 4 messages, got %d", decoded.Summary.TotalMessages)
	}
	if decoded.Summary.UniqueAgents != 3 {
		t.Errorf("expected 3 unique agents (agent_a, agent_b, human), got %d", decoded.Summary.UniqueAgents)
	}
}

func TestExport_Markdown(t *testing.T) {
	exporter := NewExporter(Options{
		Format:            FormatMarkdown,
		Title:             "My Conversation",
		IncludeTimestamps: true,
		DisplayNames:      map[string]string{"agent_a": "Orion", "agent_b": "Vega"},
	})
	var buf bytes.Buffer
	if err := exporter.Export(sampleMessages(), &buf); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "# My Conversation") {
		t.Error("expected markdown title heading")
	}
	if !strings.Contains(out, "### Orion") {
		t.Error("expected display name substitution for agent_a")
	}
	if !strings.Contains(out, "### Vega") {
		t.Error("expected display name substitution for agent_b")
	}
	if !strings.Contains(out, "[SYSTEM]") {
		t.Error("expected system message badge")
	}
	if !strings.Contains(out, "I think, therefore I am.") {
		t.Error("expected message content present")
	}
}

func TestExport_HTML(t *testing.T) {
	exporter := NewExporter(Options{Format: FormatHTML, Title: "HTML Export"})
	var buf bytes.Buffer
	if err := exporter.Export(sampleMessages(), &buf); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "<!DOCTYPE html>") {
		t.Error("expected HTML doctype")
	}
	if !strings.Contains(out, "<title>HTML Export</title>") {
		t.Error("expected escaped title in head")
	}
	if !strings.Contains(out, "message-system") {
		t.Error("expected system message class")
	}
}

func TestExport_UnsupportedFormat(t *testing.T) {
	exporter := NewExporter(Options{Format: "xml"})
	var buf bytes.Buffer
	if err := exporter.Export(sampleMessages(), &buf); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestExport_HTMLEscapesContent(t *testing.T) {
	messages := []event.Message{
		{Role: event.RoleAssistant, AgentID: "agent_a", Content: "<script>alert(1)</script>", Timestamp: time.Now()},
	}
	exporter := NewExporter(Options{Format: FormatHTML})
	var buf bytes.Buffer
	if err := exporter.Export(messages, &buf); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if strings.Contains(buf.String(), "<script>alert(1)</script>") {
		t.Error("expected message content to be HTML-escaped")
	}
}

func TestCalculateSummary(t *testing.T) {
	summary := calculateSummary(sampleMessages())
	if summary.TotalMessages != 4 {
		t.Errorf("expected 4 messages, got %d", summary.TotalMessages)
	}
	if summary.UniqueAgents != 3 {
		t.Errorf("expected 3 unique agents, got %d", summary.UniqueAgents)
	}
}

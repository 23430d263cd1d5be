package conversation

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/pidginhq/pidgin/pkg/config"
	"github.com/pidginhq/pidgin/pkg/event"
)

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.AgentA.Model = "gpt-4o"
	cfg.AgentB.Model = "claude-sonnet-4-5"
	return cfg
}

func TestNewSnapshot(t *testing.T) {
	cfg := testConfig()
	messages := []event.Message{
		{AgentID: "agent_a", Role: event.RoleAssistant, Content: "hello", Timestamp: time.Now()},
		{AgentID: "agent_b", Role: event.RoleAssistant, Content: "hi there", Timestamp: time.Now()},
	}

	startedAt := time.Now().Add(-5 * time.Minute)
	snap := NewSnapshot("conv_abc123", messages, cfg, startedAt, 1, event.EndMaxTurnsReached)

	if snap == nil {
		t.Fatal("snapshot should not be nil")
	}
	if snap.Version != "1.0" {
		t.Errorf("expected version 1.0, got %s", snap.Version)
	}
	if len(snap.Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(snap.Messages))
	}
	if snap.Config == nil {
		t.Error("config should not be nil")
	}
	if snap.Metadata.TotalMessages != 2 {
		t.Errorf("expected 2 total messages, got %d", snap.Metadata.TotalMessages)
	}
	if snap.Metadata.TotalTurns != 1 {
		t.Errorf("expected 1 total turn, got %d", snap.Metadata.TotalTurns)
	}
}

func TestSnapshot_Save(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "test-snapshot.json")

	cfg := testConfig()
	messages := []event.Message{
		{AgentID: "agent_a", Role: event.RoleAssistant, Content: "test message", Timestamp: time.Now()},
	}

	snap := NewSnapshot("conv_test", messages, cfg, time.Now(), 0, event.EndMaxTurnsReached)

	if err := snap.Save(path); err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("snapshot file was not created")
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("failed to stat snapshot file: %v", err)
		}
		if mode := info.Mode().Perm(); mode != 0600 {
			t.Errorf("expected file permissions 0600, got %o", mode)
		}
	}
}

func TestSnapshot_Save_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "dir", "snapshot.json")

	cfg := testConfig()
	messages := []event.Message{
		{AgentID: "agent_a", Role: event.RoleAssistant, Content: "test", Timestamp: time.Now()},
	}

	snap := NewSnapshot("conv_test", messages, cfg, time.Now(), 0, event.EndMaxTurnsReached)
	if err := snap.Save(path); err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("snapshot file was not created in nested directory")
	}
}

func TestLoadSnapshot_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "roundtrip.json")

	cfg := testConfig()
	startedAt := time.Now().Add(-10 * time.Minute)
	messages := []event.Message{
		{AgentID: "agent_a", Role: event.RoleAssistant, Content: "first", Timestamp: startedAt},
		{AgentID: "agent_b", Role: event.RoleAssistant, Content: "second", Timestamp: startedAt},
	}

	original := NewSnapshot("conv_roundtrip", messages, cfg, startedAt, 1, event.EndHighConvergence)
	if err := original.Save(path); err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("failed to load snapshot: %v", err)
	}

	if loaded.ConversationID != original.ConversationID {
		t.Errorf("expected conversation id %s, got %s", original.ConversationID, loaded.ConversationID)
	}
	if len(loaded.Messages) != len(original.Messages) {
		t.Errorf("expected %d messages, got %d", len(original.Messages), len(loaded.Messages))
	}
	if loaded.Metadata.EndReason != event.EndHighConvergence {
		t.Errorf("expected end reason %s, got %s", event.EndHighConvergence, loaded.Metadata.EndReason)
	}
}

func TestLoadSnapshot_MissingFile(t *testing.T) {
	if _, err := LoadSnapshot("/nonexistent/path/snapshot.json"); err == nil {
		t.Error("expected error loading missing snapshot file")
	}
}

func TestListSnapshots(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := testConfig()
	for i := 0; i < 3; i++ {
		snap := NewSnapshot("conv_x", nil, cfg, time.Now(), 0, event.EndMaxTurnsReached)
		// GenerateSnapshotFileName has one-second resolution, so prefix the
		// index to keep the three files distinct.
		if err := snap.Save(filepath.Join(tmpDir, fmt.Sprintf("%d-%s", i, GenerateSnapshotFileName()))); err != nil {
			t.Fatalf("failed to save snapshot %d: %v", i, err)
		}
		time.Sleep(time.Millisecond)
	}

	paths, err := ListSnapshots(tmpDir)
	if err != nil {
		t.Fatalf("failed to list snapshots: %v", err)
	}
	if len(paths) != 3 {
		t.Errorf("expected 3 snapshots, got %d", len(paths))
	}
}

func TestListSnapshots_MissingDirectory(t *testing.T) {
	paths, err := ListSnapshots("/nonexistent/snapshot/dir")
	if err != nil {
		t.Fatalf("expected no error for missing directory, got %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("expected 0 snapshots, got %d", len(paths))
	}
}

func TestGetSnapshotInfo(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "info.json")

	cfg := testConfig()
	messages := []event.Message{
		{AgentID: "agent_a", Role: event.RoleAssistant, Content: "hi", Timestamp: time.Now()},
	}
	snap := NewSnapshot("conv_info", messages, cfg, time.Now(), 0, event.EndMaxTurnsReached)
	if err := snap.Save(path); err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}

	info, err := GetSnapshotInfo(path)
	if err != nil {
		t.Fatalf("failed to get snapshot info: %v", err)
	}
	if info.ModelA != cfg.AgentA.Model {
		t.Errorf("expected model_a %s, got %s", cfg.AgentA.Model, info.ModelA)
	}
	if info.ModelB != cfg.AgentB.Model {
		t.Errorf("expected model_b %s, got %s", cfg.AgentB.Model, info.ModelB)
	}
	if info.Messages != 1 {
		t.Errorf("expected 1 message, got %d", info.Messages)
	}
}

// Package conversation also provides post-hoc save/load tooling over a
// finished or in-progress conversation's message history: a Snapshot is a
// point-in-time dump a caller can write after a run for later inspection.
// Snapshots are read-only tooling -- they do not feed back into the live
// conductor loop, and loading one does not resume a conversation.
package conversation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pidginhq/pidgin/internal/pidginlog"
	"github.com/pidginhq/pidgin/pkg/config"
	"github.com/pidginhq/pidgin/pkg/event"
)

// Snapshot is a saved, self-contained view of one conversation: its
// messages, the configuration that produced them, and summary metadata.
type Snapshot struct {
	// Version is the snapshot file format version.
	Version string `json:"version"`

	// SavedAt is when the snapshot was written.
	SavedAt time.Time `json:"saved_at"`

	// ConversationID identifies the run this snapshot was taken from.
	ConversationID string `json:"conversation_id"`

	// Messages is the conversation history at the time of the snapshot.
	Messages []event.Message `json:"messages"`

	// Config is the configuration used for this conversation.
	Config *config.Config `json:"config"`

	// Metadata contains summary information about the conversation.
	Metadata SnapshotMetadata `json:"metadata"`
}

// SnapshotMetadata summarizes a conversation at snapshot time.
type SnapshotMetadata struct {
	TotalTurns    int           `json:"total_turns"`
	TotalMessages int           `json:"total_messages"`
	TotalDuration time.Duration `json:"total_duration_ns"`
	StartedAt     time.Time     `json:"started_at"`
	EndReason     event.EndReason `json:"end_reason,omitempty"`
}

// NewSnapshot builds a Snapshot from a conversation's accumulated history.
// totalTurns is supplied separately because a Turn is two messages, not one.
func NewSnapshot(conversationID string, messages []event.Message, cfg *config.Config, startedAt time.Time, totalTurns int, reason event.EndReason) *Snapshot {
	return &Snapshot{
		Version:        "1.0",
		SavedAt:        time.Now(),
		ConversationID: conversationID,
		Messages:       messages,
		Config:         cfg,
		Metadata: SnapshotMetadata{
			TotalTurns:    totalTurns,
			TotalMessages: len(messages),
			StartedAt:     startedAt,
			TotalDuration: time.Since(startedAt),
			EndReason:     reason,
		},
	}
}

// Save writes the snapshot to path as indented JSON, 0600 permissions.
func (s *Snapshot) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		pidginlog.WithError(err).WithField("directory", dir).Error("failed to create snapshot directory")
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		pidginlog.WithError(err).Error("failed to marshal conversation snapshot")
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		pidginlog.WithError(err).WithField("path", path).Error("failed to write snapshot file")
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}

	pidginlog.WithFields(map[string]interface{}{
		"path":        path,
		"messages":    len(s.Messages),
		"total_turns": s.Metadata.TotalTurns,
		"file_size":   len(data),
	}).Info("conversation snapshot saved")

	return nil
}

// LoadSnapshot reads a snapshot previously written by Save.
func LoadSnapshot(path string) (*Snapshot, error) {
	pidginlog.WithField("path", path).Debug("loading conversation snapshot")

	data, err := os.ReadFile(path)
	if err != nil {
		pidginlog.WithError(err).WithField("path", path).Error("failed to read snapshot file")
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		pidginlog.WithError(err).WithField("path", path).Error("failed to parse snapshot file")
		return nil, fmt.Errorf("failed to parse snapshot file: %w", err)
	}

	pidginlog.WithFields(map[string]interface{}{
		"path":        path,
		"version":     snap.Version,
		"messages":    len(snap.Messages),
		"saved_at":    snap.SavedAt,
		"started_at":  snap.Metadata.StartedAt,
		"total_turns": snap.Metadata.TotalTurns,
	}).Info("conversation snapshot loaded")

	return &snap, nil
}

// DefaultSnapshotDir returns ~/.pidgin/snapshots.
func DefaultSnapshotDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".pidgin", "snapshots"), nil
}

// GenerateSnapshotFileName returns a timestamped filename, e.g.
// conversation-20260731-153000.json.
func GenerateSnapshotFileName() string {
	return fmt.Sprintf("conversation-%s.json", time.Now().Format("20060102-150405"))
}

// ListSnapshots lists all snapshot files in dir, sorted by filename.
func ListSnapshots(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	return paths, nil
}

// SnapshotInfo is summary information about a saved snapshot, read without
// requiring the caller to deserialize the full message history.
type SnapshotInfo struct {
	Path       string
	SavedAt    time.Time
	StartedAt  time.Time
	Messages   int
	Turns      int
	EndReason  event.EndReason
	ModelA     string
	ModelB     string
}

// GetSnapshotInfo reads summary information from a snapshot file.
func GetSnapshotInfo(path string) (*SnapshotInfo, error) {
	snap, err := LoadSnapshot(path)
	if err != nil {
		return nil, err
	}

	var modelA, modelB string
	if snap.Config != nil {
		modelA = snap.Config.AgentA.Model
		modelB = snap.Config.AgentB.Model
	}

	return &SnapshotInfo{
		Path:      path,
		SavedAt:   snap.SavedAt,
		StartedAt: snap.Metadata.StartedAt,
		Messages:  len(snap.Messages),
		Turns:     snap.Metadata.TotalTurns,
		EndReason: snap.Metadata.EndReason,
		ModelA:    modelA,
		ModelB:    modelB,
	}, nil
}

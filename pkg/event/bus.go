package event

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/pidginhq/pidgin/internal/pidginlog"
)

// Handler reacts to one emitted event. Handlers are invoked synchronously,
// in registration order; a returned error is logged and swallowed -- it
// never blocks other handlers or the emitting call.
type Handler func(ctx context.Context, e Event) error

// DefaultHistoryCapacity is the default size of the in-memory event ring.
const DefaultHistoryCapacity = 1000

type subscription struct {
	id       uint64
	wildcard bool
	evtType  Type
	handler  Handler
}

// Bus is the in-process publish/subscribe dispatcher. It also maintains a
// bounded in-memory history and, when a log directory is configured,
// appends every conversation-scoped event to that conversation's
// append-only JSONL log. Three independent mutexes guard the subscriber
// table, the history ring, and the per-conversation file-handle table --
// none of them is held across a handler invocation or a file write. Writes
// to one conversation's file are serialized by that file's own mutex.
type Bus struct {
	logDir      string
	historyCap  int
	nextSubID   uint64

	subMu sync.RWMutex
	subs  []subscription

	histMu  sync.RWMutex
	history []Event
	histPos int
	histLen int

	filesMu sync.Mutex
	files   map[string]*conversationLog

	stopped atomic.Bool
}

type conversationLog struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

// NewBus creates a bus. logDir may be empty, in which case no persistence
// occurs (useful for tests). historyCap <= 0 selects DefaultHistoryCapacity.
func NewBus(logDir string, historyCap int) *Bus {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCapacity
	}
	return &Bus{
		logDir:     logDir,
		historyCap: historyCap,
		history:    make([]Event, historyCap),
		files:      make(map[string]*conversationLog),
	}
}

// Start marks the bus as running. It exists to mirror the contract's
// start()/stop() pair; a freshly constructed Bus already accepts emits.
func (b *Bus) Start() {
	b.stopped.Store(false)
}

// Subscribe registers handler for one specific event type.
func (b *Bus) Subscribe(t Type, h Handler) uint64 {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.nextSubID++
	id := b.nextSubID
	b.subs = append(b.subs, subscription{id: id, evtType: t, handler: h})
	return id
}

// SubscribeAll registers a wildcard handler invoked for every event type.
func (b *Bus) SubscribeAll(h Handler) uint64 {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.nextSubID++
	id := b.nextSubID
	b.subs = append(b.subs, subscription{id: id, wildcard: true, handler: h})
	return id
}

// Unsubscribe removes a previously registered subscription by its id.
func (b *Bus) Unsubscribe(id uint64) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Emit dispatches e to every matching subscriber in registration order,
// appends it to the in-memory history ring, and persists it to its
// conversation's log file if one is configured. It returns once all
// synchronous work has completed; handler errors are logged, not returned.
func (b *Bus) Emit(ctx context.Context, e Event) error {
	b.subMu.RLock()
	matching := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.wildcard || s.evtType == e.EventType() {
			matching = append(matching, s.handler)
		}
	}
	b.subMu.RUnlock()

	for _, h := range matching {
		b.invoke(ctx, h, e)
	}

	b.appendHistory(e)

	if err := b.persist(e); err != nil {
		pidginlog.WithError(err).WithField("event_type", string(e.EventType())).Error("failed to persist event")
	}

	return nil
}

func (b *Bus) invoke(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			pidginlog.WithField("panic", r).WithField("event_type", string(e.EventType())).Error("event subscriber panicked")
		}
	}()
	if err := h(ctx, e); err != nil {
		pidginlog.WithError(err).WithField("event_type", string(e.EventType())).Warn("event subscriber returned an error")
	}
}

func (b *Bus) appendHistory(e Event) {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	b.history[b.histPos] = e
	b.histPos = (b.histPos + 1) % b.historyCap
	if b.histLen < b.historyCap {
		b.histLen++
	}
}

// History returns a snapshot of the in-memory ring, oldest first, optionally
// filtered to a single event type.
func (b *Bus) History(filter *Type) []Event {
	b.histMu.RLock()
	defer b.histMu.RUnlock()

	out := make([]Event, 0, b.histLen)
	start := 0
	if b.histLen == b.historyCap {
		start = b.histPos
	}
	for i := 0; i < b.histLen; i++ {
		e := b.history[(start+i)%b.historyCap]
		if filter == nil || e.EventType() == *filter {
			out = append(out, e)
		}
	}
	return out
}

func (b *Bus) persist(e Event) error {
	if b.logDir == "" {
		return nil
	}
	convID := e.Envelope().ConversationID
	if convID == "" {
		return nil
	}

	cl, err := b.conversationLog(convID)
	if err != nil {
		return err
	}

	line, err := EncodeLine(e)
	if err != nil {
		return err
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if _, err := cl.writer.Write(line); err != nil {
		return err
	}
	if err := cl.writer.WriteByte('\n'); err != nil {
		return err
	}
	return cl.writer.Flush()
}

func (b *Bus) conversationLog(conversationID string) (*conversationLog, error) {
	b.filesMu.Lock()
	defer b.filesMu.Unlock()

	if cl, ok := b.files[conversationID]; ok {
		return cl, nil
	}

	if err := os.MkdirAll(b.logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	path := filepath.Join(b.logDir, fmt.Sprintf("%s_events.jsonl", conversationID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open conversation log: %w", err)
	}

	cl := &conversationLog{file: f, writer: bufio.NewWriter(f)}
	b.files[conversationID] = cl
	return cl, nil
}

// CloseConversationLog flushes and closes one conversation's log file, if open.
func (b *Bus) CloseConversationLog(conversationID string) error {
	b.filesMu.Lock()
	cl, ok := b.files[conversationID]
	if ok {
		delete(b.files, conversationID)
	}
	b.filesMu.Unlock()

	if !ok {
		return nil
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if err := cl.writer.Flush(); err != nil {
		return err
	}
	return cl.file.Close()
}

// Stop flushes and closes every open conversation log file.
func (b *Bus) Stop() error {
	b.stopped.Store(true)

	b.filesMu.Lock()
	ids := make([]string, 0, len(b.files))
	for id := range b.files {
		ids = append(ids, id)
	}
	b.filesMu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := b.CloseConversationLog(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

package action

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harun/opsframe/pkg/tool"
)

// ErrNotFound is returned for unknown execution IDs.
var ErrNotFound = errors.New("execution not found")

// HistoryEntry records one successful action execution so that it can be
// rolled back later.
type HistoryEntry struct {
	ExecutionID string         `json:"execution_id"`
	Action      string         `json:"action"`
	Params      map[string]any `json:"params"`
	Result      tool.Result    `json:"result"`
	CostUSD     float64        `json:"cost_usd"`
	Timestamp   time.Time      `json:"timestamp"`
	MissionID   string         `json:"mission_id,omitempty"`
	UserID      string         `json:"user_id,omitempty"`
	RoleID      string         `json:"role_id,omitempty"`
	RolledBack  bool           `json:"rolled_back"`
}

// HistoryStore persists execution history.
type HistoryStore interface {
	Save(ctx context.Context, entry HistoryEntry) error
	Get(ctx context.Context, executionID string) (HistoryEntry, error)
	// List returns entries newest first, optionally for one action.
	List(ctx context.Context, action string, limit int) ([]HistoryEntry, error)
	MarkRolledBack(ctx context.Context, executionID string) error
}

// MemoryHistory is the default, process-local HistoryStore.
type MemoryHistory struct {
	mu      sync.RWMutex
	entries map[string]HistoryEntry
}

// NewMemoryHistory creates an empty in-memory store.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{entries: make(map[string]HistoryEntry)}
}

func (h *MemoryHistory) Save(_ context.Context, entry HistoryEntry) error {
	if entry.ExecutionID == "" {
		return fmt.Errorf("execution id is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.entries[entry.ExecutionID]; exists {
		return fmt.Errorf("execution %s already recorded", entry.ExecutionID)
	}
	h.entries[entry.ExecutionID] = entry
	return nil
}

func (h *MemoryHistory) Get(_ context.Context, executionID string) (HistoryEntry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	entry, ok := h.entries[executionID]
	if !ok {
		return HistoryEntry{}, fmt.Errorf("%w: %s", ErrNotFound, executionID)
	}
	return entry, nil
}

func (h *MemoryHistory) List(_ context.Context, action string, limit int) ([]HistoryEntry, error) {
	h.mu.RLock()
	out := make([]HistoryEntry, 0, len(h.entries))
	for _, entry := range h.entries {
		if action == "" || entry.Action == action {
			out = append(out, entry)
		}
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h *MemoryHistory) MarkRolledBack(_ context.Context, executionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.entries[executionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, executionID)
	}
	entry.RolledBack = true
	h.entries[executionID] = entry
	return nil
}

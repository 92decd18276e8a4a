package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dmaas/ivcrush/internal/gateway"
)

// HealthSnapshot is one line of the NDJSON health log.
type HealthSnapshot struct {
	Timestamp    time.Time        `json:"timestamp"`
	State        string           `json:"state"`
	Breaker      gateway.Snapshot `json:"breaker"`
	OpenTrades   int              `json:"open_trades"`
	CycleErrors  int              `json:"cycle_errors"`
	LastCycleErr string           `json:"last_cycle_error,omitempty"`
}

// HealthLog appends snapshots to an NDJSON file, one object per line.
type HealthLog struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewHealthLog opens (or creates) the health log at path.
func NewHealthLog(path string) (*HealthLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create health log directory: %w", err)
		}
	}
	return &HealthLog{path: path, now: time.Now}, nil
}

// Record appends a snapshot. The timestamp is stamped here.
func (h *HealthLog) Record(snap HealthSnapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap.Timestamp = h.now().UTC()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal health snapshot: %w", err)
	}

	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open health log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write health snapshot: %w", err)
	}
	return nil
}

// Recent returns up to limit snapshots from the end of the log, oldest first.
func (h *HealthLog) Recent(limit int) ([]HealthSnapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := os.ReadFile(h.path)
	if os.IsNotExist(err) {
		return []HealthSnapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read health log: %w", err)
	}

	snaps := make([]HealthSnapshot, 0)
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1
			if len(line) == 0 {
				continue
			}
			var snap HealthSnapshot
			if err := json.Unmarshal(line, &snap); err != nil {
				// skip torn or corrupt lines
				continue
			}
			snaps = append(snaps, snap)
		}
	}

	if limit > 0 && len(snaps) > limit {
		snaps = snaps[len(snaps)-limit:]
	}
	return snaps, nil
}

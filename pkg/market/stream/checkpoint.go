package stream

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"marketpulse/pkg/market"
)

// checkpoint is the on-disk snapshot of the monitor's buffers, written
// with msgpack. It lets a restarted feed resume with warm windows
// instead of waiting for a full REST backfill.
type checkpoint struct {
	SavedAt time.Time                 `msgpack:"saved_at"`
	Window  int                       `msgpack:"window"`
	Buffers map[string][]market.Kline `msgpack:"buffers"`
}

// SaveCheckpoint writes the current buffers to path atomically (write
// to a temp file, then rename).
func (m *Monitor) SaveCheckpoint(path string) error {
	m.mu.RLock()
	snapshot := checkpoint{
		SavedAt: time.Now(),
		Window:  m.window,
		Buffers: make(map[string][]market.Kline, len(m.buffers)),
	}
	for key, buf := range m.buffers {
		snapshot.Buffers[key] = append([]market.Kline(nil), buf...)
	}
	m.mu.RUnlock()

	payload, err := msgpack.Marshal(&snapshot)
	if err != nil {
		return fmt.Errorf("market: encode checkpoint: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("market: checkpoint dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("market: write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("market: commit checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint restores buffers from a prior SaveCheckpoint. Entries
// older than maxAge are skipped; a maxAge of 0 accepts any age. Loaded
// buffers are trimmed to the monitor's window.
func (m *Monitor) LoadCheckpoint(path string, maxAge time.Duration) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var snapshot checkpoint
	if err := msgpack.Unmarshal(payload, &snapshot); err != nil {
		return fmt.Errorf("market: decode checkpoint: %w", err)
	}
	if maxAge > 0 && time.Since(snapshot.SavedAt) > maxAge {
		return fmt.Errorf("market: checkpoint from %s is older than %s", snapshot.SavedAt.Format(time.RFC3339), maxAge)
	}

	m.mu.Lock()
	for key, buf := range snapshot.Buffers {
		if len(buf) > m.window {
			buf = buf[len(buf)-m.window:]
		}
		m.buffers[key] = append([]market.Kline(nil), buf...)
	}
	m.mu.Unlock()
	return nil
}

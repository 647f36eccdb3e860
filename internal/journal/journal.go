// Package journal records the outcome of every stake operation so a run
// can be audited after the fact.
package journal

import (
	"sync"
	"time"
)

// Entry is one attempted or completed stake operation.
type Entry struct {
	Time      time.Time `json:"time"`
	Direction string    `json:"direction"`
	Netuid    uint16    `json:"netuid"`
	AmountTao float64   `json:"amount_tao"`
	PriceTao  float64   `json:"price_tao"`
	TxRef     string    `json:"tx_ref,omitempty"`
	DryRun    bool      `json:"dry_run,omitempty"`
	Result    string    `json:"result"`
}

// Recorder captures entries for later inspection.
type Recorder interface {
	Record(Entry)
}

// Memory stores entries in memory for quick inspection and tests.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemory creates an empty in-memory journal.
func NewMemory() *Memory { return &Memory{} }

// Record appends an entry.
func (m *Memory) Record(entry Entry) {
	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()
}

// Snapshot returns a copy of the recorded entries.
func (m *Memory) Snapshot() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Reset clears all stored entries.
func (m *Memory) Reset() {
	m.mu.Lock()
	m.entries = m.entries[:0]
	m.mu.Unlock()
}

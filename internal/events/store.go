// Package events keeps a local journal of ssh launches and their outcomes.
package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/treykane/ansible-ssh/internal/appconfig"
	"github.com/treykane/ansible-ssh/internal/history"
)

// Event types written by the launcher.
const (
	TypeConnect = "connect"
	TypeExit    = "exit"
	TypeFailed  = "failed"
)

// Event is one launch record persisted to events.jsonl. It never carries a
// password; Target is the user@address ssh was given.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Inventory string    `json:"inventory,omitempty"`
	Host      string    `json:"host"`
	Target    string    `json:"target,omitempty"`
	EventType string    `json:"event_type"`
	Mode      string    `json:"mode,omitempty"`
	ExitCode  int       `json:"exit_code,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Query controls event filtering and bounded reads.
type Query struct {
	Inventory string
	Host      string
	EventType string
	Since     time.Time
	Limit     int
}

// Store provides append/read access to the local event journal.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func filePath() (string, error) {
	dir, err := appconfig.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "events.jsonl"), nil
}

// Append writes a single event as one JSON line.
func (s *Store) Append(evt Event) error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if evt.Inventory != "" {
		evt.Inventory = inventoryScope(evt.Inventory)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

// Read returns events in append order, filtered by query, keeping only the
// newest Limit matches when Limit is positive. Corrupt lines are skipped.
func (s *Store) Read(q Query) ([]Event, error) {
	path, err := filePath()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	if q.Inventory != "" {
		q.Inventory = inventoryScope(q.Inventory)
	}
	var out []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var evt Event
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			continue
		}
		if !matches(evt, q) {
			continue
		}
		out = append(out, evt)
		if q.Limit > 0 && len(out) > q.Limit {
			out = out[len(out)-q.Limit:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return out, nil
}

// inventoryScope normalizes an inventory path the same way history keys do.
func inventoryScope(inventory string) string {
	key := history.Key(inventory, "")
	return strings.TrimSuffix(key, "|")
}

func matches(evt Event, q Query) bool {
	if strings.TrimSpace(q.Inventory) != "" && evt.Inventory != q.Inventory {
		return false
	}
	if strings.TrimSpace(q.Host) != "" && evt.Host != q.Host {
		return false
	}
	if strings.TrimSpace(q.EventType) != "" && evt.EventType != q.EventType {
		return false
	}
	if !q.Since.IsZero() && evt.Timestamp.Before(q.Since) {
		return false
	}
	return true
}

// Package history remembers when each inventory host was last connected to,
// so the picker can offer recent hosts first.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/treykane/ansible-ssh/internal/appconfig"
)

type store struct {
	LastUsed map[string]int64 `json:"last_used"`
}

func filePath() (string, error) {
	dir, err := appconfig.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.json"), nil
}

// Key scopes a host name to the inventory it came from.
func Key(inventory, host string) string {
	if inventory != "" {
		if abs, err := filepath.Abs(inventory); err == nil {
			inventory = abs
		}
	}
	return inventory + "|" + host
}

// Touch records a connection attempt for host in inventory.
func Touch(inventory, host string) error {
	st, err := load()
	if err != nil {
		return err
	}
	if st.LastUsed == nil {
		st.LastUsed = map[string]int64{}
	}
	st.LastUsed[Key(inventory, host)] = time.Now().Unix()
	return save(st)
}

// LastUsed returns last connection timestamps for the hosts of inventory,
// keyed by host name.
func LastUsed(inventory string) (map[string]int64, error) {
	st, err := load()
	if err != nil {
		return nil, err
	}
	prefix := Key(inventory, "")
	out := map[string]int64{}
	for k, ts := range st.LastUsed {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out[k[len(prefix):]] = ts
		}
	}
	return out, nil
}

// SortRecent returns a new slice sorted by recent activity (desc), then name.
func SortRecent(hosts []string, lastUsed map[string]int64) []string {
	out := append([]string(nil), hosts...)
	sort.SliceStable(out, func(i, j int) bool {
		ti := lastUsed[out[i]]
		tj := lastUsed[out[j]]
		if ti != tj {
			return ti > tj
		}
		return out[i] < out[j]
	})
	return out
}

func load() (store, error) {
	path, err := filePath()
	if err != nil {
		return store{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store{LastUsed: map[string]int64{}}, nil
		}
		return store{}, err
	}
	var st store
	if err := json.Unmarshal(b, &st); err != nil {
		return store{LastUsed: map[string]int64{}}, nil
	}
	if st.LastUsed == nil {
		st.LastUsed = map[string]int64{}
	}
	return st, nil
}

func save(st store) error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"streamnzb/pkg/logger"
	"sync"
)

// StateManager is a flat key-value store backed by a single JSON file on
// disk; every Set flushes the whole file.
type StateManager struct {
	filePath string
	data     map[string]json.RawMessage
	mu       sync.RWMutex
}

var globalManager *StateManager
var managerMu sync.Mutex

// GetManager returns the process-wide StateManager, loading it from dataDir
// on first call.
func GetManager(dataDir string) (*StateManager, error) {
	managerMu.Lock()
	defer managerMu.Unlock()

	if globalManager != nil {
		return globalManager, nil
	}

	path := filepath.Join(dataDir, "state.json")
	m := &StateManager{
		filePath: path,
		data:     make(map[string]json.RawMessage),
	}

	if err := m.load(); err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	globalManager = m
	return m, nil
}

func (m *StateManager) load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// A pre-state.json install may still have a standalone
			// usage.json; fold it in under "indexer_usage" once and retire it.
			usagePath := filepath.Join(filepath.Dir(m.filePath), "usage.json")
			if _, err := os.Stat(usagePath); err == nil {
				logger.Info("migrating usage.json into state.json")
				usageData, err := os.ReadFile(usagePath)
				if err == nil {
					m.data["indexer_usage"] = usageData
					if err := m.saveLocked(); err == nil {
						os.Remove(usagePath)
						return nil
					}
				}
			}
			return nil
		}
		return err
	}

	return json.Unmarshal(data, &m.data)
}

// Save flushes the current state to disk.
func (m *StateManager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveLocked()
}

func (m *StateManager) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.filePath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(m.data, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(m.filePath, data, 0644)
}

// Get unmarshals the stored value for key into target. The bool return is
// false only when key isn't present; an unmarshal error is still reported
// alongside a true "found" so callers can tell "missing" from "corrupt".
func (m *StateManager) Get(key string, target interface{}) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return true, err
	}

	return true, nil
}

// Set marshals value under key and persists the whole store to disk.
func (m *StateManager) Set(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.data[key] = raw
	m.mu.Unlock()

	return m.Save()
}

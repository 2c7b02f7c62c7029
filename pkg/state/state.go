// Package state persists cluster runtime snapshots for ClusterRunner
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/clusterrunner/clusterrunner/pkg/logger"
	"github.com/clusterrunner/clusterrunner/pkg/types"
)

// NodeState is the persisted snapshot of one managed node. The run
// command writes these so other tooling can inspect a live cluster.
type NodeState struct {
	NodeName   string          `json:"nodeName"`
	Ordinal    int             `json:"ordinal"`
	Cluster    string          `json:"cluster"`
	HTTPPort   int             `json:"httpPort"`
	Status     types.NodeState `json:"status"`
	ProcessID  int             `json:"processId"`
	InstanceID string          `json:"instanceId,omitempty"`
	Heartbeat  time.Time       `json:"heartbeat"`
	LastError  string          `json:"lastError,omitempty"`
	HomeDir    string          `json:"homeDir,omitempty"`
	LogsDir    string          `json:"logsDir,omitempty"`
}

// Manager handles persistent state files under the cluster base path.
type Manager struct {
	stateDir string
	logger   logger.Logger
	mu       sync.RWMutex
	states   map[string]*NodeState
}

// NewManager creates a state manager rooted at the cluster base path.
func NewManager(basePath string, log logger.Logger) *Manager {
	stateDir := filepath.Join(basePath, ".clusterrunner", "state")

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		log.Error("Failed to create state directory", logger.WithField("error", err))
	}

	return &Manager{
		stateDir: stateDir,
		logger:   log,
		states:   make(map[string]*NodeState),
	}
}

// SaveNode writes the snapshot for one node, replacing any earlier one.
func (m *Manager) SaveNode(s *NodeState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.ProcessID = os.Getpid()
	s.Heartbeat = time.Now()

	if err := m.saveStateFile(s); err != nil {
		return fmt.Errorf("failed to save state for %s: %w", s.NodeName, err)
	}
	m.states[s.NodeName] = s
	return nil
}

// ReadNode reads the snapshot for a node, preferring the memory cache.
func (m *Manager) ReadNode(nodeName string) (*NodeState, error) {
	m.mu.RLock()
	if s, ok := m.states[nodeName]; ok {
		m.mu.RUnlock()
		return s, nil
	}
	m.mu.RUnlock()

	return m.loadStateFile(nodeName)
}

// UpdateStatus transitions the persisted status of a node.
func (m *Manager) UpdateStatus(nodeName string, status types.NodeState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.states[nodeName]
	if !ok {
		var err error
		s, err = m.loadStateFile(nodeName)
		if err != nil {
			return fmt.Errorf("node state not found: %s", nodeName)
		}
		m.states[nodeName] = s
	}
	s.Status = status
	s.Heartbeat = time.Now()
	return m.saveStateFile(s)
}

// Heartbeat refreshes the heartbeat on every cached snapshot.
func (m *Manager) Heartbeat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, s := range m.states {
		s.Heartbeat = now
		if err := m.saveStateFile(s); err != nil {
			m.logger.Debug("Failed to refresh state heartbeat",
				logger.WithField("node", s.NodeName),
				logger.WithField("error", err))
		}
	}
}

// List returns every persisted node snapshot.
func (m *Manager) List() ([]*NodeState, error) {
	entries, err := os.ReadDir(m.stateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []*NodeState
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		s, err := m.loadStateFile(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// RemoveAll deletes every persisted snapshot.
func (m *Manager) RemoveAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = make(map[string]*NodeState)
	return os.RemoveAll(m.stateDir)
}

func (m *Manager) stateFile(nodeName string) string {
	return filepath.Join(m.stateDir, sanitize(nodeName)+".json")
}

func (m *Manager) saveStateFile(s *NodeState) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	// Write atomically so readers never observe a partial snapshot.
	tmp := m.stateFile(s.NodeName) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, m.stateFile(s.NodeName))
}

func (m *Manager) loadStateFile(nodeName string) (*NodeState, error) {
	data, err := os.ReadFile(m.stateFile(nodeName))
	if err != nil {
		return nil, err
	}
	var s NodeState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func sanitize(name string) string {
	return strings.ReplaceAll(name, " ", "_")
}

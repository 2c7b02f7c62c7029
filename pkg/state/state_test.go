package state_test

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/clusterrunner/clusterrunner/pkg/logger"
	"github.com/clusterrunner/clusterrunner/pkg/state"
	"github.com/clusterrunner/clusterrunner/pkg/types"
)

func testLogger() logger.Logger {
	return logger.CreateLoggerWithOutput("error", io.Discard)
}

func TestManager_SaveAndReadNode(t *testing.T) {
	tmpDir := t.TempDir()
	sm := state.NewManager(tmpDir, testLogger())

	snap := &state.NodeState{
		NodeName: "Node 1",
		Ordinal:  1,
		Cluster:  "test-cluster",
		HTTPPort: 9201,
		Status:   types.NodeStateStarted,
	}
	if err := sm.SaveNode(snap); err != nil {
		t.Fatalf("failed to save state: %v", err)
	}

	if snap.ProcessID != os.Getpid() {
		t.Errorf("expected current PID, got %d", snap.ProcessID)
	}
	if snap.Heartbeat.IsZero() {
		t.Error("expected heartbeat to be set on save")
	}

	stateFile := filepath.Join(tmpDir, ".clusterrunner", "state", "Node_1.json")
	if _, err := os.Stat(stateFile); os.IsNotExist(err) {
		t.Error("state file was not created")
	}

	got, err := sm.ReadNode("Node 1")
	if err != nil {
		t.Fatalf("failed to read state: %v", err)
	}
	if got.HTTPPort != 9201 || got.Cluster != "test-cluster" {
		t.Errorf("unexpected snapshot: %+v", got)
	}
}

func TestManager_ReadFromDisk(t *testing.T) {
	tmpDir := t.TempDir()

	writer := state.NewManager(tmpDir, testLogger())
	if err := writer.SaveNode(&state.NodeState{
		NodeName: "Node 2",
		Ordinal:  2,
		Status:   types.NodeStateStarted,
	}); err != nil {
		t.Fatal(err)
	}

	// A fresh manager has an empty cache and must hit the file.
	reader := state.NewManager(tmpDir, testLogger())
	got, err := reader.ReadNode("Node 2")
	if err != nil {
		t.Fatalf("failed to read persisted state: %v", err)
	}
	if got.Ordinal != 2 {
		t.Errorf("expected ordinal 2, got %d", got.Ordinal)
	}
}

func TestManager_UpdateStatus(t *testing.T) {
	tmpDir := t.TempDir()
	sm := state.NewManager(tmpDir, testLogger())

	if err := sm.SaveNode(&state.NodeState{
		NodeName: "Node 1",
		Ordinal:  1,
		Status:   types.NodeStateStarted,
	}); err != nil {
		t.Fatal(err)
	}

	if err := sm.UpdateStatus("Node 1", types.NodeStateClosed); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}

	got, err := sm.ReadNode("Node 1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.NodeStateClosed {
		t.Errorf("expected closed, got %s", got.Status)
	}
}

func TestManager_UpdateStatusUnknownNode(t *testing.T) {
	sm := state.NewManager(t.TempDir(), testLogger())
	if err := sm.UpdateStatus("ghost", types.NodeStateClosed); err == nil {
		t.Error("expected error for unknown node")
	}
}

func TestManager_List(t *testing.T) {
	tmpDir := t.TempDir()
	sm := state.NewManager(tmpDir, testLogger())

	for i := 1; i <= 3; i++ {
		if err := sm.SaveNode(&state.NodeState{
			NodeName: nodeName(i),
			Ordinal:  i,
			Status:   types.NodeStateStarted,
		}); err != nil {
			t.Fatal(err)
		}
	}

	states, err := sm.List()
	if err != nil {
		t.Fatalf("failed to list states: %v", err)
	}
	if len(states) != 3 {
		t.Errorf("expected 3 snapshots, got %d", len(states))
	}
}

func TestManager_RemoveAll(t *testing.T) {
	tmpDir := t.TempDir()
	sm := state.NewManager(tmpDir, testLogger())

	if err := sm.SaveNode(&state.NodeState{NodeName: "Node 1", Ordinal: 1}); err != nil {
		t.Fatal(err)
	}
	if err := sm.RemoveAll(); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	states, err := sm.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 0 {
		t.Errorf("expected no snapshots after removal, got %d", len(states))
	}
}

func nodeName(i int) string {
	return fmt.Sprintf("Node %d", i)
}

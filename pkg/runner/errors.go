package runner

import (
	"errors"
	"fmt"
)

// Sentinel errors for runner operations. These enable reliable error
// checking with errors.Is()
var (
	// ErrAllNodesClosed indicates no live node is available to serve
	// requests.
	ErrAllNodesClosed = errors.New("all nodes are closed")

	// ErrNoClusterManager indicates the cluster has not elected a
	// manager yet.
	ErrNoClusterManager = errors.New("no cluster manager node")
)

// OperationError reports an engine operation that did not acknowledge or
// succeed. It carries the triggering response for programmatic
// inspection.
type OperationError struct {
	Message  string
	Response interface{}
}

func (e *OperationError) Error() string {
	return e.Message
}

// BuildError wraps a failure during a single node's startup. Nodes
// already started are left running.
type BuildError struct {
	Ordinal int
	Err     error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("failed to start node %d: %v", e.Ordinal, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

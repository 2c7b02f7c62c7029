// Package ports finds free TCP ports for cluster nodes
package ports

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/clusterrunner/clusterrunner/pkg/logger"
)

const probeTimeout = time.Second

// PortExhaustedError indicates no free port was found under the ceiling.
type PortExhaustedError struct {
	LastCandidate int
}

func (e *PortExhaustedError) Error() string {
	return fmt.Sprintf("the http port %d is unavailable", e.LastCandidate)
}

// Allocator probes candidate ports by connecting to them. Probing via
// connect rather than bind keeps the allocator from holding the port, so
// the node can bind it moments later. The narrow race window is accepted
// for a single-process test harness.
type Allocator struct {
	logger logger.Logger
}

// NewAllocator creates a port allocator.
func NewAllocator(log logger.Logger) *Allocator {
	return &Allocator{logger: log}
}

// Allocate returns a free port for the given node ordinal, starting at
// basePort+ordinal. A negative maxPort disables scanning entirely: the
// caller guarantees uniqueness and basePort+ordinal is returned as is.
func (a *Allocator) Allocate(basePort, ordinal, maxPort int) (int, error) {
	port := basePort + ordinal
	if maxPort < 0 {
		return port, nil
	}
	for port <= maxPort {
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("localhost:%d", port), probeTimeout)
		if err == nil {
			// Something answered, so the port is taken.
			conn.Close()
			port++
			continue
		}
		if isConnectionRefused(err) {
			return port, nil
		}
		// Transient probe failures count as occupied to avoid handing
		// out a port we could not actually verify.
		a.logger.Warn("Port probe failed",
			logger.WithField("port", port),
			logger.WithField("error", err))
		port++
	}
	return 0, &PortExhaustedError{LastCandidate: port}
}

func isConnectionRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

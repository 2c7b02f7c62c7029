package local

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clusterrunner/clusterrunner/pkg/engine"
	"github.com/clusterrunner/clusterrunner/pkg/settings"
	"github.com/clusterrunner/clusterrunner/pkg/types"
)

// ClusterServiceName is the identifier of the coordination service
// exposed through Node.Service.
const ClusterServiceName = "cluster-service"

const shutdownGrace = 5 * time.Second

var errNotStarted = errors.New("node has not been started")

// Node is one local engine instance. It binds the node's HTTP port and
// serves a minimal REST surface backed by the shared cluster state.
type Node struct {
	env     *engine.Environment
	plugins []engine.Plugin

	mu         sync.Mutex
	instanceID string
	cluster    *Cluster
	server     *http.Server
	listener   net.Listener
	engineLog  *logrus.Logger
	logFile    *os.File
	started    bool
	closed     bool
	closedCh   chan struct{}
}

// NewNode constructs a local node from its environment and plugin set.
// It matches engine.NodeFactory.
func NewNode(env *engine.Environment, plugins []engine.Plugin) (engine.Node, error) {
	if env == nil {
		return nil, errors.New("nil environment")
	}
	return &Node{
		env:      env,
		plugins:  plugins,
		closedCh: make(chan struct{}),
	}, nil
}

// Name returns the node name.
func (n *Node) Name() string {
	return n.env.NodeName
}

// InstanceID identifies the current incarnation of this node. A restart
// constructs a new node with a new id.
func (n *Node) InstanceID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.instanceID
}

// Plugins returns the plugin set the node was started with.
func (n *Node) Plugins() []engine.Plugin {
	return n.plugins
}

// Start validates the environment, binds the HTTP port and joins the
// cluster.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return fmt.Errorf("node %s is already started", n.env.NodeName)
	}

	port, err := n.validate()
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return fmt.Errorf("failed to bind http port %d: %w", port, err)
	}

	n.instanceID = uuid.NewString()
	n.cluster = joinCluster(n.clusterName(), n)
	n.openEngineLog()

	mux := http.NewServeMux()
	mux.HandleFunc("/", n.handleInfo)
	mux.HandleFunc("/_cluster/health", n.handleHealth)
	n.server = &http.Server{Handler: mux}
	n.listener = listener
	n.started = true
	n.closed = false
	n.closedCh = make(chan struct{})

	go func(srv *http.Server, l net.Listener) {
		// ErrServerClosed is the normal shutdown path; ErrClosed shows up
		// when Close shut the listener before Serve got scheduled.
		err := srv.Serve(l)
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
			n.logEngine(logrus.ErrorLevel, "http server failed: %v", err)
		}
	}(n.server, listener)

	n.logEngine(logrus.InfoLevel, "started %s on port %d (instance %s)",
		n.env.NodeName, port, n.instanceID)
	return nil
}

// validate checks the environment the way the engine's own startup
// validation would before any resource is acquired.
func (n *Node) validate() (int, error) {
	portValue := n.env.Settings.Get(types.SettingHTTPPort)
	if portValue == "" {
		return 0, fmt.Errorf("node %s: setting %s is required", n.env.NodeName, types.SettingHTTPPort)
	}
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return 0, fmt.Errorf("node %s: invalid %s %q", n.env.NodeName, types.SettingHTTPPort, portValue)
	}
	if n.env.HomeDir == "" {
		return 0, fmt.Errorf("node %s: home directory is not set", n.env.NodeName)
	}
	if _, err := os.Stat(n.env.HomeDir); err != nil {
		return 0, fmt.Errorf("node %s: home directory unavailable: %w", n.env.NodeName, err)
	}
	return port, nil
}

func (n *Node) clusterName() string {
	if name := n.env.Settings.Get(types.SettingClusterName); name != "" {
		return name
	}
	return types.DefaultClusterName
}

// Close shuts the node down. Closing twice is a safe no-op.
func (n *Node) Close() error {
	n.mu.Lock()
	if !n.started || n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	server := n.server
	listener := n.listener
	cluster := n.cluster
	n.mu.Unlock()

	cluster.leave(n)

	// Shutdown only closes listeners Serve has already registered. Close
	// ours directly so the port is free the moment Close returns, even if
	// the Serve goroutine has not run yet.
	if cerr := listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		n.logEngine(logrus.WarnLevel, "failed to close listener: %v", cerr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	err := server.Shutdown(ctx)

	n.logEngine(logrus.InfoLevel, "closed %s", n.env.NodeName)
	n.closeEngineLog()
	close(n.closedCh)

	if err != nil {
		return fmt.Errorf("failed to close node %s: %w", n.env.NodeName, err)
	}
	return nil
}

// IsClosed reports whether the node has been closed. A node that never
// started counts as closed.
func (n *Node) IsClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.started || n.closed
}

// AwaitClose blocks until Close completed or the timeout elapsed.
func (n *Node) AwaitClose(timeout time.Duration) bool {
	n.mu.Lock()
	if !n.started {
		n.mu.Unlock()
		return true
	}
	ch := n.closedCh
	n.mu.Unlock()

	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Settings returns the resolved settings the node was started with.
func (n *Node) Settings() settings.Snapshot {
	return n.env.Settings
}

// Client returns a client bound to this node's cluster.
func (n *Node) Client() engine.Client {
	return &client{node: n}
}

// Service looks up an engine-internal service by name.
func (n *Node) Service(name string) (interface{}, error) {
	if name == ClusterServiceName {
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.cluster == nil {
			return nil, errNotStarted
		}
		return n.cluster, nil
	}
	return nil, fmt.Errorf("unknown service %s", name)
}

func (n *Node) getCluster() (*Cluster, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cluster == nil {
		return nil, errNotStarted
	}
	return n.cluster, nil
}

// HTTP surface

type infoResponse struct {
	Name        string   `json:"name"`
	ClusterName string   `json:"cluster_name"`
	InstanceID  string   `json:"instance_id"`
	Plugins     []string `json:"plugins,omitempty"`
}

func (n *Node) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	names := make([]string, 0, len(n.plugins))
	for _, p := range n.plugins {
		names = append(names, p.Name())
	}
	writeJSON(w, infoResponse{
		Name:        n.env.NodeName,
		ClusterName: n.clusterName(),
		InstanceID:  n.InstanceID(),
		Plugins:     names,
	})
}

func (n *Node) handleHealth(w http.ResponseWriter, r *http.Request) {
	cluster, err := n.getCluster()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	status, timedOut := cluster.health(nil)
	writeJSON(w, engine.ClusterHealthResponse{
		ClusterName:   cluster.Name(),
		Status:        status,
		TimedOut:      timedOut,
		NumberOfNodes: len(cluster.memberNames()),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Engine-internal logging. Writes to {logs}/{cluster}.log unless the
// runner disabled the engine logger.

func (n *Node) openEngineLog() {
	if n.env.DisableLogger || n.env.LogsDir == "" {
		return
	}
	path := filepath.Join(n.env.LogsDir, n.clusterName()+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return
	}
	log := logrus.New()
	log.SetOutput(file)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
		DisableColors:   true,
	})
	n.engineLog = log
	n.logFile = file
}

func (n *Node) logEngine(level logrus.Level, format string, args ...interface{}) {
	if n.engineLog == nil {
		return
	}
	n.engineLog.Logf(level, format, args...)
}

func (n *Node) closeEngineLog() {
	if n.logFile != nil {
		n.logFile.Close()
		n.logFile = nil
		n.engineLog = nil
	}
}

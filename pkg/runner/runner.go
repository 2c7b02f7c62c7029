// Package runner orchestrates the lifecycle of an embedded search-engine
// cluster: provisioning node workspaces, assigning ports, merging
// settings, starting and stopping nodes, and exposing cluster-wide
// readiness and convenience operations.
package runner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/clusterrunner/clusterrunner/pkg/engine"
	"github.com/clusterrunner/clusterrunner/pkg/engine/local"
	"github.com/clusterrunner/clusterrunner/pkg/logger"
	"github.com/clusterrunner/clusterrunner/pkg/ports"
	"github.com/clusterrunner/clusterrunner/pkg/settings"
	"github.com/clusterrunner/clusterrunner/pkg/types"
	"github.com/clusterrunner/clusterrunner/pkg/workspace"
)

// closeTimeout bounds the per-node wait during shutdown.
const closeTimeout = 10 * time.Second

// OnBuild configures settings for a specific node before the runner's
// own layers are applied. Anything the callback sets wins.
type OnBuild func(ordinal int, s *settings.Settings)

// NodeRecord tracks one provisioned node. The record itself is never
// removed; its node handle is replaced in place on restart.
type NodeRecord struct {
	Ordinal  int
	Name     string
	Paths    workspace.Paths
	Settings settings.Snapshot
	Env      *engine.Environment
	Plugins  []engine.Plugin

	node engine.Node
}

// Node returns the current node handle.
func (r *NodeRecord) Node() engine.Node {
	return r.node
}

// Runner manages multiple embedded engine nodes as one cluster. Callers
// construct a Runner and thread it through their own code; there is no
// process-wide instance.
type Runner struct {
	mu sync.Mutex

	config      *types.ClusterConfig
	records     []*NodeRecord
	onBuild     OnBuild
	registry    *engine.Registry
	factory     engine.NodeFactory
	modules     []engine.PluginFactory
	plugins     []engine.PluginFactory
	maxHTTPPort int

	log         logger.Logger
	out         io.Writer
	provisioner *workspace.Provisioner
	allocator   *ports.Allocator
	cleaner     *workspace.Cleaner
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger replaces the default logger.
func WithLogger(log logger.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithRegistry replaces the default plugin registry.
func WithRegistry(reg *engine.Registry) Option {
	return func(r *Runner) { r.registry = reg }
}

// WithNodeFactory replaces the node constructor. The default builds
// local engine nodes.
func WithNodeFactory(factory engine.NodeFactory) Option {
	return func(r *Runner) { r.factory = factory }
}

// WithOutput redirects runner output (used by tests).
func WithOutput(out io.Writer) Option {
	return func(r *Runner) { r.out = out }
}

// New creates a Runner with a registry pre-populated with the engine's
// bundled modules.
func New(opts ...Option) *Runner {
	reg := engine.NewRegistry()
	local.RegisterBuiltins(reg)

	r := &Runner{
		registry:    reg,
		factory:     local.NewNode,
		maxHTTPPort: types.DefaultMaxHTTPPort,
		log:         logger.CreateLogger("", "info"),
		out:         os.Stdout,
		cleaner:     workspace.NewCleaner(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.provisioner = workspace.NewProvisioner(r.log)
	r.allocator = ports.NewAllocator(r.log)
	return r
}

// OnBuild registers the per-node settings callback.
func (r *Runner) OnBuild(fn OnBuild) *Runner {
	r.onBuild = fn
	return r
}

// SetMaxHTTPPort sets the upper bound for port scanning. A negative
// value disables scanning entirely.
func (r *Runner) SetMaxHTTPPort(maxHTTPPort int) {
	r.maxHTTPPort = maxHTTPPort
}

// ClusterName returns the cluster name once built.
func (r *Runner) ClusterName() string {
	if r.config == nil {
		return ""
	}
	return r.config.ClusterName
}

// BasePath returns the resolved base path once built.
func (r *Runner) BasePath() string {
	if r.config == nil {
		return ""
	}
	return r.config.BasePath
}

// Config returns the effective cluster configuration once built.
func (r *Runner) Config() *types.ClusterConfig {
	return r.config
}

// BuildConfigs creates and starts the cluster from a Configs builder.
func (r *Runner) BuildConfigs(configs *Configs) error {
	return r.Build(configs.Args())
}

// Build creates and starts the cluster from CLI-style arguments. Nodes
// are provisioned and started strictly in ordinal order; the first
// failure aborts the build without rolling back siblings already
// started.
func (r *Runner) Build(args []string) error {
	cfg, err := parseConfig(args)
	if err != nil {
		return err
	}
	cfg.MaxHTTPPort = r.maxHTTPPort
	r.config = cfg

	if cfg.BasePath == "" {
		tmp, err := os.MkdirTemp("", "clusterrunner-")
		if err != nil {
			return fmt.Errorf("could not create base path: %w", err)
		}
		cfg.BasePath = tmp
	}
	if err := workspace.CreateDirectory(cfg.BasePath); err != nil {
		return fmt.Errorf("failed to create %s: %w", cfg.BasePath, err)
	}

	if err := r.resolvePlugins(cfg); err != nil {
		return err
	}

	r.print("Cluster Name: " + cfg.ClusterName)
	r.print("Base Path:    " + cfg.BasePath)
	r.print("Num Of Node:  " + strconv.Itoa(cfg.NumOfNode))

	for i := 1; i <= cfg.NumOfNode; i++ {
		if err := r.execute(i); err != nil {
			return &BuildError{Ordinal: i, Err: err}
		}
	}
	return nil
}

// resolvePlugins maps the configured module and plugin identifiers to
// factories. A missing module is skipped with a debug entry; a missing
// plugin was asked for explicitly and is fatal.
func (r *Runner) resolvePlugins(cfg *types.ClusterConfig) error {
	moduleTypes := cfg.ModuleTypes
	if len(moduleTypes) == 0 {
		moduleTypes = types.DefaultModuleTypes
	}
	r.modules = r.modules[:0]
	for _, name := range moduleTypes {
		factory, ok := r.registry.Lookup(name)
		if !ok {
			r.log.Debug("Module is not found", logger.WithField("module", name))
			continue
		}
		r.modules = append(r.modules, factory)
	}

	r.plugins = r.plugins[:0]
	for _, name := range cfg.PluginTypes {
		factory, ok := r.registry.Lookup(name)
		if !ok {
			return fmt.Errorf("plugin %s is not found", name)
		}
		r.plugins = append(r.plugins, factory)
	}
	return nil
}

// execute provisions and starts the node with the given ordinal.
func (r *Runner) execute(ordinal int) error {
	cfg := r.config

	paths, err := r.provisioner.Provision(cfg.BasePath, ordinal, workspace.Options{
		ConfPath:            cfg.ConfPath,
		DataPath:            cfg.DataPath,
		LogsPath:            cfg.LogsPath,
		DisableEngineLogger: cfg.DisableEngineLogger,
	})
	if err != nil {
		return err
	}

	s := settings.New()
	if r.onBuild != nil {
		r.onBuild(ordinal, s)
	}

	s.PutIfAbsent(types.SettingPathHome, absolute(paths.Home))
	s.PutIfAbsent(types.SettingPathData, absolute(paths.Data))
	s.PutIfAbsent(types.SettingPathLogs, absolute(paths.Logs))

	includeModules := true
	if src := s.Get(types.SettingPathModules); src != "" {
		if err := workspace.MirrorTree(src, filepath.Join(paths.Home, workspace.ModulesDir)); err != nil {
			return fmt.Errorf("failed to mirror modules from %s: %w", src, err)
		}
		s.Remove(types.SettingPathModules)
		includeModules = false
	}
	if src := s.Get(types.SettingPathPlugins); src != "" {
		if err := workspace.MirrorTree(src, filepath.Join(paths.Home, workspace.PluginsDir)); err != nil {
			return fmt.Errorf("failed to mirror plugins from %s: %w", src, err)
		}
		s.Remove(types.SettingPathPlugins)
	}

	nodeName := fmt.Sprintf("Node %d", ordinal)

	if !s.Has(types.SettingHTTPPort) {
		httpPort, err := r.allocator.Allocate(cfg.BaseHTTPPort, ordinal, r.maxHTTPPort)
		if err != nil {
			return err
		}
		s.Put(types.SettingHTTPPort, strconv.Itoa(httpPort))
	}

	// Cluster-wide defaults fill in as one layer; keys an earlier layer
	// set keep their values.
	if err := s.Merge(map[string]interface{}{
		types.SettingClusterName:    cfg.ClusterName,
		types.SettingNodeName:       nodeName,
		types.SettingIndexStoreType: cfg.IndexStoreType,
		types.SettingNodeRoles:      []string{types.RoleClusterManagerEligible, types.RoleData},
	}); err != nil {
		return err
	}

	r.print("Node Name:      " + s.Get(types.SettingNodeName))
	r.print("HTTP Port:      " + s.Get(types.SettingHTTPPort))
	r.print("Data Directory: " + paths.Data)
	r.print("Log Directory:  " + paths.Logs)

	for _, dir := range []string{
		filepath.Join(paths.Home, workspace.ModulesDir),
		filepath.Join(paths.Home, workspace.PluginsDir),
	} {
		if err := workspace.CreateDirectory(dir); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	snapshot := s.Snapshot()
	env := &engine.Environment{
		NodeName:      snapshot.Get(types.SettingNodeName),
		HomeDir:       paths.Home,
		ConfigDir:     paths.Config,
		DataDir:       paths.Data,
		LogsDir:       paths.Logs,
		Settings:      snapshot,
		DisableLogger: cfg.DisableEngineLogger,
	}

	var plugins []engine.Plugin
	if includeModules {
		for _, factory := range r.modules {
			plugins = append(plugins, factory())
		}
	}
	for _, factory := range r.plugins {
		plugins = append(plugins, factory())
	}

	node, err := r.factory(env, plugins)
	if err != nil {
		return err
	}
	if err := node.Start(); err != nil {
		return err
	}

	r.mu.Lock()
	r.records = append(r.records, &NodeRecord{
		Ordinal:  ordinal,
		Name:     env.NodeName,
		Paths:    paths,
		Settings: snapshot,
		Env:      env,
		Plugins:  plugins,
		node:     node,
	})
	r.mu.Unlock()
	return nil
}

// IsClosed reports whether every tracked node is closed. It is true
// before any build.
func (r *Runner) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if !rec.node.IsClosed() {
			return false
		}
	}
	return true
}

// Close shuts down every node, waiting up to ten seconds per node. Close
// errors are collected across all nodes and returned once; a node that
// does not close in time is reported without aborting the rest.
func (r *Runner) Close() error {
	r.mu.Lock()
	records := make([]*NodeRecord, len(r.records))
	copy(records, r.records)
	r.mu.Unlock()

	var errs *multierror.Error
	for _, rec := range records {
		if err := rec.node.Close(); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if !rec.node.AwaitClose(closeTimeout) {
			r.print("Failed to close node: " + rec.Name)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return err
	}
	r.print("Closed all nodes.")
	return nil
}

// Clean recursively deletes the cluster's base directory.
func (r *Runner) Clean() error {
	if r.config == nil || r.config.BasePath == "" {
		return nil
	}
	return r.cleaner.Clean(r.config.BasePath)
}

// GetNode returns the node at index i, or nil when i is out of range.
// Absence is not an error here.
func (r *Runner) GetNode(i int) engine.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.records) {
		return nil
	}
	return r.records[i].node
}

// GetNodeByName returns the node with the given name, or nil when no
// node matches.
func (r *Runner) GetNodeByName(name string) engine.Node {
	if name == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.Name == name {
			return rec.node
		}
	}
	return nil
}

// GetNodeIndex returns the index of the given node, or -1 when the node
// is not tracked.
func (r *Runner) GetNodeIndex(node engine.Node) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rec := range r.records {
		if rec.node == node {
			return i
		}
	}
	return -1
}

// NodeSize returns the number of tracked nodes.
func (r *Runner) NodeSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// StartNode restarts the closed node at index i from its original
// environment and plugin set. It reports false when i is out of range,
// when the node is not closed, or when the fresh node fails validation;
// a start failure is printed, not raised.
func (r *Runner) StartNode(i int) bool {
	r.mu.Lock()
	if i < 0 || i >= len(r.records) {
		r.mu.Unlock()
		return false
	}
	rec := r.records[i]
	r.mu.Unlock()

	if !rec.node.IsClosed() {
		return false
	}

	node, err := r.factory(rec.Env, rec.Plugins)
	if err != nil {
		r.print(err.Error())
		return false
	}
	if err := node.Start(); err != nil {
		r.print(err.Error())
		return false
	}

	r.mu.Lock()
	rec.node = node
	r.mu.Unlock()
	return true
}

// Node returns the first node that is not closed. Callers depend on a
// live node to issue requests against, so having none is an error.
func (r *Runner) Node() (engine.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if !rec.node.IsClosed() {
			return rec.node, nil
		}
	}
	return nil, ErrAllNodesClosed
}

// Client returns a client from the first available node.
func (r *Runner) Client() (engine.Client, error) {
	node, err := r.Node()
	if err != nil {
		return nil, err
	}
	return node.Client(), nil
}

// ClusterManagerNode returns the node currently holding cluster
// coordination responsibility. The topology snapshot is taken under the
// runner lock so the name maps back to a consistent local record.
func (r *Runner) ClusterManagerNode() (engine.Node, error) {
	node, err := r.Node()
	if err != nil {
		return nil, err
	}
	state, err := node.Client().State()
	if err != nil {
		return nil, err
	}
	if state.ClusterManagerName == "" {
		return nil, ErrNoClusterManager
	}
	manager := r.GetNodeByName(state.ClusterManagerName)
	if manager == nil {
		return nil, ErrNoClusterManager
	}
	return manager, nil
}

// NonClusterManagerNode returns a live node that is not the cluster
// manager, or nil when every live node is the manager.
func (r *Runner) NonClusterManagerNode() (engine.Node, error) {
	node, err := r.Node()
	if err != nil {
		return nil, err
	}
	state, err := node.Client().State()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if !rec.node.IsClosed() && rec.Name != state.ClusterManagerName {
			return rec.node, nil
		}
	}
	return nil, nil
}

// Service looks up an engine-internal service by name on the cluster
// manager node.
func (r *Runner) Service(name string) (interface{}, error) {
	node, err := r.ClusterManagerNode()
	if err != nil {
		return nil, err
	}
	return node.Service(name)
}

// print routes runner output through the logger or stdout depending on
// the useLogger toggle.
func (r *Runner) print(line string) {
	if r.config != nil && r.config.UseLogger {
		r.log.Info(line)
		return
	}
	fmt.Fprintln(r.out, line)
}

// onFailure applies the print-on-failure policy: lenient prints and
// swallows, strict raises an OperationError carrying the response.
func (r *Runner) onFailure(message string, response interface{}) error {
	if r.config != nil && r.config.PrintOnFailure {
		r.print(message)
		return nil
	}
	return &OperationError{Message: message, Response: response}
}

func absolute(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

package runner_test

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/clusterrunner/clusterrunner/pkg/engine"
	"github.com/clusterrunner/clusterrunner/pkg/logger"
	"github.com/clusterrunner/clusterrunner/pkg/ports"
	"github.com/clusterrunner/clusterrunner/pkg/runner"
	"github.com/clusterrunner/clusterrunner/pkg/settings"
	"github.com/clusterrunner/clusterrunner/pkg/types"
)

// Each test gets its own port range and cluster name so clusters never
// bleed into each other.
var nextBasePort = 17200

func reservePortRange(t *testing.T) int {
	t.Helper()
	base := nextBasePort
	nextBasePort += 100
	return base
}

func newRunner(t *testing.T, opts ...runner.Option) *runner.Runner {
	t.Helper()
	opts = append(opts,
		runner.WithOutput(io.Discard),
		runner.WithLogger(logger.CreateLoggerWithOutput("error", io.Discard)),
	)
	return runner.New(opts...)
}

func buildCluster(t *testing.T, r *runner.Runner, numOfNode, basePort int) {
	t.Helper()
	r.SetMaxHTTPPort(basePort + 99)
	configs := runner.NewConfigs().
		BasePath(t.TempDir()).
		NumOfNode(numOfNode).
		BaseHTTPPort(basePort).
		ClusterName(clusterName(t))
	if err := r.BuildConfigs(configs); err != nil {
		t.Fatalf("failed to build cluster: %v", err)
	}
	t.Cleanup(func() {
		r.Close()
		r.Clean()
	})
}

func clusterName(t *testing.T) string {
	return "test-" + t.Name()
}

func TestRunner_BuildThreeNodes(t *testing.T) {
	basePort := reservePortRange(t)
	r := newRunner(t)
	buildCluster(t, r, 3, basePort)

	if r.NodeSize() != 3 {
		t.Fatalf("expected 3 nodes, got %d", r.NodeSize())
	}

	seenPorts := map[string]bool{}
	for i := 0; i < 3; i++ {
		node := r.GetNode(i)
		if node == nil {
			t.Fatalf("node %d missing", i)
		}

		wantName := fmt.Sprintf("Node %d", i+1)
		if node.Name() != wantName {
			t.Errorf("expected name %q, got %q", wantName, node.Name())
		}

		port := node.Settings().Get(types.SettingHTTPPort)
		if port == "" {
			t.Errorf("node %d has no http port", i)
		}
		if seenPorts[port] {
			t.Errorf("port %s assigned twice", port)
		}
		seenPorts[port] = true

		home := node.Settings().Get(types.SettingPathHome)
		wantSuffix := fmt.Sprintf("node_%d", i+1)
		if filepath.Base(home) != wantSuffix {
			t.Errorf("expected home ending in %s, got %s", wantSuffix, home)
		}
		if _, err := os.Stat(home); err != nil {
			t.Errorf("node home missing: %v", err)
		}
	}
}

func TestRunner_DefaultSettingsLayering(t *testing.T) {
	basePort := reservePortRange(t)
	r := newRunner(t)
	r.OnBuild(func(ordinal int, s *settings.Settings) {
		s.Put("custom.setting", "from-callback")
		if ordinal == 1 {
			s.Put(types.SettingNodeName, "special")
		}
	})
	buildCluster(t, r, 2, basePort)

	first := r.GetNode(0)
	if got := first.Settings().Get(types.SettingNodeName); got != "special" {
		t.Errorf("callback value must win, got %q", got)
	}
	if got := first.Settings().Get("custom.setting"); got != "from-callback" {
		t.Errorf("custom setting lost, got %q", got)
	}

	second := r.GetNode(1)
	if got := second.Settings().Get(types.SettingNodeName); got != "Node 2" {
		t.Errorf("expected default name for node 2, got %q", got)
	}
	if got := second.Settings().Get(types.SettingClusterName); got != clusterName(t) {
		t.Errorf("cluster name default missing, got %q", got)
	}
	if got := second.Settings().Get(types.SettingIndexStoreType); got != "fs" {
		t.Errorf("index store type default missing, got %q", got)
	}

	roles := second.Settings().GetList(types.SettingNodeRoles)
	if len(roles) != 2 || roles[0] != types.RoleClusterManagerEligible || roles[1] != types.RoleData {
		t.Errorf("unexpected default roles %v", roles)
	}
}

func TestRunner_CallerProvidedPortIsKept(t *testing.T) {
	basePort := reservePortRange(t)
	fixed := basePort + 50
	r := newRunner(t)
	r.OnBuild(func(ordinal int, s *settings.Settings) {
		s.Put(types.SettingHTTPPort, strconv.Itoa(fixed))
	})
	buildCluster(t, r, 1, basePort)

	got := r.GetNode(0).Settings().Get(types.SettingHTTPPort)
	if got != strconv.Itoa(fixed) {
		t.Errorf("expected caller port %d, got %s", fixed, got)
	}
}

func TestRunner_PortScanSkipsOccupied(t *testing.T) {
	basePort := reservePortRange(t)

	// Occupy the first candidate so the scan must move past it.
	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", basePort+1))
	if err != nil {
		t.Fatalf("failed to occupy port: %v", err)
	}
	defer ln.Close()

	r := newRunner(t)
	buildCluster(t, r, 1, basePort)

	got := r.GetNode(0).Settings().Get(types.SettingHTTPPort)
	if got == strconv.Itoa(basePort+1) {
		t.Errorf("occupied port %d was assigned", basePort+1)
	}
}

func TestRunner_PortExhaustion(t *testing.T) {
	basePort := reservePortRange(t)

	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", basePort+1))
	if err != nil {
		t.Fatalf("failed to occupy port: %v", err)
	}
	defer ln.Close()

	r := newRunner(t)
	r.SetMaxHTTPPort(basePort + 1)

	configs := runner.NewConfigs().
		BasePath(t.TempDir()).
		NumOfNode(1).
		BaseHTTPPort(basePort).
		ClusterName(clusterName(t))
	err = r.BuildConfigs(configs)
	if err == nil {
		r.Close()
		t.Fatal("expected build to fail on port exhaustion")
	}

	var buildErr *runner.BuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("expected BuildError, got %T: %v", err, err)
	}
	if buildErr.Ordinal != 1 {
		t.Errorf("expected failing ordinal 1, got %d", buildErr.Ordinal)
	}
	var exhausted *ports.PortExhaustedError
	if !errors.As(err, &exhausted) {
		t.Errorf("expected PortExhaustedError in chain, got %v", err)
	}
}

func TestRunner_IsClosedLifecycle(t *testing.T) {
	basePort := reservePortRange(t)
	r := newRunner(t)

	if !r.IsClosed() {
		t.Error("a runner with no nodes must report closed")
	}

	buildCluster(t, r, 2, basePort)
	if r.IsClosed() {
		t.Error("a running cluster must not report closed")
	}

	if err := r.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !r.IsClosed() {
		t.Error("cluster must report closed after Close")
	}

	// Closing again is harmless.
	if err := r.Close(); err != nil {
		t.Errorf("second close must not fail: %v", err)
	}
}

func TestRunner_GetNodeOutOfRange(t *testing.T) {
	basePort := reservePortRange(t)
	r := newRunner(t)
	buildCluster(t, r, 1, basePort)

	if r.GetNode(-1) != nil {
		t.Error("negative index must yield nil")
	}
	if r.GetNode(1) != nil {
		t.Error("index past the end must yield nil")
	}
	if r.GetNodeByName("no such node") != nil {
		t.Error("unknown name must yield nil")
	}
	if r.GetNodeByName("") != nil {
		t.Error("empty name must yield nil")
	}
}

func TestRunner_GetNodeIndex(t *testing.T) {
	basePort := reservePortRange(t)
	r := newRunner(t)
	buildCluster(t, r, 2, basePort)

	node := r.GetNode(1)
	if got := r.GetNodeIndex(node); got != 1 {
		t.Errorf("expected index 1, got %d", got)
	}
	if got := r.GetNodeIndex(nil); got != -1 {
		t.Errorf("expected -1 for untracked node, got %d", got)
	}
}

func TestRunner_NodeWhenAllClosed(t *testing.T) {
	basePort := reservePortRange(t)
	r := newRunner(t)

	if _, err := r.Node(); !errors.Is(err, runner.ErrAllNodesClosed) {
		t.Errorf("zero-node runner must report all closed, got %v", err)
	}

	buildCluster(t, r, 1, basePort)
	if _, err := r.Node(); err != nil {
		t.Errorf("expected a live node, got %v", err)
	}

	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Node(); !errors.Is(err, runner.ErrAllNodesClosed) {
		t.Errorf("expected ErrAllNodesClosed, got %v", err)
	}
}

func TestRunner_NodeSkipsClosed(t *testing.T) {
	basePort := reservePortRange(t)
	r := newRunner(t)
	buildCluster(t, r, 2, basePort)

	first := r.GetNode(0)
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}
	first.AwaitClose(0)

	node, err := r.Node()
	if err != nil {
		t.Fatalf("expected a live node, got %v", err)
	}
	if node.Name() != "Node 2" {
		t.Errorf("expected Node 2, got %s", node.Name())
	}
}

func TestRunner_StartNode(t *testing.T) {
	basePort := reservePortRange(t)
	r := newRunner(t)
	buildCluster(t, r, 2, basePort)

	if r.StartNode(5) {
		t.Error("out-of-range restart must report false")
	}
	if r.StartNode(0) {
		t.Error("restarting a live node must report false")
	}

	node := r.GetNode(0)
	originalName := node.Name()
	if err := node.Close(); err != nil {
		t.Fatal(err)
	}

	if !r.StartNode(0) {
		t.Fatal("restart of a closed node failed")
	}

	restarted := r.GetNode(0)
	if restarted.IsClosed() {
		t.Error("restarted node reports closed")
	}
	if restarted.Name() != originalName {
		t.Errorf("restart changed node name: %s -> %s", originalName, restarted.Name())
	}
}

func TestRunner_ClusterManagerNode(t *testing.T) {
	basePort := reservePortRange(t)
	r := newRunner(t)
	buildCluster(t, r, 3, basePort)

	manager, err := r.ClusterManagerNode()
	if err != nil {
		t.Fatalf("no cluster manager: %v", err)
	}

	other, err := r.NonClusterManagerNode()
	if err != nil {
		t.Fatalf("failed to find non-manager: %v", err)
	}
	if other == nil {
		t.Fatal("expected a non-manager node in a 3-node cluster")
	}
	if other.Name() == manager.Name() {
		t.Error("non-manager equals the manager")
	}
}

func TestRunner_EnsureHealth(t *testing.T) {
	basePort := reservePortRange(t)
	r := newRunner(t)
	buildCluster(t, r, 1, basePort)

	status, err := r.EnsureGreen()
	if err != nil {
		t.Fatalf("expected green on empty cluster, got %v", err)
	}
	if status != engine.HealthGreen {
		t.Errorf("expected green, got %s", status)
	}

	if _, err := r.CreateIndex("health-idx"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.EnsureYellow("health-idx"); err != nil {
		t.Errorf("expected at least yellow for an existing index: %v", err)
	}
	if _, err := r.WaitForRelocation(); err != nil {
		t.Errorf("relocation wait failed: %v", err)
	}
}

func TestRunner_BuildDefaultArgs(t *testing.T) {
	basePort := reservePortRange(t)
	r := newRunner(t)
	r.SetMaxHTTPPort(basePort + 99)
	err := r.Build([]string{
		"--basePath", t.TempDir(),
		"--numOfNode", "1",
		"--baseHttpPort", strconv.Itoa(basePort),
		"--clusterName", clusterName(t),
	})
	if err != nil {
		t.Fatalf("build from args failed: %v", err)
	}
	defer func() {
		r.Close()
		r.Clean()
	}()

	if r.ClusterName() != clusterName(t) {
		t.Errorf("unexpected cluster name %q", r.ClusterName())
	}
	if r.Config().IndexStoreType != types.DefaultIndexStoreType {
		t.Errorf("expected default store type, got %q", r.Config().IndexStoreType)
	}
}

func TestRunner_TempBasePath(t *testing.T) {
	basePort := reservePortRange(t)
	r := newRunner(t)
	r.SetMaxHTTPPort(basePort + 99)
	err := r.Build([]string{
		"--numOfNode", "1",
		"--baseHttpPort", strconv.Itoa(basePort),
		"--clusterName", clusterName(t),
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer func() {
		r.Close()
		r.Clean()
	}()

	if r.BasePath() == "" {
		t.Fatal("expected a generated base path")
	}
	if _, err := os.Stat(r.BasePath()); err != nil {
		t.Errorf("generated base path missing: %v", err)
	}
}

func TestRunner_CleanRemovesWorkspace(t *testing.T) {
	basePort := reservePortRange(t)
	basePath := t.TempDir()

	r := newRunner(t)
	r.SetMaxHTTPPort(basePort + 99)
	configs := runner.NewConfigs().
		BasePath(basePath).
		NumOfNode(1).
		BaseHTTPPort(basePort).
		ClusterName(clusterName(t))
	if err := r.BuildConfigs(configs); err != nil {
		t.Fatal(err)
	}

	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if err := r.Clean(); err != nil {
		t.Fatalf("clean failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(basePath, "node_1")); !os.IsNotExist(err) {
		t.Error("node workspace still present after clean")
	}
}

func TestRunner_UnknownPluginFails(t *testing.T) {
	r := newRunner(t)
	err := r.Build([]string{
		"--basePath", t.TempDir(),
		"--numOfNode", "1",
		"--clusterName", clusterName(t),
		"--pluginTypes", "no-such-plugin",
	})
	if err == nil {
		r.Close()
		t.Fatal("expected unknown plugin to fail the build")
	}
}

func TestRunner_UnknownModuleIsSkipped(t *testing.T) {
	basePort := reservePortRange(t)
	r := newRunner(t)
	r.SetMaxHTTPPort(basePort + 99)
	err := r.Build([]string{
		"--basePath", t.TempDir(),
		"--numOfNode", "1",
		"--baseHttpPort", strconv.Itoa(basePort),
		"--clusterName", clusterName(t),
		"--moduleTypes", "no-such-module,percolator",
	})
	if err != nil {
		t.Fatalf("unknown module must be skipped, got %v", err)
	}
	r.Close()
	r.Clean()
}

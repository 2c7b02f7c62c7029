package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/clusterrunner/clusterrunner/pkg/httpclient"
	"github.com/clusterrunner/clusterrunner/pkg/logger"
	"github.com/clusterrunner/clusterrunner/pkg/notifier"
	"github.com/clusterrunner/clusterrunner/pkg/process"
	"github.com/clusterrunner/clusterrunner/pkg/runner"
	"github.com/clusterrunner/clusterrunner/pkg/state"
	"github.com/clusterrunner/clusterrunner/pkg/types"
	"github.com/clusterrunner/clusterrunner/pkg/validation"
	"github.com/clusterrunner/clusterrunner/pkg/workspace"
)

type runOptions struct {
	basePath            string
	confPath            string
	dataPath            string
	logsPath            string
	numOfNode           int
	baseHTTPPort        int
	maxHTTPPort         int
	clusterName         string
	indexStoreType      string
	useLogger           bool
	disableEngineLogger bool
	printOnFailure      bool
	moduleTypes         []string
	pluginTypes         []string
	notify              bool
	keepData            bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a cluster and keep it running",
		Long: `Provision workspaces, start every node, wait for green health, then block
until interrupted. On SIGINT/SIGTERM the cluster shuts down gracefully and,
unless --keepData is set, the workspace is removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCluster(opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.basePath, "basePath", "", "base path for the cluster (default: a temp directory)")
	flags.StringVar(&opts.confPath, "confPath", "", "config path override for all nodes")
	flags.StringVar(&opts.dataPath, "dataPath", "", "data path override for all nodes")
	flags.StringVar(&opts.logsPath, "logsPath", "", "log path override for all nodes")
	flags.IntVar(&opts.numOfNode, "numOfNode", types.DefaultNumOfNode, "number of cluster nodes")
	flags.IntVar(&opts.baseHTTPPort, "baseHttpPort", types.DefaultBaseHTTPPort, "base http port")
	flags.IntVar(&opts.maxHTTPPort, "maxHttpPort", types.DefaultMaxHTTPPort, "highest http port to try (negative skips the availability scan)")
	flags.StringVar(&opts.clusterName, "clusterName", types.DefaultClusterName, "cluster name")
	flags.StringVar(&opts.indexStoreType, "indexStoreType", types.DefaultIndexStoreType, "index store type")
	flags.BoolVar(&opts.useLogger, "useLogger", false, "route runner output through the logger")
	flags.BoolVar(&opts.disableEngineLogger, "disableEngineLogger", false, "disable the engine's internal logger")
	flags.BoolVar(&opts.printOnFailure, "printOnFailure", false, "print operation failures instead of raising them")
	flags.StringSliceVar(&opts.moduleTypes, "moduleTypes", nil, "engine modules to load, comma separated")
	flags.StringSliceVar(&opts.pluginTypes, "pluginTypes", nil, "engine plugins to load, comma separated")
	flags.BoolVar(&opts.notify, "notify", false, "send desktop notifications for cluster events")
	flags.BoolVar(&opts.keepData, "keepData", false, "keep the workspace after shutdown")

	return cmd
}

func runCluster(opts *runOptions) error {
	log := logger.CreateLogger("", verbosity)

	cfg := &types.ClusterConfig{
		ClusterName:    opts.clusterName,
		NumOfNode:      opts.numOfNode,
		BasePath:       opts.basePath,
		ConfPath:       opts.confPath,
		DataPath:       opts.dataPath,
		LogsPath:       opts.logsPath,
		BaseHTTPPort:   opts.baseHTTPPort,
		MaxHTTPPort:    opts.maxHTTPPort,
		IndexStoreType: opts.indexStoreType,
		ModuleTypes:    opts.moduleTypes,
		PluginTypes:    opts.pluginTypes,
	}
	result := validation.NewConfigValidator().Validate(cfg)
	for _, w := range result.Warnings() {
		printWarning(w.Error())
	}
	if !result.Valid {
		for _, e := range result.Errors {
			if e.Level == validation.ValidationLevelError {
				printError(e.Error())
			}
		}
		return fmt.Errorf("invalid cluster configuration")
	}

	notify := notifier.New(notifier.Config{Enabled: opts.notify}, log)

	configs := runner.NewConfigs().
		BasePath(opts.basePath).
		ConfPath(opts.confPath).
		DataPath(opts.dataPath).
		LogsPath(opts.logsPath).
		NumOfNode(opts.numOfNode).
		BaseHTTPPort(opts.baseHTTPPort).
		ClusterName(opts.clusterName).
		IndexStoreType(opts.indexStoreType)
	if opts.useLogger {
		configs.UseLogger()
	}
	if opts.disableEngineLogger {
		configs.DisableEngineLogger()
	}
	if opts.printOnFailure {
		configs.PrintOnFailure()
	}
	if len(opts.moduleTypes) > 0 {
		configs.ModuleTypes(strings.Join(opts.moduleTypes, ","))
	}
	if len(opts.pluginTypes) > 0 {
		configs.PluginTypes(strings.Join(opts.pluginTypes, ","))
	}

	r := runner.New(runner.WithLogger(log))
	r.SetMaxHTTPPort(opts.maxHTTPPort)

	notify.NotifyClusterStarting(opts.clusterName, opts.numOfNode)
	started := time.Now()

	if err := r.BuildConfigs(configs); err != nil {
		notify.NotifyNodeFailure(opts.clusterName, err)
		printError(fmt.Sprintf("Failed to start cluster: %v", err))
		return err
	}

	if _, err := r.EnsureYellow(); err != nil {
		printWarning(fmt.Sprintf("Cluster health did not settle: %v", err))
	}

	if err := probeNodes(r); err != nil {
		printWarning(fmt.Sprintf("Node readiness probes reported: %v", err))
	}

	sm := state.NewManager(r.BasePath(), log)
	saveSnapshots(sm, r, log)

	pm := process.NewManager(log)
	pm.SetHeartbeat(sm.Heartbeat)
	pm.RegisterShutdownHandler(func() {
		if err := r.Close(); err != nil {
			log.Error("Cluster shutdown reported errors", logger.WithField("error", err))
		}
		for i := 0; i < r.NodeSize(); i++ {
			if node := r.GetNode(i); node != nil {
				sm.UpdateStatus(node.Name(), types.NodeStateClosed)
			}
		}
		notify.NotifyClusterStopped(r.ClusterName())
		if !opts.keepData {
			if err := r.Clean(); err != nil {
				log.Error("Workspace cleanup reported errors", logger.WithField("error", err))
			}
		}
		workspace.RunExitCleanup()
	})
	pm.Start(context.Background())

	printSuccess(fmt.Sprintf("Cluster %s is up (%d nodes) at %s",
		r.ClusterName(), r.NodeSize(), r.BasePath()))
	notify.NotifyClusterReady(r.ClusterName(), time.Since(started))

	<-pm.Done()
	pm.Stop()
	return nil
}

// probeNodes verifies each node answers HTTP before the cluster is
// declared ready. Probes run in parallel, one per node.
func probeNodes(r *runner.Runner) error {
	client := httpclient.New()
	var g errgroup.Group
	for i := 0; i < r.NodeSize(); i++ {
		node := r.GetNode(i)
		if node == nil || node.IsClosed() {
			continue
		}
		g.Go(func() error {
			return client.WaitForReady(node, 10*time.Second)
		})
	}
	return g.Wait()
}

func saveSnapshots(sm *state.Manager, r *runner.Runner, log logger.Logger) {
	for i := 0; i < r.NodeSize(); i++ {
		node := r.GetNode(i)
		if node == nil {
			continue
		}
		settings := node.Settings()
		port, _ := strconv.Atoi(settings.Get(types.SettingHTTPPort))
		snap := &state.NodeState{
			NodeName: node.Name(),
			Ordinal:  i + 1,
			Cluster:  r.ClusterName(),
			HTTPPort: port,
			Status:   types.NodeStateStarted,
			HomeDir:  settings.Get(types.SettingPathHome),
			LogsDir:  settings.Get(types.SettingPathLogs),
		}
		if err := sm.SaveNode(snap); err != nil {
			log.Debug("Failed to persist node snapshot", logger.WithField("error", err))
		}
	}
}


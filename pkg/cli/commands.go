package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/clusterrunner/clusterrunner/pkg/httpclient"
	"github.com/clusterrunner/clusterrunner/pkg/logger"
	"github.com/clusterrunner/clusterrunner/pkg/process"
	"github.com/clusterrunner/clusterrunner/pkg/state"
	"github.com/clusterrunner/clusterrunner/pkg/types"
	"github.com/clusterrunner/clusterrunner/pkg/validation"
	"github.com/clusterrunner/clusterrunner/pkg/workspace"
)

func newCleanCmd() *cobra.Command {
	var basePath string

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove a cluster workspace",
		Long:  `Delete every node directory and state file under the cluster base path.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(basePath)
		},
	}

	cmd.Flags().StringVar(&basePath, "basePath", "", "base path of the cluster to remove")
	cmd.MarkFlagRequired("basePath")

	return cmd
}

func newStatusCmd() *cobra.Command {
	var basePath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running cluster",
		Long:  `Display the persisted state of every node under the cluster base path.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(basePath)
		},
	}

	cmd.Flags().StringVar(&basePath, "basePath", "", "base path of the cluster to inspect")
	cmd.MarkFlagRequired("basePath")

	return cmd
}

func newValidateCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a cluster configuration",
		Long:  `Check that the given flags describe a cluster that could be started.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.basePath, "basePath", "", "base path for the cluster")
	flags.StringVar(&opts.confPath, "confPath", "", "config path override for all nodes")
	flags.StringVar(&opts.dataPath, "dataPath", "", "data path override for all nodes")
	flags.StringVar(&opts.logsPath, "logsPath", "", "log path override for all nodes")
	flags.IntVar(&opts.numOfNode, "numOfNode", types.DefaultNumOfNode, "number of cluster nodes")
	flags.IntVar(&opts.baseHTTPPort, "baseHttpPort", types.DefaultBaseHTTPPort, "base http port")
	flags.StringVar(&opts.clusterName, "clusterName", types.DefaultClusterName, "cluster name")
	flags.StringSliceVar(&opts.moduleTypes, "moduleTypes", nil, "engine modules to load, comma separated")
	flags.StringSliceVar(&opts.pluginTypes, "pluginTypes", nil, "engine plugins to load, comma separated")

	return cmd
}

// Implementation functions

func runClean(basePath string) error {
	log := logger.CreateLogger("", verbosity)

	sm := state.NewManager(basePath, log)
	if err := sm.RemoveAll(); err != nil {
		printWarning(fmt.Sprintf("Failed to remove state files: %v", err))
	}

	if err := workspace.NewCleaner().Clean(basePath); err != nil {
		printError(fmt.Sprintf("Cleanup reported problems: %v", err))
		return err
	}

	printSuccess(fmt.Sprintf("Removed cluster workspace at %s", basePath))
	return nil
}

func runStatus(basePath string) error {
	log := logger.CreateLogger("", verbosity)

	sm := state.NewManager(basePath, log)
	states, err := sm.List()
	if err != nil {
		return fmt.Errorf("failed to read node states: %w", err)
	}
	if len(states) == 0 {
		printWarning("No node state found. Is a cluster running here?")
		return nil
	}

	client := httpclient.New()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NODE\tCLUSTER\tPORT\tSTATUS\tHEARTBEAT\tHTTP")
	fmt.Fprintln(w, "----\t-------\t----\t------\t---------\t----")

	for _, s := range states {
		status := string(s.Status)
		if !process.IsProcessAlive(s.ProcessID) {
			status = "stale"
		}

		statusColor := color.WhiteString(status)
		switch status {
		case string(types.NodeStateStarted):
			statusColor = color.GreenString(status)
		case string(types.NodeStateClosed):
			statusColor = color.YellowString(status)
		case "stale":
			statusColor = color.RedString(status)
		}

		httpState := "-"
		if status == string(types.NodeStateStarted) && s.HTTPPort > 0 {
			url := fmt.Sprintf("http://localhost:%d/", s.HTTPPort)
			if resp, err := client.GetURL(url); err == nil && resp.StatusCode == 200 {
				httpState = "ok"
			} else {
				httpState = "unreachable"
			}
		}

		heartbeat := "-"
		if !s.Heartbeat.IsZero() {
			heartbeat = s.Heartbeat.Format("15:04:05")
		}

		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			s.NodeName, s.Cluster, s.HTTPPort, statusColor, heartbeat, httpState)
	}

	w.Flush()
	return nil
}

func runValidate(opts *runOptions) error {
	cfg := &types.ClusterConfig{
		ClusterName:    opts.clusterName,
		NumOfNode:      opts.numOfNode,
		BasePath:       opts.basePath,
		ConfPath:       opts.confPath,
		DataPath:       opts.dataPath,
		LogsPath:       opts.logsPath,
		BaseHTTPPort:   opts.baseHTTPPort,
		MaxHTTPPort:    types.DefaultMaxHTTPPort,
		IndexStoreType: types.DefaultIndexStoreType,
		ModuleTypes:    opts.moduleTypes,
		PluginTypes:    opts.pluginTypes,
	}

	result := validation.NewConfigValidator().Validate(cfg)

	var errors, warnings []string
	for _, e := range result.Errors {
		switch e.Level {
		case validation.ValidationLevelError:
			errors = append(errors, e.Error())
		case validation.ValidationLevelWarning:
			warnings = append(warnings, e.Error())
		}
	}

	if len(errors) > 0 {
		printError("Configuration has errors:")
		for _, e := range errors {
			fmt.Printf("  %s\n", e)
		}
	}
	if len(warnings) > 0 {
		printWarning("Configuration warnings:")
		for _, warn := range warnings {
			fmt.Printf("  %s\n", warn)
		}
	}

	if len(errors) == 0 {
		printSuccess("Configuration is valid")
		return nil
	}
	return fmt.Errorf("configuration has %d error(s)", len(errors))
}

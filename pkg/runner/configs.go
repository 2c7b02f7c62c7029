package runner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/clusterrunner/clusterrunner/pkg/types"
)

// Configs is a fluent builder producing the CLI-style arguments Build
// consumes, so library callers and the command line share one
// configuration surface.
type Configs struct {
	args []string
}

// NewConfigs creates an empty configuration builder.
func NewConfigs() *Configs {
	return &Configs{}
}

// BasePath sets the base path for cluster data and configuration.
func (c *Configs) BasePath(basePath string) *Configs {
	c.args = append(c.args, "--basePath", basePath)
	return c
}

// ConfPath sets an explicit config directory shared by all nodes.
func (c *Configs) ConfPath(confPath string) *Configs {
	c.args = append(c.args, "--confPath", confPath)
	return c
}

// DataPath sets an explicit data directory shared by all nodes.
func (c *Configs) DataPath(dataPath string) *Configs {
	c.args = append(c.args, "--dataPath", dataPath)
	return c
}

// LogsPath sets an explicit logs directory shared by all nodes.
func (c *Configs) LogsPath(logsPath string) *Configs {
	c.args = append(c.args, "--logsPath", logsPath)
	return c
}

// NumOfNode sets the number of nodes in the cluster.
func (c *Configs) NumOfNode(numOfNode int) *Configs {
	c.args = append(c.args, "--numOfNode", strconv.Itoa(numOfNode))
	return c
}

// BaseHTTPPort sets the base HTTP port for the first node.
func (c *Configs) BaseHTTPPort(baseHTTPPort int) *Configs {
	c.args = append(c.args, "--baseHttpPort", strconv.Itoa(baseHTTPPort))
	return c
}

// ClusterName sets the cluster name.
func (c *Configs) ClusterName(clusterName string) *Configs {
	c.args = append(c.args, "--clusterName", clusterName)
	return c
}

// IndexStoreType sets the index store type.
func (c *Configs) IndexStoreType(indexStoreType string) *Configs {
	c.args = append(c.args, "--indexStoreType", indexStoreType)
	return c
}

// UseLogger routes runner output through the logger instead of stdout.
func (c *Configs) UseLogger() *Configs {
	c.args = append(c.args, "--useLogger")
	return c
}

// DisableEngineLogger disables the engine's internal logging.
func (c *Configs) DisableEngineLogger() *Configs {
	c.args = append(c.args, "--disableEngineLogger")
	return c
}

// PrintOnFailure prints operation failures instead of raising them.
func (c *Configs) PrintOnFailure() *Configs {
	c.args = append(c.args, "--printOnFailure")
	return c
}

// ModuleTypes sets the module identifiers to load, comma separated.
func (c *Configs) ModuleTypes(moduleTypes string) *Configs {
	c.args = append(c.args, "--moduleTypes", moduleTypes)
	return c
}

// PluginTypes sets the plugin identifiers to load, comma separated.
func (c *Configs) PluginTypes(pluginTypes string) *Configs {
	c.args = append(c.args, "--pluginTypes", pluginTypes)
	return c
}

// Args returns the accumulated CLI-style arguments.
func (c *Configs) Args() []string {
	out := make([]string, len(c.args))
	copy(out, c.args)
	return out
}

// parseConfig applies CLI-style arguments over the defaults.
func parseConfig(args []string) (*types.ClusterConfig, error) {
	cfg := types.NewClusterConfig()

	flags := pflag.NewFlagSet("clusterrunner", pflag.ContinueOnError)
	flags.StringVar(&cfg.BasePath, "basePath", cfg.BasePath, "Base path for the cluster.")
	flags.StringVar(&cfg.ConfPath, "confPath", cfg.ConfPath, "Config path for all nodes.")
	flags.StringVar(&cfg.DataPath, "dataPath", cfg.DataPath, "Data path for all nodes.")
	flags.StringVar(&cfg.LogsPath, "logsPath", cfg.LogsPath, "Log path for all nodes.")
	flags.IntVar(&cfg.NumOfNode, "numOfNode", cfg.NumOfNode, "The number of cluster nodes.")
	flags.IntVar(&cfg.BaseHTTPPort, "baseHttpPort", cfg.BaseHTTPPort, "Base http port.")
	flags.StringVar(&cfg.ClusterName, "clusterName", cfg.ClusterName, "Cluster name.")
	flags.StringVar(&cfg.IndexStoreType, "indexStoreType", cfg.IndexStoreType, "Index store type.")
	flags.BoolVar(&cfg.UseLogger, "useLogger", cfg.UseLogger, "Print output to a logger.")
	flags.BoolVar(&cfg.DisableEngineLogger, "disableEngineLogger", cfg.DisableEngineLogger, "Disable the engine's internal logger.")
	flags.BoolVar(&cfg.PrintOnFailure, "printOnFailure", cfg.PrintOnFailure, "Print operation failures instead of raising them.")
	moduleTypes := flags.String("moduleTypes", "", "Module types, comma separated.")
	pluginTypes := flags.String("pluginTypes", "", "Plugin types, comma separated.")

	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse args %q: %w", strings.Join(args, " "), err)
	}

	cfg.ModuleTypes = splitTypes(*moduleTypes)
	cfg.PluginTypes = splitTypes(*pluginTypes)
	return cfg, nil
}

func splitTypes(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

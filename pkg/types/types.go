// Package types provides core types and configurations for ClusterRunner
package types

// Engine setting keys used across the runner.
const (
	SettingClusterName    = "cluster.name"
	SettingNodeName       = "node.name"
	SettingNodeRoles      = "node.roles"
	SettingHTTPPort       = "http.port"
	SettingIndexStoreType = "index.store.type"
	SettingPathHome       = "path.home"
	SettingPathData       = "path.data"
	SettingPathLogs       = "path.logs"
	SettingPathModules    = "path.modules"
	SettingPathPlugins    = "path.plugins"
)

// Node roles assigned when the caller does not set any.
const (
	RoleClusterManagerEligible = "cluster-manager-eligible"
	RoleData                   = "data"
)

// Defaults for a cluster built without explicit configuration.
const (
	DefaultNumOfNode      = 3
	DefaultBaseHTTPPort   = 9200
	DefaultMaxHTTPPort    = 9299
	DefaultClusterName    = "cluster-runner"
	DefaultIndexStoreType = "fs"
)

// NodeState represents the lifecycle state of a managed node
type NodeState string

const (
	NodeStateProvisioned NodeState = "provisioned"
	NodeStateStarted     NodeState = "started"
	NodeStateClosed      NodeState = "closed"
)

// LogLevel represents logging verbosity levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ClusterConfig is the immutable-after-build configuration for one cluster.
// It is produced from CLI-style arguments or the runner's Configs builder
// and consumed once at build time.
type ClusterConfig struct {
	ClusterName         string   `json:"clusterName" yaml:"clusterName"`
	NumOfNode           int      `json:"numOfNode" yaml:"numOfNode"`
	BasePath            string   `json:"basePath,omitempty" yaml:"basePath,omitempty"`
	ConfPath            string   `json:"confPath,omitempty" yaml:"confPath,omitempty"`
	DataPath            string   `json:"dataPath,omitempty" yaml:"dataPath,omitempty"`
	LogsPath            string   `json:"logsPath,omitempty" yaml:"logsPath,omitempty"`
	BaseHTTPPort        int      `json:"baseHttpPort" yaml:"baseHttpPort"`
	MaxHTTPPort         int      `json:"maxHttpPort" yaml:"maxHttpPort"`
	IndexStoreType      string   `json:"indexStoreType" yaml:"indexStoreType"`
	UseLogger           bool     `json:"useLogger" yaml:"useLogger"`
	DisableEngineLogger bool     `json:"disableEngineLogger" yaml:"disableEngineLogger"`
	PrintOnFailure      bool     `json:"printOnFailure" yaml:"printOnFailure"`
	ModuleTypes         []string `json:"moduleTypes,omitempty" yaml:"moduleTypes,omitempty"`
	PluginTypes         []string `json:"pluginTypes,omitempty" yaml:"pluginTypes,omitempty"`
}

// DefaultModuleTypes is the fixed bundled set of engine modules loaded when
// the caller does not request a specific list. Identifiers resolve through
// the engine's plugin registry; unknown modules are skipped with a warning.
var DefaultModuleTypes = []string{
	"analysis-common",
	"mapper-extras",
	"percolator",
	"rank-eval",
	"reindex",
	"search-pipeline-common",
	"transport-http",
	"ingest-common",
}

// NewClusterConfig returns a configuration populated with defaults.
func NewClusterConfig() *ClusterConfig {
	return &ClusterConfig{
		ClusterName:    DefaultClusterName,
		NumOfNode:      DefaultNumOfNode,
		BaseHTTPPort:   DefaultBaseHTTPPort,
		MaxHTTPPort:    DefaultMaxHTTPPort,
		IndexStoreType: DefaultIndexStoreType,
	}
}

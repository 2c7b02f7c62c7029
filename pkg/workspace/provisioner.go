// Package workspace provisions and wipes per-node directory trees
package workspace

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/clusterrunner/clusterrunner/pkg/logger"
)

//go:embed templates
var templates embed.FS

// Well-known names inside a node workspace.
const (
	ConfigDir  = "config"
	DataDir    = "data"
	LogsDir    = "logs"
	ModulesDir = "modules"
	PluginsDir = "plugins"

	// ConfigFileName is the node's main configuration file.
	ConfigFileName = "clusterrunner.yml"
	// LoggingFileName configures the engine's internal logger.
	LoggingFileName = "logging.yml"
)

// Paths holds the resolved directories for one node.
type Paths struct {
	Home   string
	Config string
	Data   string
	Logs   string
}

// Options control how a node workspace is provisioned.
type Options struct {
	// ConfPath, DataPath and LogsPath override the default locations
	// under the node home. Overrides are used verbatim.
	ConfPath string
	DataPath string
	LogsPath string
	// DisableEngineLogger skips seeding the engine logging config.
	DisableEngineLogger bool
}

// Provisioner derives per-node paths and seeds default configuration.
type Provisioner struct {
	logger logger.Logger
}

// NewProvisioner creates a workspace provisioner.
func NewProvisioner(log logger.Logger) *Provisioner {
	return &Provisioner{logger: log}
}

// Provision resolves the workspace for the node with the given ordinal,
// creates any missing directories and seeds missing configuration files
// from the bundled templates. Provisioning an existing workspace is a
// no-op for everything already present.
func (p *Provisioner) Provision(basePath string, ordinal int, opts Options) (Paths, error) {
	home := filepath.Join(basePath, fmt.Sprintf("node_%d", ordinal))

	paths := Paths{
		Home:   home,
		Config: filepath.Join(home, ConfigDir),
		Data:   filepath.Join(home, DataDir),
		Logs:   filepath.Join(home, LogsDir),
	}
	if opts.ConfPath != "" {
		paths.Config = opts.ConfPath
	}
	if opts.DataPath != "" {
		paths.Data = opts.DataPath
	}
	if opts.LogsPath != "" {
		paths.Logs = opts.LogsPath
	}

	for _, dir := range []string{paths.Home, paths.Config, paths.Data, paths.Logs} {
		if err := p.createDir(dir); err != nil {
			return Paths{}, err
		}
	}

	if err := p.seedTemplate(paths.Config, ConfigFileName); err != nil {
		return Paths{}, err
	}
	if !opts.DisableEngineLogger {
		if err := p.seedTemplate(paths.Config, LoggingFileName); err != nil {
			return Paths{}, err
		}
	}

	return paths, nil
}

func (p *Provisioner) createDir(path string) error {
	if Exists(path) {
		return nil
	}
	p.logger.Debug("Creating directory", logger.WithField("path", path))
	if err := CreateDirectory(path); err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return nil
}

// seedTemplate copies a bundled template into the config directory when
// the file does not exist yet. A node cannot start without its minimal
// configuration, so a copy failure is fatal.
func (p *Provisioner) seedTemplate(confDir, name string) error {
	dst := filepath.Join(confDir, name)
	if Exists(dst) {
		return nil
	}
	data, err := templates.ReadFile("templates/" + name)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", dst, err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("could not create %s: %w", dst, err)
	}
	return nil
}

package local

import (
	"github.com/clusterrunner/clusterrunner/pkg/engine"
)

// modulePlugin is a stand-in engine module. The local engine loads it by
// name only; the capability behind it lives in the real engine.
type modulePlugin struct {
	name string
}

func (p *modulePlugin) Name() string {
	return p.name
}

// builtinModules are the module identifiers bundled with the local
// engine.
var builtinModules = []string{
	"analysis-common",
	"mapper-extras",
	"percolator",
	"rank-eval",
	"reindex",
	"search-pipeline-common",
	"transport-http",
	"ingest-common",
}

// RegisterBuiltins populates the registry with the bundled module set.
// Callers register additional plugins before building a cluster.
func RegisterBuiltins(r *engine.Registry) {
	for _, name := range builtinModules {
		name := name
		r.Register(name, func() engine.Plugin {
			return &modulePlugin{name: name}
		})
	}
}

// Package engine defines the boundary to the search engine consumed by
// the runner. The engine itself is an external collaborator; the runner
// only depends on the node lifecycle, the client operations and the
// plugin registry declared here.
package engine

import (
	"time"

	"github.com/clusterrunner/clusterrunner/pkg/settings"
)

// HealthStatus is the cluster health reported by the engine.
type HealthStatus string

const (
	HealthGreen  HealthStatus = "green"
	HealthYellow HealthStatus = "yellow"
	HealthRed    HealthStatus = "red"
)

// Result is the outcome kind of a single-document write.
type Result string

const (
	ResultCreated  Result = "created"
	ResultUpdated  Result = "updated"
	ResultDeleted  Result = "deleted"
	ResultNotFound Result = "not_found"
	ResultNoop     Result = "noop"
)

// Node is one engine process instance, opaque to the runner beyond its
// lifecycle, settings and client capability.
type Node interface {
	// Name returns the node name ("Node N").
	Name() string
	// Start boots the node. It returns the engine's own validation
	// failure when the node cannot come up.
	Start() error
	// Close shuts the node down. Closing twice is safe.
	Close() error
	// IsClosed reports whether the node has been closed.
	IsClosed() bool
	// AwaitClose blocks until the close completed or the timeout
	// elapsed, reporting whether the node closed in time.
	AwaitClose(timeout time.Duration) bool
	// Settings returns the resolved settings the node was started with.
	Settings() settings.Snapshot
	// Client returns a client for issuing operations against the
	// cluster this node belongs to.
	Client() Client
	// Service looks up an engine-internal service by name.
	Service(name string) (interface{}, error)
}

// Environment carries everything needed to construct a node. The runner
// retains it after the node is closed so the node can be restarted from
// its original environment.
type Environment struct {
	NodeName      string
	HomeDir       string
	ConfigDir     string
	DataDir       string
	LogsDir       string
	Settings      settings.Snapshot
	DisableLogger bool
}

// NodeFactory constructs a node from its environment and plugin set.
type NodeFactory func(env *Environment, plugins []Plugin) (Node, error)

// Client issues cluster operations. Request objects are consumed
// verbatim; responses expose the success predicate callers check.
type Client interface {
	Health(req *ClusterHealthRequest) (*ClusterHealthResponse, error)
	State() (*ClusterStateResponse, error)
	PendingTasks() (*PendingTasksResponse, error)

	CreateIndex(req *CreateIndexRequest) (*AcknowledgedResponse, error)
	DeleteIndex(req *DeleteIndexRequest) (*AcknowledgedResponse, error)
	OpenIndex(req *OpenIndexRequest) (*AcknowledgedResponse, error)
	CloseIndex(req *CloseIndexRequest) (*AcknowledgedResponse, error)
	IndexExists(req *IndicesExistsRequest) (*ExistsResponse, error)
	PutMapping(req *PutMappingRequest) (*AcknowledgedResponse, error)

	Index(req *IndexRequest) (*IndexResponse, error)
	Delete(req *DeleteRequest) (*DeleteResponse, error)
	Search(req *SearchRequest) (*SearchResponse, error)

	Flush(req *FlushRequest) (*BroadcastResponse, error)
	Refresh(req *RefreshRequest) (*BroadcastResponse, error)
	ForceMerge(req *ForceMergeRequest) (*BroadcastResponse, error)
	Upgrade(req *UpgradeRequest) (*BroadcastResponse, error)

	GetAliases(req *GetAliasesRequest) (*GetAliasesResponse, error)
	UpdateAliases(req *UpdateAliasesRequest) (*AcknowledgedResponse, error)
}

package engine

import (
	"fmt"
	"strings"
	"time"
)

// ClusterHealthRequest asks the engine to block until the cluster reaches
// the target status with no relocating shards, scoped to the given
// indices (empty means the whole cluster).
type ClusterHealthRequest struct {
	Indices                   []string
	WaitForStatus             HealthStatus
	WaitForNoRelocatingShards bool
	Timeout                   time.Duration
}

// ClusterHealthResponse reports the cluster health outcome.
type ClusterHealthResponse struct {
	ClusterName      string       `json:"cluster_name"`
	Status           HealthStatus `json:"status"`
	TimedOut         bool         `json:"timed_out"`
	NumberOfNodes    int          `json:"number_of_nodes"`
	ActiveShards     int          `json:"active_shards"`
	RelocatingShards int          `json:"relocating_shards"`
}

// ClusterStateResponse is a consistent snapshot of cluster topology.
type ClusterStateResponse struct {
	ClusterName        string   `json:"cluster_name"`
	ClusterManagerName string   `json:"cluster_manager_name"`
	Nodes              []string `json:"nodes"`
	Indices            []string `json:"indices"`
}

func (r *ClusterStateResponse) String() string {
	return fmt.Sprintf("cluster[%s] manager[%s] nodes[%s] indices[%s]",
		r.ClusterName, r.ClusterManagerName,
		strings.Join(r.Nodes, ","), strings.Join(r.Indices, ","))
}

// PendingTasksResponse lists cluster tasks not yet applied.
type PendingTasksResponse struct {
	Tasks []string `json:"tasks"`
}

func (r *PendingTasksResponse) String() string {
	if len(r.Tasks) == 0 {
		return "no pending tasks"
	}
	return strings.Join(r.Tasks, "\n")
}

// AcknowledgedResponse is the generic admin-operation outcome.
type AcknowledgedResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// IsAcknowledged reports whether the engine accepted the operation.
func (r *AcknowledgedResponse) IsAcknowledged() bool {
	return r.Acknowledged
}

// CreateIndexRequest creates an index with optional index settings.
type CreateIndexRequest struct {
	Index    string
	Settings map[string]string
}

// DeleteIndexRequest deletes an index.
type DeleteIndexRequest struct {
	Index string
}

// OpenIndexRequest opens a closed index.
type OpenIndexRequest struct {
	Index string
}

// CloseIndexRequest closes an open index.
type CloseIndexRequest struct {
	Index string
}

// IndicesExistsRequest checks index existence.
type IndicesExistsRequest struct {
	Index string
}

// ExistsResponse reports index existence.
type ExistsResponse struct {
	Exists bool `json:"exists"`
}

// PutMappingRequest installs a field mapping on an index.
type PutMappingRequest struct {
	Index  string
	Source string
}

// IndexRequest writes one document.
type IndexRequest struct {
	Index   string
	ID      string
	Source  string
	Refresh bool
}

// IndexResponse reports the write outcome. Result is "created" for a new
// document and "updated" when the id already existed.
type IndexResponse struct {
	Index   string `json:"_index"`
	ID      string `json:"_id"`
	Version int64  `json:"_version"`
	Result  Result `json:"result"`
}

// DeleteRequest removes one document.
type DeleteRequest struct {
	Index   string
	ID      string
	Refresh bool
}

// DeleteResponse reports the delete outcome. Result is "not_found" when
// no document had the id.
type DeleteResponse struct {
	Index  string `json:"_index"`
	ID     string `json:"_id"`
	Result Result `json:"result"`
}

// SearchRequest runs a query against one index. The query is an opaque
// engine-owned object; a nil query matches all documents.
type SearchRequest struct {
	Index string
	Query map[string]interface{}
	Sort  string
	From  int
	Size  int
}

// Hit is one search result.
type Hit struct {
	Index  string `json:"_index"`
	ID     string `json:"_id"`
	Source string `json:"_source"`
}

// SearchResponse carries the hit set.
type SearchResponse struct {
	TotalHits int64 `json:"total_hits"`
	Hits      []Hit `json:"hits"`
}

// FlushRequest flushes index buffers to storage.
type FlushRequest struct {
	Indices       []string
	Force         bool
	WaitIfOngoing bool
}

// RefreshRequest makes recent writes visible to search.
type RefreshRequest struct {
	Indices []string
}

// ForceMergeRequest merges index segments.
type ForceMergeRequest struct {
	Indices            []string
	MaxNumSegments     int
	OnlyExpungeDeletes bool
	Flush              bool
}

// UpgradeRequest upgrades index segments to the current format.
type UpgradeRequest struct {
	Indices             []string
	OnlyAncientSegments bool
}

// BroadcastResponse is the outcome of a per-shard broadcast operation.
type BroadcastResponse struct {
	TotalShards   int      `json:"total_shards"`
	FailedShards  int      `json:"failed_shards"`
	ShardFailures []string `json:"shard_failures,omitempty"`
}

// GetAliasesRequest looks up an alias.
type GetAliasesRequest struct {
	Alias string
}

// GetAliasesResponse maps index names to the aliases pointing at them.
type GetAliasesResponse struct {
	Aliases map[string][]string `json:"aliases"`
}

// AliasAction adds or removes one alias on a set of indices.
type AliasAction struct {
	Alias   string
	Indices []string
}

// UpdateAliasesRequest applies alias additions and removals atomically.
type UpdateAliasesRequest struct {
	Add    []AliasAction
	Remove []AliasAction
}

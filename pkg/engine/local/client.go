package local

import (
	"github.com/clusterrunner/clusterrunner/pkg/engine"
)

// client implements engine.Client against the node's shared cluster
// state. Operations are synchronous; the blocking semantics of the real
// engine collapse to immediate evaluation.
type client struct {
	node *Node
}

var _ engine.Client = (*client)(nil)

func (c *client) Health(req *engine.ClusterHealthRequest) (*engine.ClusterHealthResponse, error) {
	cluster, err := c.node.getCluster()
	if err != nil {
		return nil, err
	}
	status, timedOut := cluster.health(req.Indices)
	if req.WaitForStatus != "" {
		// The wait "times out" exactly when the cluster cannot reach the
		// requested status: yellow satisfies a yellow target, but not green.
		timedOut = healthRank(status) < healthRank(req.WaitForStatus)
	}
	return &engine.ClusterHealthResponse{
		ClusterName:   cluster.Name(),
		Status:        status,
		TimedOut:      timedOut,
		NumberOfNodes: len(cluster.memberNames()),
		ActiveShards:  cluster.shardCount(req.Indices),
	}, nil
}

func healthRank(status engine.HealthStatus) int {
	switch status {
	case engine.HealthGreen:
		return 2
	case engine.HealthYellow:
		return 1
	default:
		return 0
	}
}

func (c *client) State() (*engine.ClusterStateResponse, error) {
	cluster, err := c.node.getCluster()
	if err != nil {
		return nil, err
	}
	return &engine.ClusterStateResponse{
		ClusterName:        cluster.Name(),
		ClusterManagerName: cluster.managerName(),
		Nodes:              cluster.memberNames(),
		Indices:            cluster.indexNames(),
	}, nil
}

func (c *client) PendingTasks() (*engine.PendingTasksResponse, error) {
	// State changes apply synchronously, so the queue is always empty.
	return &engine.PendingTasksResponse{}, nil
}

func (c *client) CreateIndex(req *engine.CreateIndexRequest) (*engine.AcknowledgedResponse, error) {
	cluster, err := c.node.getCluster()
	if err != nil {
		return nil, err
	}
	if err := cluster.createIndex(req.Index); err != nil {
		return nil, err
	}
	return &engine.AcknowledgedResponse{Acknowledged: true}, nil
}

func (c *client) DeleteIndex(req *engine.DeleteIndexRequest) (*engine.AcknowledgedResponse, error) {
	cluster, err := c.node.getCluster()
	if err != nil {
		return nil, err
	}
	if err := cluster.deleteIndex(req.Index); err != nil {
		return nil, err
	}
	return &engine.AcknowledgedResponse{Acknowledged: true}, nil
}

func (c *client) OpenIndex(req *engine.OpenIndexRequest) (*engine.AcknowledgedResponse, error) {
	cluster, err := c.node.getCluster()
	if err != nil {
		return nil, err
	}
	if err := cluster.setOpen(req.Index, true); err != nil {
		return nil, err
	}
	return &engine.AcknowledgedResponse{Acknowledged: true}, nil
}

func (c *client) CloseIndex(req *engine.CloseIndexRequest) (*engine.AcknowledgedResponse, error) {
	cluster, err := c.node.getCluster()
	if err != nil {
		return nil, err
	}
	if err := cluster.setOpen(req.Index, false); err != nil {
		return nil, err
	}
	return &engine.AcknowledgedResponse{Acknowledged: true}, nil
}

func (c *client) IndexExists(req *engine.IndicesExistsRequest) (*engine.ExistsResponse, error) {
	cluster, err := c.node.getCluster()
	if err != nil {
		return nil, err
	}
	return &engine.ExistsResponse{Exists: cluster.indexExists(req.Index)}, nil
}

func (c *client) PutMapping(req *engine.PutMappingRequest) (*engine.AcknowledgedResponse, error) {
	cluster, err := c.node.getCluster()
	if err != nil {
		return nil, err
	}
	if err := cluster.putMapping(req.Index, req.Source); err != nil {
		return nil, err
	}
	return &engine.AcknowledgedResponse{Acknowledged: true}, nil
}

func (c *client) Index(req *engine.IndexRequest) (*engine.IndexResponse, error) {
	cluster, err := c.node.getCluster()
	if err != nil {
		return nil, err
	}
	result, version, err := cluster.putDocument(req.Index, req.ID, req.Source)
	if err != nil {
		return nil, err
	}
	return &engine.IndexResponse{
		Index:   req.Index,
		ID:      req.ID,
		Version: version,
		Result:  result,
	}, nil
}

func (c *client) Delete(req *engine.DeleteRequest) (*engine.DeleteResponse, error) {
	cluster, err := c.node.getCluster()
	if err != nil {
		return nil, err
	}
	result, err := cluster.deleteDocument(req.Index, req.ID)
	if err != nil {
		return nil, err
	}
	return &engine.DeleteResponse{
		Index:  req.Index,
		ID:     req.ID,
		Result: result,
	}, nil
}

func (c *client) Search(req *engine.SearchRequest) (*engine.SearchResponse, error) {
	cluster, err := c.node.getCluster()
	if err != nil {
		return nil, err
	}
	return cluster.search(req)
}

func (c *client) Flush(req *engine.FlushRequest) (*engine.BroadcastResponse, error) {
	return c.broadcast(req.Indices)
}

func (c *client) Refresh(req *engine.RefreshRequest) (*engine.BroadcastResponse, error) {
	return c.broadcast(req.Indices)
}

func (c *client) ForceMerge(req *engine.ForceMergeRequest) (*engine.BroadcastResponse, error) {
	return c.broadcast(req.Indices)
}

func (c *client) Upgrade(req *engine.UpgradeRequest) (*engine.BroadcastResponse, error) {
	return c.broadcast(req.Indices)
}

// broadcast acknowledges a per-shard operation. Documents live in memory,
// so flush-style operations have nothing to do beyond reporting shape.
func (c *client) broadcast(indices []string) (*engine.BroadcastResponse, error) {
	cluster, err := c.node.getCluster()
	if err != nil {
		return nil, err
	}
	return &engine.BroadcastResponse{
		TotalShards: cluster.shardCount(indices),
	}, nil
}

func (c *client) GetAliases(req *engine.GetAliasesRequest) (*engine.GetAliasesResponse, error) {
	cluster, err := c.node.getCluster()
	if err != nil {
		return nil, err
	}
	return &engine.GetAliasesResponse{Aliases: cluster.getAliases(req.Alias)}, nil
}

func (c *client) UpdateAliases(req *engine.UpdateAliasesRequest) (*engine.AcknowledgedResponse, error) {
	cluster, err := c.node.getCluster()
	if err != nil {
		return nil, err
	}
	if err := cluster.updateAliases(req); err != nil {
		return nil, err
	}
	return &engine.AcknowledgedResponse{Acknowledged: true}, nil
}

// Package local is a lightweight in-process engine used by the harness
// in development and tests. It honours the engine contracts but is not a
// search engine: queries are match-all and id lookup only, and cluster
// state is shared memory rather than replication.
package local

import (
	"fmt"
	"sync"

	"github.com/clusterrunner/clusterrunner/pkg/engine"
)

var (
	clustersMu sync.Mutex
	clusters   = make(map[string]*Cluster)
)

// joinCluster attaches a node to the in-process cluster with the given
// name, creating the cluster on first join.
func joinCluster(name string, n *Node) *Cluster {
	clustersMu.Lock()
	defer clustersMu.Unlock()
	c, ok := clusters[name]
	if !ok {
		c = &Cluster{
			name:    name,
			indices: make(map[string]*index),
			aliases: make(map[string]map[string]struct{}),
		}
		clusters[name] = c
	}
	c.join(n)
	return c
}

type document struct {
	source  string
	version int64
}

type index struct {
	open     bool
	mapping  string
	docs     map[string]*document
	docOrder []string
}

// Cluster is the shared state all local nodes of one cluster operate on.
// It doubles as the engine's cluster coordination service.
type Cluster struct {
	mu      sync.RWMutex
	name    string
	members []*Node
	indices map[string]*index
	aliases map[string]map[string]struct{}
}

// Name returns the cluster name.
func (c *Cluster) Name() string {
	return c.name
}

func (c *Cluster) join(n *Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.members {
		if m == n {
			return
		}
	}
	c.members = append(c.members, n)
}

func (c *Cluster) leave(n *Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, m := range c.members {
		if m == n {
			c.members = append(c.members[:i], c.members[i+1:]...)
			return
		}
	}
}

// managerName returns the name of the member currently holding cluster
// coordination responsibility. The longest-lived member wins.
func (c *Cluster) managerName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.members {
		if !m.IsClosed() {
			return m.Name()
		}
	}
	return ""
}

func (c *Cluster) memberNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.members))
	for _, m := range c.members {
		if !m.IsClosed() {
			names = append(names, m.Name())
		}
	}
	return names
}

func (c *Cluster) indexNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.indices))
	for name := range c.indices {
		names = append(names, name)
	}
	return names
}

// health reports the cluster status scoped to the given indices. The
// local engine has no unassigned shards, so the status is green whenever
// every requested index exists and is open.
func (c *Cluster) health(indices []string) (engine.HealthStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	status := engine.HealthGreen
	for _, name := range indices {
		idx, ok := c.indices[name]
		if !ok {
			return engine.HealthRed, true
		}
		if !idx.open {
			status = engine.HealthYellow
		}
	}
	return status, false
}

func (c *Cluster) createIndex(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.indices[name]; ok {
		return fmt.Errorf("index %s already exists", name)
	}
	c.indices[name] = &index{
		open: true,
		docs: make(map[string]*document),
	}
	return nil
}

func (c *Cluster) deleteIndex(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.indices[name]; !ok {
		return fmt.Errorf("no such index %s", name)
	}
	delete(c.indices, name)
	for alias, targets := range c.aliases {
		delete(targets, name)
		if len(targets) == 0 {
			delete(c.aliases, alias)
		}
	}
	return nil
}

func (c *Cluster) setOpen(name string, open bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.indices[name]
	if !ok {
		return fmt.Errorf("no such index %s", name)
	}
	idx.open = open
	return nil
}

func (c *Cluster) indexExists(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.indices[name]
	return ok
}

func (c *Cluster) putMapping(name, source string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.indices[name]
	if !ok {
		return fmt.Errorf("no such index %s", name)
	}
	idx.mapping = source
	return nil
}

// putDocument stores a document, creating the index on first write the
// way the real engine auto-creates indices. The returned result is
// "created" for a new id and "updated" for an overwrite.
func (c *Cluster) putDocument(indexName, id, source string) (engine.Result, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.indices[indexName]
	if !ok {
		idx = &index{
			open: true,
			docs: make(map[string]*document),
		}
		c.indices[indexName] = idx
	}
	if !idx.open {
		return "", 0, fmt.Errorf("index %s is closed", indexName)
	}
	if doc, ok := idx.docs[id]; ok {
		doc.source = source
		doc.version++
		return engine.ResultUpdated, doc.version, nil
	}
	idx.docs[id] = &document{source: source, version: 1}
	idx.docOrder = append(idx.docOrder, id)
	return engine.ResultCreated, 1, nil
}

func (c *Cluster) deleteDocument(indexName, id string) (engine.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.indices[indexName]
	if !ok {
		return "", fmt.Errorf("no such index %s", indexName)
	}
	if _, ok := idx.docs[id]; !ok {
		return engine.ResultNotFound, nil
	}
	delete(idx.docs, id)
	for i, docID := range idx.docOrder {
		if docID == id {
			idx.docOrder = append(idx.docOrder[:i], idx.docOrder[i+1:]...)
			break
		}
	}
	return engine.ResultDeleted, nil
}

// search returns matching documents in insertion order. A nil query
// matches everything; an "ids" query filters by document id.
func (c *Cluster) search(req *engine.SearchRequest) (*engine.SearchResponse, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.indices[req.Index]
	if !ok {
		return nil, fmt.Errorf("no such index %s", req.Index)
	}

	wantIDs := idFilter(req.Query)
	var matched []engine.Hit
	for _, id := range idx.docOrder {
		if wantIDs != nil {
			if _, ok := wantIDs[id]; !ok {
				continue
			}
		}
		matched = append(matched, engine.Hit{
			Index:  req.Index,
			ID:     id,
			Source: idx.docs[id].source,
		})
	}

	total := int64(len(matched))
	from := req.From
	if from > len(matched) {
		from = len(matched)
	}
	matched = matched[from:]
	if req.Size >= 0 && req.Size < len(matched) {
		matched = matched[:req.Size]
	}
	return &engine.SearchResponse{
		TotalHits: total,
		Hits:      matched,
	}, nil
}

func idFilter(query map[string]interface{}) map[string]struct{} {
	if query == nil {
		return nil
	}
	raw, ok := query["ids"]
	if !ok {
		return nil
	}
	list, ok := raw.([]string)
	if !ok {
		if anyList, ok := raw.([]interface{}); ok {
			list = make([]string, 0, len(anyList))
			for _, v := range anyList {
				if s, ok := v.(string); ok {
					list = append(list, s)
				}
			}
		}
	}
	ids := make(map[string]struct{}, len(list))
	for _, id := range list {
		ids[id] = struct{}{}
	}
	return ids
}

// shardCount mirrors the broadcast-operation bookkeeping: one shard per
// index touched.
func (c *Cluster) shardCount(indices []string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(indices) == 0 {
		return len(c.indices)
	}
	count := 0
	for _, name := range indices {
		if _, ok := c.indices[name]; ok {
			count++
		}
	}
	return count
}

func (c *Cluster) getAliases(alias string) map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]string)
	targets, ok := c.aliases[alias]
	if !ok {
		return out
	}
	for indexName := range targets {
		out[indexName] = append(out[indexName], alias)
	}
	return out
}

func (c *Cluster) updateAliases(req *engine.UpdateAliasesRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, action := range req.Add {
		for _, indexName := range action.Indices {
			if _, ok := c.indices[indexName]; !ok {
				return fmt.Errorf("no such index %s", indexName)
			}
			if c.aliases[action.Alias] == nil {
				c.aliases[action.Alias] = make(map[string]struct{})
			}
			c.aliases[action.Alias][indexName] = struct{}{}
		}
	}
	for _, action := range req.Remove {
		targets, ok := c.aliases[action.Alias]
		if !ok {
			continue
		}
		for _, indexName := range action.Indices {
			delete(targets, indexName)
		}
		if len(targets) == 0 {
			delete(c.aliases, action.Alias)
		}
	}
	return nil
}

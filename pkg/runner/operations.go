package runner

import (
	"strings"

	"github.com/clusterrunner/clusterrunner/pkg/engine"
)

// Convenience operations over the engine client. Each has a default form
// and accepts request-option functions applied to a default-constructed
// request before execution. Unacknowledged outcomes are routed through
// the print-on-failure policy.

const defaultSearchSize = 10

// CreateIndex creates an index.
func (r *Runner) CreateIndex(index string, opts ...func(*engine.CreateIndexRequest)) (*engine.AcknowledgedResponse, error) {
	client, err := r.Client()
	if err != nil {
		return nil, err
	}
	req := &engine.CreateIndexRequest{Index: index}
	applyOpts(req, opts)
	resp, err := client.CreateIndex(req)
	if err != nil {
		return nil, err
	}
	if !resp.IsAcknowledged() {
		if err := r.onFailure("failed to create "+index, resp); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// DeleteIndex deletes an index.
func (r *Runner) DeleteIndex(index string, opts ...func(*engine.DeleteIndexRequest)) (*engine.AcknowledgedResponse, error) {
	client, err := r.Client()
	if err != nil {
		return nil, err
	}
	req := &engine.DeleteIndexRequest{Index: index}
	applyOpts(req, opts)
	resp, err := client.DeleteIndex(req)
	if err != nil {
		return nil, err
	}
	if !resp.IsAcknowledged() {
		if err := r.onFailure("failed to delete "+index, resp); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// OpenIndex opens a closed index.
func (r *Runner) OpenIndex(index string, opts ...func(*engine.OpenIndexRequest)) (*engine.AcknowledgedResponse, error) {
	client, err := r.Client()
	if err != nil {
		return nil, err
	}
	req := &engine.OpenIndexRequest{Index: index}
	applyOpts(req, opts)
	resp, err := client.OpenIndex(req)
	if err != nil {
		return nil, err
	}
	if !resp.IsAcknowledged() {
		if err := r.onFailure("failed to open "+index, resp); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// CloseIndex closes an open index.
func (r *Runner) CloseIndex(index string, opts ...func(*engine.CloseIndexRequest)) (*engine.AcknowledgedResponse, error) {
	client, err := r.Client()
	if err != nil {
		return nil, err
	}
	req := &engine.CloseIndexRequest{Index: index}
	applyOpts(req, opts)
	resp, err := client.CloseIndex(req)
	if err != nil {
		return nil, err
	}
	if !resp.IsAcknowledged() {
		if err := r.onFailure("failed to close "+index, resp); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// IndexExists reports whether an index exists.
func (r *Runner) IndexExists(index string, opts ...func(*engine.IndicesExistsRequest)) (bool, error) {
	client, err := r.Client()
	if err != nil {
		return false, err
	}
	req := &engine.IndicesExistsRequest{Index: index}
	applyOpts(req, opts)
	resp, err := client.IndexExists(req)
	if err != nil {
		return false, err
	}
	return resp.Exists, nil
}

// CreateMapping installs a field mapping on an index.
func (r *Runner) CreateMapping(index, mappingSource string, opts ...func(*engine.PutMappingRequest)) (*engine.AcknowledgedResponse, error) {
	client, err := r.Client()
	if err != nil {
		return nil, err
	}
	req := &engine.PutMappingRequest{Index: index, Source: mappingSource}
	applyOpts(req, opts)
	resp, err := client.PutMapping(req)
	if err != nil {
		return nil, err
	}
	if !resp.IsAcknowledged() {
		if err := r.onFailure("failed to create a mapping for "+index, resp); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// Insert writes a document with the given id. A write that overwrote an
// existing document reports "updated", which the policy treats as a
// failure of the insert contract.
func (r *Runner) Insert(index, id, source string, opts ...func(*engine.IndexRequest)) (*engine.IndexResponse, error) {
	client, err := r.Client()
	if err != nil {
		return nil, err
	}
	req := &engine.IndexRequest{Index: index, ID: id, Source: source, Refresh: true}
	applyOpts(req, opts)
	resp, err := client.Index(req)
	if err != nil {
		return nil, err
	}
	if resp.Result != engine.ResultCreated {
		if err := r.onFailure("failed to insert "+id+" into "+index, resp); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// Delete removes a document by id. A missing document reports
// "not_found" and fails the delete contract.
func (r *Runner) Delete(index, id string, opts ...func(*engine.DeleteRequest)) (*engine.DeleteResponse, error) {
	client, err := r.Client()
	if err != nil {
		return nil, err
	}
	req := &engine.DeleteRequest{Index: index, ID: id, Refresh: true}
	applyOpts(req, opts)
	resp, err := client.Delete(req)
	if err != nil {
		return nil, err
	}
	if resp.Result != engine.ResultDeleted {
		if err := r.onFailure("failed to delete "+id+" from "+index, resp); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// Count returns the number of documents in an index.
func (r *Runner) Count(index string, opts ...func(*engine.SearchRequest)) (*engine.SearchResponse, error) {
	client, err := r.Client()
	if err != nil {
		return nil, err
	}
	req := &engine.SearchRequest{Index: index, Size: 0}
	applyOpts(req, opts)
	return client.Search(req)
}

// Search runs a query against an index. A nil query matches all
// documents.
func (r *Runner) Search(index string, opts ...func(*engine.SearchRequest)) (*engine.SearchResponse, error) {
	client, err := r.Client()
	if err != nil {
		return nil, err
	}
	req := &engine.SearchRequest{Index: index, Size: defaultSearchSize}
	applyOpts(req, opts)
	return client.Search(req)
}

// Flush flushes index buffers, waiting for relocation first.
func (r *Runner) Flush(opts ...func(*engine.FlushRequest)) (*engine.BroadcastResponse, error) {
	if _, err := r.WaitForRelocation(); err != nil {
		return nil, err
	}
	client, err := r.Client()
	if err != nil {
		return nil, err
	}
	req := &engine.FlushRequest{Force: true, WaitIfOngoing: true}
	applyOpts(req, opts)
	resp, err := client.Flush(req)
	if err != nil {
		return nil, err
	}
	return resp, r.checkShardFailures(resp)
}

// Refresh makes recent writes visible to search.
func (r *Runner) Refresh(opts ...func(*engine.RefreshRequest)) (*engine.BroadcastResponse, error) {
	if _, err := r.WaitForRelocation(); err != nil {
		return nil, err
	}
	client, err := r.Client()
	if err != nil {
		return nil, err
	}
	req := &engine.RefreshRequest{}
	applyOpts(req, opts)
	resp, err := client.Refresh(req)
	if err != nil {
		return nil, err
	}
	return resp, r.checkShardFailures(resp)
}

// ForceMerge merges index segments.
func (r *Runner) ForceMerge(opts ...func(*engine.ForceMergeRequest)) (*engine.BroadcastResponse, error) {
	if _, err := r.WaitForRelocation(); err != nil {
		return nil, err
	}
	client, err := r.Client()
	if err != nil {
		return nil, err
	}
	req := &engine.ForceMergeRequest{MaxNumSegments: -1, Flush: true}
	applyOpts(req, opts)
	resp, err := client.ForceMerge(req)
	if err != nil {
		return nil, err
	}
	return resp, r.checkShardFailures(resp)
}

// Upgrade upgrades index segments to the current format.
func (r *Runner) Upgrade(opts ...func(*engine.UpgradeRequest)) (*engine.BroadcastResponse, error) {
	if _, err := r.WaitForRelocation(); err != nil {
		return nil, err
	}
	client, err := r.Client()
	if err != nil {
		return nil, err
	}
	req := &engine.UpgradeRequest{OnlyAncientSegments: true}
	applyOpts(req, opts)
	resp, err := client.Upgrade(req)
	if err != nil {
		return nil, err
	}
	return resp, r.checkShardFailures(resp)
}

// GetAlias looks up an alias.
func (r *Runner) GetAlias(alias string, opts ...func(*engine.GetAliasesRequest)) (*engine.GetAliasesResponse, error) {
	client, err := r.Client()
	if err != nil {
		return nil, err
	}
	req := &engine.GetAliasesRequest{Alias: alias}
	applyOpts(req, opts)
	return client.GetAliases(req)
}

// UpdateAlias adds and removes indices behind one alias.
func (r *Runner) UpdateAlias(alias string, addedIndices, deletedIndices []string) (*engine.AcknowledgedResponse, error) {
	return r.UpdateAliases(func(req *engine.UpdateAliasesRequest) *engine.UpdateAliasesRequest {
		if len(addedIndices) > 0 {
			req.Add = append(req.Add, engine.AliasAction{Alias: alias, Indices: addedIndices})
		}
		if len(deletedIndices) > 0 {
			req.Remove = append(req.Remove, engine.AliasAction{Alias: alias, Indices: deletedIndices})
		}
		return req
	})
}

// UpdateAliases applies alias changes built by the option function.
func (r *Runner) UpdateAliases(opt func(*engine.UpdateAliasesRequest) *engine.UpdateAliasesRequest) (*engine.AcknowledgedResponse, error) {
	client, err := r.Client()
	if err != nil {
		return nil, err
	}
	req := &engine.UpdateAliasesRequest{}
	if opt != nil {
		req = opt(req)
	}
	resp, err := client.UpdateAliases(req)
	if err != nil {
		return nil, err
	}
	if !resp.IsAcknowledged() {
		if err := r.onFailure("failed to update aliases", resp); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

func (r *Runner) checkShardFailures(resp *engine.BroadcastResponse) error {
	if len(resp.ShardFailures) == 0 {
		return nil
	}
	return r.onFailure(strings.Join(resp.ShardFailures, "\n"), resp)
}

func applyOpts[T any](req *T, opts []func(*T)) {
	for _, opt := range opts {
		if opt != nil {
			opt(req)
		}
	}
}

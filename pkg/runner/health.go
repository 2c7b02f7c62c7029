package runner

import (
	"time"

	"github.com/clusterrunner/clusterrunner/pkg/engine"
)

// healthTimeout bounds a blocking cluster-health request.
const healthTimeout = 30 * time.Second

// EnsureGreen blocks until the cluster reaches green status with no
// relocating shards, scoped to the given indices (none means the whole
// cluster). A timeout is routed through the print-on-failure policy:
// lenient callers get the last known status back, strict callers get an
// OperationError carrying the health response.
func (r *Runner) EnsureGreen(indices ...string) (engine.HealthStatus, error) {
	return r.waitForHealth("ensureGreen", engine.HealthGreen, indices)
}

// EnsureYellow blocks until the cluster reaches at least yellow status
// with no relocating shards.
func (r *Runner) EnsureYellow(indices ...string) (engine.HealthStatus, error) {
	return r.waitForHealth("ensureYellow", engine.HealthYellow, indices)
}

// WaitForRelocation blocks until no shards are relocating.
func (r *Runner) WaitForRelocation() (engine.HealthStatus, error) {
	return r.waitForHealth("waitForRelocation", "", nil)
}

func (r *Runner) waitForHealth(operation string, status engine.HealthStatus, indices []string) (engine.HealthStatus, error) {
	client, err := r.Client()
	if err != nil {
		return "", err
	}
	resp, err := client.Health(&engine.ClusterHealthRequest{
		Indices:                   indices,
		WaitForStatus:             status,
		WaitForNoRelocatingShards: true,
		Timeout:                   healthTimeout,
	})
	if err != nil {
		return "", err
	}
	if resp.TimedOut {
		if err := r.onFailure(operation+" timed out, cluster state:\n"+r.describeCluster(client), resp); err != nil {
			return resp.Status, err
		}
	}
	return resp.Status, nil
}

// describeCluster composes the diagnostic emitted on a health timeout:
// the current cluster state plus pending tasks.
func (r *Runner) describeCluster(client engine.Client) string {
	description := ""
	if state, err := client.State(); err == nil {
		description += state.String()
	}
	if tasks, err := client.PendingTasks(); err == nil {
		description += "\n" + tasks.String()
	}
	return description
}

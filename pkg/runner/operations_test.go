package runner_test

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/clusterrunner/clusterrunner/pkg/engine"
	"github.com/clusterrunner/clusterrunner/pkg/logger"
	"github.com/clusterrunner/clusterrunner/pkg/runner"
)

func buildSingleNode(t *testing.T, extraArgs ...string) *runner.Runner {
	t.Helper()
	basePort := reservePortRange(t)
	r := newRunner(t)
	r.SetMaxHTTPPort(basePort + 99)
	args := append([]string{
		"--basePath", t.TempDir(),
		"--numOfNode", "1",
		"--baseHttpPort", strconv.Itoa(basePort),
		"--clusterName", clusterName(t),
	}, extraArgs...)
	if err := r.Build(args); err != nil {
		t.Fatalf("failed to build cluster: %v", err)
	}
	t.Cleanup(func() {
		r.Close()
		r.Clean()
	})
	return r
}

func TestOperations_IndexLifecycle(t *testing.T) {
	r := buildSingleNode(t)

	resp, err := r.CreateIndex("books")
	if err != nil {
		t.Fatalf("create index failed: %v", err)
	}
	if !resp.IsAcknowledged() {
		t.Error("create index not acknowledged")
	}

	exists, err := r.IndexExists("books")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("index should exist after create")
	}

	if _, err := r.CreateMapping("books", `{"properties":{"title":{"type":"text"}}}`); err != nil {
		t.Errorf("put mapping failed: %v", err)
	}

	if _, err := r.CloseIndex("books"); err != nil {
		t.Errorf("close index failed: %v", err)
	}
	if _, err := r.OpenIndex("books"); err != nil {
		t.Errorf("open index failed: %v", err)
	}

	if _, err := r.DeleteIndex("books"); err != nil {
		t.Errorf("delete index failed: %v", err)
	}
	exists, err = r.IndexExists("books")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("index should not exist after delete")
	}
}

func TestOperations_CreateIndexTwiceFails(t *testing.T) {
	r := buildSingleNode(t)

	if _, err := r.CreateIndex("dup"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateIndex("dup"); err == nil {
		t.Error("expected duplicate index creation to fail")
	}
}

func TestOperations_InsertAndSearch(t *testing.T) {
	r := buildSingleNode(t)

	if _, err := r.CreateIndex("docs"); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 3; i++ {
		id := strconv.Itoa(i)
		resp, err := r.Insert("docs", id, `{"n":`+id+`}`)
		if err != nil {
			t.Fatalf("insert %s failed: %v", id, err)
		}
		if resp.Result != engine.ResultCreated {
			t.Errorf("expected created for %s, got %s", id, resp.Result)
		}
	}

	count, err := r.Count("docs")
	if err != nil {
		t.Fatal(err)
	}
	if count.TotalHits != 3 {
		t.Errorf("expected 3 documents, got %d", count.TotalHits)
	}
	if len(count.Hits) != 0 {
		t.Errorf("count must not return hits, got %d", len(count.Hits))
	}

	all, err := r.Search("docs")
	if err != nil {
		t.Fatal(err)
	}
	if len(all.Hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(all.Hits))
	}
	// Insertion order is stable.
	if all.Hits[0].ID != "1" || all.Hits[2].ID != "3" {
		t.Errorf("unexpected hit order: %+v", all.Hits)
	}

	byID, err := r.Search("docs", func(req *engine.SearchRequest) {
		req.Query = map[string]interface{}{"ids": []string{"2"}}
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(byID.Hits) != 1 || byID.Hits[0].ID != "2" {
		t.Errorf("id query returned %+v", byID.Hits)
	}
}

func TestOperations_InsertDuplicateStrict(t *testing.T) {
	r := buildSingleNode(t)

	if _, err := r.Insert("strict", "1", `{}`); err != nil {
		t.Fatal(err)
	}

	resp, err := r.Insert("strict", "1", `{"v":2}`)
	if err == nil {
		t.Fatal("expected overwrite to fail the insert contract")
	}
	var opErr *runner.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T: %v", err, err)
	}
	if resp == nil || resp.Result != engine.ResultUpdated {
		t.Errorf("expected updated result alongside the error, got %+v", resp)
	}
}

func TestOperations_InsertDuplicateLenient(t *testing.T) {
	var out bytes.Buffer
	basePort := reservePortRange(t)
	r := runner.New(
		runner.WithOutput(&out),
		runner.WithLogger(logger.CreateLoggerWithOutput("error", &out)),
	)
	r.SetMaxHTTPPort(basePort + 99)
	err := r.Build([]string{
		"--basePath", t.TempDir(),
		"--numOfNode", "1",
		"--baseHttpPort", strconv.Itoa(basePort),
		"--clusterName", clusterName(t),
		"--printOnFailure",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		r.Close()
		r.Clean()
	}()

	if _, err := r.Insert("lenient", "1", `{}`); err != nil {
		t.Fatal(err)
	}
	resp, err := r.Insert("lenient", "1", `{"v":2}`)
	if err != nil {
		t.Errorf("lenient mode must not raise, got %v", err)
	}
	if resp.Result != engine.ResultUpdated {
		t.Errorf("expected updated, got %s", resp.Result)
	}
	if !strings.Contains(out.String(), "failed to insert 1 into lenient") {
		t.Errorf("expected printed failure, output: %q", out.String())
	}
}

func TestOperations_DeleteMissingStrict(t *testing.T) {
	r := buildSingleNode(t)

	if _, err := r.Insert("del", "1", `{}`); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Delete("del", "1"); err != nil {
		t.Errorf("delete of existing doc failed: %v", err)
	}

	resp, err := r.Delete("del", "1")
	if err == nil {
		t.Fatal("expected delete of missing doc to fail")
	}
	var opErr *runner.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T: %v", err, err)
	}
	if resp == nil || resp.Result != engine.ResultNotFound {
		t.Errorf("expected not_found alongside the error, got %+v", resp)
	}
}

func TestOperations_BroadcastOps(t *testing.T) {
	r := buildSingleNode(t)

	if _, err := r.Insert("bcast", "1", `{}`); err != nil {
		t.Fatal(err)
	}

	for name, op := range map[string]func() (*engine.BroadcastResponse, error){
		"flush":      func() (*engine.BroadcastResponse, error) { return r.Flush() },
		"refresh":    func() (*engine.BroadcastResponse, error) { return r.Refresh() },
		"forcemerge": func() (*engine.BroadcastResponse, error) { return r.ForceMerge() },
		"upgrade":    func() (*engine.BroadcastResponse, error) { return r.Upgrade() },
	} {
		resp, err := op()
		if err != nil {
			t.Errorf("%s failed: %v", name, err)
			continue
		}
		if len(resp.ShardFailures) != 0 {
			t.Errorf("%s reported shard failures: %+v", name, resp.ShardFailures)
		}
	}
}

func TestOperations_Aliases(t *testing.T) {
	r := buildSingleNode(t)

	if _, err := r.CreateIndex("logs-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateIndex("logs-2"); err != nil {
		t.Fatal(err)
	}

	if _, err := r.UpdateAlias("logs", []string{"logs-1", "logs-2"}, nil); err != nil {
		t.Fatalf("alias update failed: %v", err)
	}

	aliases, err := r.GetAlias("logs")
	if err != nil {
		t.Fatal(err)
	}
	if len(aliases.Aliases) != 2 {
		t.Errorf("expected alias on 2 indices, got %+v", aliases.Aliases)
	}

	if _, err := r.UpdateAlias("logs", nil, []string{"logs-1"}); err != nil {
		t.Fatal(err)
	}
	aliases, err = r.GetAlias("logs")
	if err != nil {
		t.Fatal(err)
	}
	if len(aliases.Aliases) != 1 {
		t.Errorf("expected alias on 1 index after removal, got %+v", aliases.Aliases)
	}
}

func TestOperations_Service(t *testing.T) {
	r := buildSingleNode(t)

	svc, err := r.Service("cluster-service")
	if err != nil {
		t.Fatalf("service lookup failed: %v", err)
	}
	if svc == nil {
		t.Fatal("expected a cluster service instance")
	}

	if _, err := r.Service("no-such-service"); err == nil {
		t.Error("expected unknown service lookup to fail")
	}
}

func TestOperations_SearchDefaultSize(t *testing.T) {
	r := buildSingleNode(t)

	for i := 0; i < 15; i++ {
		id := strconv.Itoa(i)
		if _, err := r.Insert("many", id, `{}`); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := r.Search("many")
	if err != nil {
		t.Fatal(err)
	}
	if resp.TotalHits != 15 {
		t.Errorf("expected total 15, got %d", resp.TotalHits)
	}
	if len(resp.Hits) != 10 {
		t.Errorf("expected default page of 10 hits, got %d", len(resp.Hits))
	}
}

func TestHealth_MissingIndexTimesOutStrict(t *testing.T) {
	r := buildSingleNode(t)

	_, err := r.EnsureGreen("missing-index")
	if err == nil {
		t.Fatal("expected health wait on a missing index to fail")
	}
	var opErr *runner.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T: %v", err, err)
	}
	if !strings.Contains(opErr.Message, "timed out") {
		t.Errorf("expected timeout message, got %q", opErr.Message)
	}
}

func TestHealth_ClosedIndexIsYellow(t *testing.T) {
	r := buildSingleNode(t)

	if _, err := r.CreateIndex("cold"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CloseIndex("cold"); err != nil {
		t.Fatal(err)
	}

	status, err := r.EnsureYellow("cold")
	if err != nil {
		t.Fatalf("yellow wait failed: %v", err)
	}
	if status != engine.HealthYellow {
		t.Errorf("expected yellow for a closed index, got %s", status)
	}
}

func TestHealth_ClosedIndexFailsGreenStrict(t *testing.T) {
	r := buildSingleNode(t)

	if _, err := r.CreateIndex("cold"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CloseIndex("cold"); err != nil {
		t.Fatal(err)
	}

	status, err := r.EnsureGreen("cold")
	if err == nil {
		t.Fatal("expected green wait on a closed index to fail")
	}
	var opErr *runner.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T: %v", err, err)
	}
	if !strings.Contains(opErr.Message, "timed out") {
		t.Errorf("expected timeout message, got %q", opErr.Message)
	}
	if status != engine.HealthYellow {
		t.Errorf("expected the achieved yellow status alongside the error, got %s", status)
	}
}

func TestOperations_DeleteMissingLenient(t *testing.T) {
	var out bytes.Buffer
	basePort := reservePortRange(t)
	r := runner.New(
		runner.WithOutput(&out),
		runner.WithLogger(logger.CreateLoggerWithOutput("error", &out)),
	)
	r.SetMaxHTTPPort(basePort + 99)
	err := r.Build([]string{
		"--basePath", t.TempDir(),
		"--numOfNode", "1",
		"--baseHttpPort", strconv.Itoa(basePort),
		"--clusterName", clusterName(t),
		"--printOnFailure",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		r.Close()
		r.Clean()
	}()

	if _, err := r.Insert("lenient-del", "1", `{}`); err != nil {
		t.Fatal(err)
	}

	resp, err := r.Delete("lenient-del", "missing")
	if err != nil {
		t.Errorf("lenient mode must not raise, got %v", err)
	}
	if resp == nil || resp.Result != engine.ResultNotFound {
		t.Errorf("expected not_found, got %+v", resp)
	}
	if !strings.Contains(out.String(), "failed to delete missing from lenient-del") {
		t.Errorf("expected printed failure, output: %q", out.String())
	}
}

func TestConfig_UseLoggerRoutesOutput(t *testing.T) {
	var out bytes.Buffer
	basePort := reservePortRange(t)
	r := runner.New(
		runner.WithOutput(&out),
		runner.WithLogger(logger.CreateLoggerWithOutput("info", &out)),
	)
	r.SetMaxHTTPPort(basePort + 99)
	err := r.Build([]string{
		"--basePath", t.TempDir(),
		"--numOfNode", "1",
		"--baseHttpPort", strconv.Itoa(basePort),
		"--clusterName", clusterName(t),
		"--useLogger",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		r.Close()
		r.Clean()
	}()

	if !r.Config().UseLogger {
		t.Error("useLogger flag not applied")
	}
	if !strings.Contains(out.String(), "Node 1") {
		t.Errorf("expected node output through logger, got %q", out.String())
	}
}

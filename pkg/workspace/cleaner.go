package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	multierror "github.com/hashicorp/go-multierror"
)

var (
	exitCleanupMu sync.Mutex
	exitCleanup   []string
)

// Cleaner recursively deletes a cluster's base directory. Deletion
// failures are collected instead of aborting the walk; paths that survive
// deletion are retried once more on process exit.
type Cleaner struct{}

// NewCleaner creates a workspace cleaner.
func NewCleaner() *Cleaner {
	return &Cleaner{}
}

// Clean removes the tree rooted at basePath. Every file is deleted and
// checked afterwards; a file still present becomes a diagnostic, not an
// abort. Directories are removed after their children with the same
// post-condition check. Visitation failures abort the walk. All collected
// diagnostics are returned as one error. Cleaning a path that does not
// exist is a no-op.
func (c *Cleaner) Clean(basePath string) error {
	if !Exists(basePath) {
		return nil
	}

	var diags *multierror.Error
	if err := c.cleanDir(basePath, &diags); err != nil {
		return fmt.Errorf("failed to delete %s: %w", basePath, err)
	}
	return diags.ErrorOrNil()
}

func (c *Cleaner) cleanDir(dir string, diags **multierror.Error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := c.cleanDir(path, diags); err != nil {
				return err
			}
			continue
		}
		os.Remove(path)
		c.checkGone(path, diags)
	}
	os.Remove(dir)
	c.checkGone(dir, diags)
	return nil
}

func (c *Cleaner) checkGone(path string, diags **multierror.Error) {
	if !Exists(path) {
		return
	}
	*diags = multierror.Append(*diags, fmt.Errorf("failed to delete %s", path))
	markForExitCleanup(path)
}

func markForExitCleanup(path string) {
	exitCleanupMu.Lock()
	defer exitCleanupMu.Unlock()
	exitCleanup = append(exitCleanup, path)
}

// RunExitCleanup makes a best-effort pass over paths that could not be
// deleted earlier. The CLI invokes it as a shutdown handler.
func RunExitCleanup() {
	exitCleanupMu.Lock()
	paths := exitCleanup
	exitCleanup = nil
	exitCleanupMu.Unlock()

	for i := len(paths) - 1; i >= 0; i-- {
		os.RemoveAll(paths[i])
	}
}

package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func newLogsCmd() *cobra.Command {
	var basePath string
	var nodeName string
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show cluster logs",
		Long:  `Display engine logs for all nodes or a specific node under the cluster base path.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(basePath, nodeName, follow, lines)
		},
	}

	cmd.Flags().StringVar(&basePath, "basePath", "", "base path of the cluster")
	cmd.Flags().StringVar(&nodeName, "node", "", "show logs for a single node (e.g. Node 1)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of lines to show")
	cmd.MarkFlagRequired("basePath")

	return cmd
}

func runLogs(basePath, nodeName string, follow bool, lines int) error {
	logFiles, err := collectLogFiles(basePath, nodeName)
	if err != nil {
		return err
	}
	if len(logFiles) == 0 {
		printWarning("No log files found. Has the cluster written any logs yet?")
		return nil
	}

	for _, logFile := range logFiles {
		if err := displayLogFile(logFile, lines, follow && len(logFiles) == 1); err != nil {
			printError(fmt.Sprintf("Failed to display %s: %v", filepath.Base(logFile), err))
		}
	}

	if follow && len(logFiles) > 1 {
		printWarning("--follow requires a single node; use --node to pick one")
	}
	return nil
}

// collectLogFiles walks node_N/logs directories under the base path.
func collectLogFiles(basePath, nodeName string) ([]string, error) {
	entries, err := os.ReadDir(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read base path: %w", err)
	}

	var logFiles []string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "node_") {
			continue
		}
		logsDir := filepath.Join(basePath, entry.Name(), "logs")
		files, err := os.ReadDir(logsDir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".log" {
				continue
			}
			logFiles = append(logFiles, filepath.Join(logsDir, f.Name()))
		}
	}

	if nodeName != "" {
		ordinal := strings.TrimPrefix(nodeName, "Node ")
		wanted := "node_" + ordinal
		var filtered []string
		for _, f := range logFiles {
			if filepath.Base(filepath.Dir(filepath.Dir(f))) == wanted {
				filtered = append(filtered, f)
			}
		}
		if len(filtered) == 0 {
			return nil, fmt.Errorf("no logs found for node: %s", nodeName)
		}
		logFiles = filtered
	}

	return logFiles, nil
}

func displayLogFile(logFile string, lines int, follow bool) error {
	content, offset, err := readLastNLines(logFile, lines)
	if err != nil {
		return err
	}

	fmt.Printf("\n=== %s ===\n", logFile)
	fmt.Print(content)

	if follow {
		return followLogFile(logFile, offset)
	}
	return nil
}

// followLogFile streams appended lines until interrupted, re-reading
// from the last known offset whenever the file changes.
func followLogFile(logFile string, offset int64) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(logFile)); err != nil {
		return fmt.Errorf("failed to watch log directory: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-sigChan:
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != logFile || !event.Has(fsnotify.Write) {
				continue
			}
			n, err := dumpFrom(logFile, offset)
			if err != nil {
				return err
			}
			offset = n
		}
	}
}

func dumpFrom(logFile string, offset int64) (int64, error) {
	file, err := os.Open(logFile)
	if err != nil {
		return offset, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, err
	}
	// Truncation (log rotation) resets the read position.
	if info.Size() < offset {
		offset = 0
	}

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, err
	}
	n, err := io.Copy(os.Stdout, file)
	return offset + n, err
}

func readLastNLines(filename string, n int) (string, int64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	var allLines []string
	var size int64
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		allLines = append(allLines, line)
		size += int64(len(line)) + 1
	}
	if err := scanner.Err(); err != nil {
		return "", 0, err
	}
	if len(allLines) == 0 {
		return "", 0, nil
	}

	start := 0
	if len(allLines) > n {
		start = len(allLines) - n
	}

	return strings.Join(allLines[start:], "\n") + "\n", size, nil
}

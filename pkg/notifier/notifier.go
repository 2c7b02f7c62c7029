// Package notifier provides desktop notifications for cluster lifecycle events
package notifier

import (
	"fmt"
	"runtime"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/clusterrunner/clusterrunner/pkg/logger"
)

// ClusterNotifier sends desktop notifications when the cluster changes state.
type ClusterNotifier struct {
	enabled      bool
	successSound string
	failureSound string
	logger       logger.Logger
}

// Config represents notification configuration
type Config struct {
	Enabled      bool
	SuccessSound string
	FailureSound string
}

// New creates a new cluster notifier
func New(config Config, log logger.Logger) *ClusterNotifier {
	return &ClusterNotifier{
		enabled:      config.Enabled,
		successSound: config.SuccessSound,
		failureSound: config.FailureSound,
		logger:       log,
	}
}

// NotifyClusterStarting notifies that node startup has begun
func (n *ClusterNotifier) NotifyClusterStarting(clusterName string, numOfNode int) {
	if !n.enabled {
		return
	}

	title := "ClusterRunner"
	message := fmt.Sprintf("Starting %s (%d nodes)...", clusterName, numOfNode)

	n.sendNotification(title, message, "")
}

// NotifyClusterReady notifies that all nodes came up and health settled
func (n *ClusterNotifier) NotifyClusterReady(clusterName string, duration time.Duration) {
	if !n.enabled {
		return
	}

	title := "✅ Cluster Ready"
	message := fmt.Sprintf("%s up in %s", clusterName, formatDuration(duration))

	n.sendNotification(title, message, n.successSound)
}

// NotifyNodeFailure notifies that a node failed to start
func (n *ClusterNotifier) NotifyNodeFailure(nodeName string, err error) {
	if !n.enabled {
		return
	}

	title := "❌ Node Failed"
	message := fmt.Sprintf("%s: %v", nodeName, err)

	n.sendNotification(title, message, n.failureSound)
}

// NotifyClusterStopped notifies that the cluster shut down
func (n *ClusterNotifier) NotifyClusterStopped(clusterName string) {
	if !n.enabled {
		return
	}

	title := "ClusterRunner"
	message := fmt.Sprintf("%s stopped", clusterName)

	n.sendNotification(title, message, "")
}

// Private methods

func (n *ClusterNotifier) sendNotification(title, message, soundName string) {
	switch runtime.GOOS {
	case "darwin":
		n.sendWithSound(title, message, soundName)
	case "linux", "windows":
		n.send(title, message)
	default:
		// Fallback to console
		n.logger.Info(fmt.Sprintf("%s: %s", title, message))
	}
}

func (n *ClusterNotifier) sendWithSound(title, message, soundName string) {
	if err := beeep.Notify(title, message, ""); err != nil {
		n.logger.Debug("Failed to send notification", logger.WithField("error", err))
	}

	if soundName != "" {
		if err := beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration); err != nil {
			n.logger.Debug("Failed to play sound", logger.WithField("error", err))
		}
	}
}

func (n *ClusterNotifier) send(title, message string) {
	if err := beeep.Notify(title, message, ""); err != nil {
		n.logger.Debug("Failed to send notification", logger.WithField("error", err))
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

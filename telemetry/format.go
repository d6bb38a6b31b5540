package telemetry

import (
	"fmt"
	"io"
	"time"

	"github.com/budgetlog/logbook/output"
)

// slowThreshold marks operations highlighted in reports.
const slowThreshold = 100 * time.Millisecond

// formatTimingTree outputs the timing tree in a hierarchical format.
// Example output:
//
//	reconcile: 125ms
//	├─ retag: 85ms (1000 items)
//	│  └─ sort: 5ms
//	└─ persist: 40ms
func formatTimingTree(w io.Writer, root *timerNode, styles *output.Styles) {
	timing := formatDuration(root.end.Sub(root.start)) + formatCount(root)
	name := root.name
	if styles != nil {
		name = styles.Keyword(name)
	}
	_, _ = fmt.Fprintf(w, "%s: %s\n", name, timing)

	for i, child := range root.children {
		formatNode(w, child, "", i == len(root.children)-1, styles)
	}
}

// formatNode recursively formats a node and its children.
func formatNode(w io.Writer, node *timerNode, prefix string, isLast bool, styles *output.Styles) {
	duration := node.end.Sub(node.start)

	branch, extension := "├─ ", "│  "
	if isLast {
		branch, extension = "└─ ", "   "
	}

	timing := formatDuration(duration) + formatCount(node)
	tree := prefix + branch
	if styles != nil {
		tree = styles.Dim(tree)
		if duration >= slowThreshold {
			timing = styles.Warning(timing)
		} else {
			timing = styles.Dim(timing)
		}
	}
	_, _ = fmt.Fprintf(w, "%s%s: %s\n", tree, node.name, timing)

	for i, child := range node.children {
		formatNode(w, child, prefix+extension, i == len(node.children)-1, styles)
	}
}

// formatDuration formats a duration for display.
// Shows milliseconds for < 1s, seconds for >= 1s. A timer that never
// ended reports as running.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "running"
	}
	if d < time.Second {
		ms := float64(d) / float64(time.Millisecond)
		return fmt.Sprintf("%.0fms", ms)
	}
	s := float64(d) / float64(time.Second)
	return fmt.Sprintf("%.2fs", s)
}

func formatCount(n *timerNode) string {
	if !n.counted {
		return ""
	}
	if n.count == 1 {
		return " (1 item)"
	}
	return fmt.Sprintf(" (%d items)", n.count)
}

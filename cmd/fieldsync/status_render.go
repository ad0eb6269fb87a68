package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"fieldsync/internal/ipc"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 16
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// syncStatusLines renders the daemon's sync snapshot.
func syncStatusLines(resp *ipc.StatusResponse, now time.Time, colorize bool) []string {
	lines := make([]string, 0, 6)
	lines = append(lines, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", resp.PID), colorize))
	lines = append(lines, connectivityLine(resp.Connectivity, colorize))

	switch {
	case resp.SyncActive:
		lines = append(lines, renderStatusLine("Sync", statusInfo, "Run in progress", colorize))
	case resp.LastSyncTime == nil:
		lines = append(lines, renderStatusLine("Sync", statusInfo, "Never synced", colorize))
	default:
		ago := now.Sub(*resp.LastSyncTime).Truncate(time.Second)
		lines = append(lines, renderStatusLine("Sync", statusOK, fmt.Sprintf("Last run %s ago (%s)", ago, resp.LastRunID), colorize))
	}

	pendingKind := statusOK
	if resp.PendingCount > 0 {
		pendingKind = statusInfo
	}
	lines = append(lines, renderStatusLine("Pending", pendingKind, fmt.Sprintf("%d", resp.PendingCount), colorize))
	if resp.AbandonedCount > 0 {
		lines = append(lines, renderStatusLine("Abandoned", statusWarn,
			fmt.Sprintf("%d (inspect with 'fieldsync queue list -s abandoned')", resp.AbandonedCount), colorize))
	}
	if msg := strings.TrimSpace(resp.LastError); msg != "" {
		lines = append(lines, renderStatusLine("Last error", statusError, msg, colorize))
	}
	return lines
}

func connectivityLine(class string, colorize bool) string {
	switch class {
	case "wifi", "ethernet":
		return renderStatusLine("Network", statusOK, class, colorize)
	case "cellular":
		return renderStatusLine("Network", statusWarn, "cellular (metered)", colorize)
	default:
		return renderStatusLine("Network", statusWarn, "offline", colorize)
	}
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fieldsync/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, connectivity and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Sync Status", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, line := range syncStatusLines(resp, time.Now(), colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out)

				for _, line := range renderSectionHeader("Storage", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Queue DB", statusInfo, resp.QueueDBPath, colorize))
				fmt.Fprintln(out, renderStatusLine("Records DB", statusInfo, resp.RecordsDBPath, colorize))
				freeKind := statusOK
				if resp.FreeBytes < 64<<20 {
					freeKind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine("Free space", freeKind, formatBytes(resp.FreeBytes), colorize))
				fmt.Fprintln(out)

				for _, line := range renderSectionHeader("Queue Status", colorize) {
					fmt.Fprintln(out, line)
				}
				rows := buildQueueStatusRows(resp.QueueStats)
				if len(rows) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprint(out, renderTable([]string{"Status", "Count"}, rows,
					[]columnAlignment{alignLeft, alignRight}, colorize))
				return nil
			})
		},
	}
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

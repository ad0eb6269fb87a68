package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fieldsync/internal/ipc"
	"fieldsync/internal/syncer"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Drain the queue now",
		Long: "Run the sync orchestrator now, or wait for the run already in progress.\n" +
			"Without --force the run is refused on cellular (unless allowed) and offline.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Sync(force)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp.Result)
				}
				printSyncResult(cmd, resp.Result)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Run regardless of the connectivity policy")
	return cmd
}

func printSyncResult(cmd *cobra.Command, result syncer.Result) {
	out := cmd.OutOrStdout()
	if result.Claimed() == 0 {
		fmt.Fprintln(out, "Nothing to sync")
		return
	}
	fmt.Fprintf(out, "Run %s: %d items in %s\n", result.RunID, result.Claimed(),
		result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	dispositions := []syncer.Disposition{
		syncer.DispositionCompleted,
		syncer.DispositionRequeued,
		syncer.DispositionRescheduled,
		syncer.DispositionDeferred,
		syncer.DispositionAbandoned,
		syncer.DispositionLost,
		syncer.DispositionInterrupted,
	}
	rows := make([][]string, 0, len(dispositions))
	for _, d := range dispositions {
		if n := result.Count(d); n > 0 {
			rows = append(rows, []string{formatStatusLabel(string(d)), fmt.Sprintf("%d", n)})
		}
	}
	if len(rows) > 0 {
		fmt.Fprint(out, renderTable([]string{"Outcome", "Items"}, rows,
			[]columnAlignment{alignLeft, alignRight}, shouldColorize(out)))
	}
	if result.Unprocessed > 0 {
		fmt.Fprintf(out, "%d claimed items were left for the next run\n", result.Unprocessed)
	}
}

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <session|phase|frames|setup-config> <entity-id> <create|update|delete>",
		Short: "Queue a mutation without touching local records",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Enqueue(args[0], strings.TrimSpace(args[1]), args[2])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				verb := "Queued"
				switch {
				case resp.Superseded:
					verb = "Marked in-flight item superseded by"
				case resp.Coalesced:
					verb = "Coalesced into"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s %s %s)\n", verb, resp.Item.ID,
					resp.Item.Operation, formatStatusLabel(resp.Item.EntityType), resp.Item.EntityID)
				return nil
			})
		},
	}
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <bundle.yaml>",
		Short: "Import a YAML bundle of local records and queue them for upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// The daemon resolves the path, so send it absolute.
			path, err := filepath.Abs(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("resolve bundle path: %w", err)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Import(path)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp.Summary)
				}
				s := resp.Summary
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d sessions, %d setup configs, %d phases, %d frames\n",
					s.Sessions, s.SetupConfigs, s.Phases, s.Frames)
				return nil
			})
		},
	}
}

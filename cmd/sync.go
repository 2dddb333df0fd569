package cmd

import (
	"errors"
	"fmt"

	"github.com/jvega/inventa/internal/clientconfig"
	"github.com/jvega/inventa/internal/outbox"
	"github.com/jvega/inventa/internal/output"
	"github.com/jvega/inventa/internal/syncer"
	vercheck "github.com/jvega/inventa/internal/version"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Synchronize with the server",
	GroupID: "sync",
	Long: `Pushes local dirty records, drains the delivery queue, and pulls remote
changes. Use --push or --pull to run only one direction.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		showStatus, _ := cmd.Flags().GetBool("status")
		if showStatus {
			return syncStatus(cmd)
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		engine, err := newEngine(st)
		if err != nil {
			return err
		}

		if retry, _ := cmd.Flags().GetBool("retry-failed"); retry {
			n, err := outbox.New(st.Conn()).ResetFailed()
			if err != nil {
				output.Error("reset failed tasks: %v", err)
				return err
			}
			if n > 0 {
				output.Info("Requeued %d failed delivery task(s).", n)
			}
		}

		pushOnly, _ := cmd.Flags().GetBool("push")
		pullOnly, _ := cmd.Flags().GetBool("pull")

		var res *syncer.Result
		switch {
		case pushOnly && pullOnly:
			output.Error("--push and --pull are mutually exclusive")
			return fmt.Errorf("--push and --pull are mutually exclusive")
		case pushOnly:
			res, err = engine.PushOnly()
		case pullOnly:
			res, err = engine.PullOnly()
		default:
			res, err = engine.Sync()
		}
		if err != nil {
			if errors.Is(err, syncer.ErrSyncInProgress) {
				output.Warning("a sync is already running")
				return nil
			}
			if errors.Is(err, syncer.ErrAuthCooldown) {
				output.Warning("authentication recently failed; check your API key and retry shortly")
				return nil
			}
			output.Error("sync: %v", err)
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return output.JSON(res)
		}
		printSyncResult(res)

		if upd := vercheck.CheckCached(version); upd != nil {
			output.Info("A newer version is available: %s (current %s)", upd.LatestVersion, upd.CurrentVersion)
		}
		return nil
	},
}

func printSyncResult(res *syncer.Result) {
	if res.Pushed == 0 && res.Pulled == 0 && res.OutboxDone == 0 && res.OutboxFailed == 0 {
		output.Info("Already up to date.")
		return
	}
	if res.Pushed > 0 {
		line := fmt.Sprintf("Pushed %d record(s): %d applied", res.Pushed, res.Applied)
		if res.Rejected > 0 {
			line += fmt.Sprintf(", %d rejected", res.Rejected)
		}
		output.Info("%s", line)
	}
	if res.OutboxDone > 0 {
		output.Info("Delivered %d queued task(s)", res.OutboxDone)
	}
	if res.OutboxFailed > 0 {
		output.Warning("%d delivery task(s) failed; see 'inventa sync --status'", res.OutboxFailed)
	}
	if res.Pulled > 0 {
		output.Info("Pulled %d record(s): %d merged, %d skipped", res.Pulled, res.Merged, res.Skipped)
	}
	output.Success("Sync complete.")
}

// syncStatus reports local sync state and, when reachable, server counts.
func syncStatus(cmd *cobra.Command) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	businessID := activeBusinessID()
	dirty, err := st.DirtyCount(businessID)
	if err != nil {
		output.Error("%v", err)
		return err
	}
	lastPulled, err := st.LastPulledAt(businessID)
	if err != nil {
		output.Error("%v", err)
		return err
	}
	queueCounts, err := outbox.New(st.Conn()).Counts()
	if err != nil {
		output.Error("%v", err)
		return err
	}

	status := map[string]any{
		"dirty":      dirty,
		"lastPulled": lastPulled,
		"queue":      queueCounts,
		"loggedIn":   clientconfig.IsAuthenticated(),
	}

	var serverCounts map[string]int64
	if clientconfig.IsAuthenticated() {
		client, err := newSyncClient()
		if err == nil {
			if resp, err := client.Status(); err == nil {
				serverCounts = resp.Counts
				status["server"] = resp.Counts
			}
		}
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return output.JSON(status)
	}

	output.Info("Pending push: %d record(s)", dirty)
	output.Info("Last pull:    %s", output.FormatTimestamp(lastPulled))
	if n := queueCounts[outbox.StatePending] + queueCounts[outbox.StateInFlight]; n > 0 {
		output.Info("Queued deliveries: %d", n)
	}
	if n := queueCounts[outbox.StateFailed]; n > 0 {
		output.Warning("Failed deliveries: %d (requeue with 'inventa sync --retry-failed')", n)
	}
	if serverCounts != nil {
		output.Info("Server records:")
		for _, et := range []string{"clients", "products", "sessions", "counted_items"} {
			output.Info("  %-14s %d", et, serverCounts[et])
		}
	} else if !clientconfig.IsAuthenticated() {
		output.Info("Not logged in; server status unavailable.")
	}
	return nil
}

func init() {
	syncCmd.Flags().Bool("push", false, "Push local changes only")
	syncCmd.Flags().Bool("pull", false, "Pull remote changes only")
	syncCmd.Flags().Bool("status", false, "Show sync status instead of syncing")
	syncCmd.Flags().Bool("retry-failed", false, "Requeue failed delivery tasks before syncing")
	syncCmd.Flags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(syncCmd)
}

package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jvega/inventa/internal/clientconfig"
	"github.com/jvega/inventa/internal/output"
	"github.com/jvega/inventa/internal/syncer"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Sync continuously in the foreground",
	GroupID: "sync",
	Long: `Runs the sync loop until interrupted. The server is probed periodically
and a sync is triggered as soon as the connection comes back.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		engine, err := newEngine(st)
		if err != nil {
			return err
		}
		client, err := newSyncClient()
		if err != nil {
			return err
		}

		runner := syncer.NewRunner(engine, clientconfig.GetSyncInterval())
		monitor := syncer.NewMonitor(client, runner, syncer.DefaultProbeInterval)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		output.Info("Watching for changes; press Ctrl-C to stop.")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			monitor.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			runner.Run(ctx)
		}()
		wg.Wait()

		output.Info("Stopped.")
		return nil
	},
}

func init() {
	watchCmd.Flags().Bool("verbose", false, "Enable debug logging")

	rootCmd.AddCommand(watchCmd)
}

package cmd

import (
	"fmt"

	"github.com/jvega/inventa/internal/models"
	"github.com/jvega/inventa/internal/outbox"
	"github.com/jvega/inventa/internal/output"
	"github.com/spf13/cobra"
)

var requestCmd = &cobra.Command{
	Use:     "request",
	Short:   "Manage connection requests",
	GroupID: "sync",
	Long: `Connection requests let another device deliver counted items into this
business. Create a request here, share its id, and the counting device
passes it to 'inventa count --capture' or 'inventa request deliver'.`,
}

var requestNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Open a connection request",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newSyncClient()
		if err != nil {
			return err
		}
		resp, err := client.CreateRequest()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Opened request %s", resp.ID)
		output.Info("Share this id with the counting device.")
		return nil
	},
}

var requestDeliverCmd = &cobra.Command{
	Use:   "deliver [request-id] [session]",
	Short: "Queue a session's counted items for delivery",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		session, err := resolveRecord(st, models.EntitySessions, activeBusinessID(), args[1])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		items, err := sessionItems(st, activeBusinessID(), session.ExternalID)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if len(items) == 0 {
			output.Error("session %s has no counted items", output.ShortID(session.ExternalID))
			return fmt.Errorf("session has no counted items")
		}

		ids := make([]string, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.rec.ExternalID)
		}
		payload := outbox.DeliverItemsPayload{
			RequestID: args[0],
			SessionID: session.ExternalID,
			ItemIDs:   ids,
		}
		if _, err := outbox.New(st.Conn()).Enqueue(outbox.KindDeliverCapturedItems, payload); err != nil {
			output.Error("queue delivery: %v", err)
			return err
		}
		output.Success("Queued %d item(s) for delivery to request %s.", len(ids), args[0])
		output.Info("They will be sent on the next sync.")
		return nil
	},
}

func init() {
	requestCmd.AddCommand(requestNewCmd, requestDeliverCmd)
	rootCmd.AddCommand(requestCmd)
}

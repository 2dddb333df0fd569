package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jvega/inventa/internal/models"
	"github.com/jvega/inventa/internal/output"
	"github.com/jvega/inventa/internal/store"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"sessions"},
	Short:   "Manage counting sessions",
	GroupID: "counting",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a counting session",
	Long: `Starts a new inventory counting session. The session number is assigned
by the server on first sync; until then the session is identified by its id.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		payload := models.SessionPayload{
			Date:  time.Now().Format(time.RFC3339),
			State: models.SessionInProgress,
		}
		if ref, _ := cmd.Flags().GetString("client"); ref != "" {
			client, err := resolveRecord(st, models.EntityClients, activeBusinessID(), ref)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			payload.ClientExternalID = client.ExternalID
		}

		rec, err := st.Create(models.EntitySessions, activeBusinessID(), payload)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Started session %s", output.ShortID(rec.ExternalID))
		output.Info("Count products with 'inventa count %s PRODUCT QTY'.", output.ShortID(rec.ExternalID))
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List counting sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := st.Query(models.EntitySessions, activeBusinessID())
		if err != nil {
			output.Error("%v", err)
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return output.JSON(records)
		}
		if len(records) == 0 {
			output.Info("No sessions yet. Start one with 'inventa session start'.")
			return nil
		}
		for _, rec := range records {
			var p models.SessionPayload
			if err := json.Unmarshal(rec.Payload, &p); err != nil {
				output.Warning("skipping %s: %v", rec.ExternalID, err)
				continue
			}
			fmt.Println(output.FormatSessionShort(rec, p))
		}
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a session and its counted items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := resolveRecord(st, models.EntitySessions, activeBusinessID(), args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		var p models.SessionPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			output.Error("corrupt payload: %v", err)
			return err
		}
		fmt.Println(output.SessionHeader(*rec, p))

		items, err := sessionItems(st, activeBusinessID(), rec.ExternalID)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		for _, it := range items {
			fmt.Println(output.FormatCountedItemShort(it.rec, it.payload))
		}
		return nil
	},
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close [id]",
	Short: "Complete a session and compute its totals",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return finishSession(args[0], models.SessionCompleted)
	},
}

var sessionCancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return finishSession(args[0], models.SessionCancelled)
	},
}

type sessionItem struct {
	rec     models.Record
	payload models.CountedItemPayload
}

// sessionItems returns the counted items that belong to one session.
func sessionItems(st *store.Store, businessID, sessionID string) ([]sessionItem, error) {
	records, err := st.Query(models.EntityCountedItems, businessID)
	if err != nil {
		return nil, err
	}
	var items []sessionItem
	for _, rec := range records {
		var p models.CountedItemPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			continue
		}
		if p.SessionExternalID == sessionID {
			items = append(items, sessionItem{rec: rec, payload: p})
		}
	}
	return items, nil
}

// finishSession transitions a session into a terminal state. Closing computes
// totals and the accounting summary from the counted items.
func finishSession(ref string, state models.SessionState) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := resolveRecord(st, models.EntitySessions, activeBusinessID(), ref)
	if err != nil {
		output.Error("%v", err)
		return err
	}
	var p models.SessionPayload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		output.Error("corrupt payload: %v", err)
		return err
	}
	if p.State == models.SessionCompleted || p.State == models.SessionCancelled {
		output.Error("session is already %s", p.State)
		return fmt.Errorf("session is already %s", p.State)
	}

	p.State = state
	if state == models.SessionCompleted {
		items, err := sessionItems(st, activeBusinessID(), rec.ExternalID)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		var totalValue, totalCost float64
		for _, it := range items {
			totalValue += it.payload.TotalValue
			totalCost += it.payload.Cost * it.payload.Quantity
		}
		p.Totals = models.SessionTotals{
			ProductsCounted: len(items),
			TotalValue:      totalValue,
		}
		p.Financials = models.SessionFinancials{
			InventoryValue: totalValue,
			EstimatedCost:  totalCost,
		}
	}

	if err := st.Update(models.EntitySessions, rec.ExternalID, p); err != nil {
		output.Error("%v", err)
		return err
	}
	if state == models.SessionCompleted {
		output.Success("Closed session %s: %d products, %s",
			output.ShortID(rec.ExternalID), p.Totals.ProductsCounted, output.FormatMoney(p.Totals.TotalValue))
	} else {
		output.Success("Cancelled session %s", output.ShortID(rec.ExternalID))
	}
	return nil
}

func init() {
	sessionStartCmd.Flags().String("client", "", "Client this count is for")
	sessionListCmd.Flags().Bool("json", false, "Output as JSON")

	sessionCmd.AddCommand(sessionStartCmd, sessionListCmd, sessionShowCmd, sessionCloseCmd, sessionCancelCmd)
	rootCmd.AddCommand(sessionCmd)
}

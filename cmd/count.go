package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jvega/inventa/internal/models"
	"github.com/jvega/inventa/internal/outbox"
	"github.com/jvega/inventa/internal/output"
	"github.com/jvega/inventa/internal/store"
	"github.com/spf13/cobra"
)

var countCmd = &cobra.Command{
	Use:     "count [session] [product] [quantity]",
	Short:   "Count a product into a session",
	GroupID: "counting",
	Long: `Records a counted quantity of a product inside a counting session.
The product can be referenced by id prefix, barcode, SKU, or exact name.

With --capture, the item is also queued for delivery to the business that
issued the given connection request. Delivery happens on the next sync.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		qty, err := strconv.ParseFloat(args[2], 64)
		if err != nil || qty < 0 {
			output.Error("invalid quantity %q", args[2])
			return fmt.Errorf("invalid quantity %q", args[2])
		}

		session, err := resolveRecord(st, models.EntitySessions, activeBusinessID(), args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		var sp models.SessionPayload
		if err := json.Unmarshal(session.Payload, &sp); err != nil {
			output.Error("corrupt session payload: %v", err)
			return err
		}
		if sp.State == models.SessionCompleted || sp.State == models.SessionCancelled {
			output.Error("session is %s", sp.State)
			return fmt.Errorf("session is %s", sp.State)
		}

		product, pp, err := findProduct(st, activeBusinessID(), args[1])
		if err != nil {
			output.Error("%v", err)
			return err
		}

		note, _ := cmd.Flags().GetString("note")
		payload := models.CountedItemPayload{
			SessionExternalID: session.ExternalID,
			ProductExternalID: product.ExternalID,
			ProductName:       pp.Name,
			Unit:              pp.Unit,
			SKU:               pp.SKU,
			Cost:              pp.Cost,
			Quantity:          qty,
			TotalValue:        pp.Cost * qty,
			Notes:             note,
		}
		requestID, _ := cmd.Flags().GetString("capture")

		if requestID == "" {
			if _, err := st.Create(models.EntityCountedItems, activeBusinessID(), payload); err != nil {
				output.Error("%v", err)
				return err
			}
			output.Success("Counted %s x%s (%s)",
				pp.Name, output.FormatQuantity(qty), output.FormatMoney(payload.TotalValue))
			return nil
		}

		// The delivery task commits atomically with the item it refers to.
		tx, err := st.Conn().Begin()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer tx.Rollback()

		item, err := st.CreateTx(tx, models.EntityCountedItems, activeBusinessID(), payload)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		taskPayload := outbox.DeliverItemsPayload{
			RequestID: requestID,
			SessionID: session.ExternalID,
			ItemIDs:   []string{item.ExternalID},
		}
		if _, err := outbox.New(st.Conn()).EnqueueTx(tx, outbox.KindDeliverCapturedItems, taskPayload); err != nil {
			output.Error("queue delivery: %v", err)
			return err
		}
		if err := tx.Commit(); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Counted %s x%s (%s)",
			pp.Name, output.FormatQuantity(qty), output.FormatMoney(payload.TotalValue))
		output.Info("Queued for delivery to request %s on next sync.", requestID)
		return nil
	},
}

// findProduct resolves a product reference by id prefix, then by exact
// barcode, SKU, or name.
func findProduct(st *store.Store, businessID, ref string) (*models.Record, *models.ProductPayload, error) {
	if rec, err := resolveRecord(st, models.EntityProducts, businessID, ref); err == nil {
		var p models.ProductPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return nil, nil, fmt.Errorf("corrupt product payload: %w", err)
		}
		return rec, &p, nil
	}

	records, err := st.Query(models.EntityProducts, businessID)
	if err != nil {
		return nil, nil, err
	}
	for i, rec := range records {
		var p models.ProductPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			continue
		}
		if p.Barcode == ref || p.SKU == ref || strings.EqualFold(p.Name, ref) {
			return &records[i], &p, nil
		}
	}
	return nil, nil, fmt.Errorf("no product matching %q", ref)
}

func init() {
	countCmd.Flags().String("note", "", "Note attached to the counted item")
	countCmd.Flags().String("capture", "", "Connection request id to deliver this item to")

	rootCmd.AddCommand(countCmd)
}

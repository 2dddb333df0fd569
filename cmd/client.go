package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/jvega/inventa/internal/models"
	"github.com/jvega/inventa/internal/output"
	"github.com/spf13/cobra"
)

var clientCmd = &cobra.Command{
	Use:     "client",
	Aliases: []string{"clients"},
	Short:   "Manage business clients",
	GroupID: "inventory",
}

var clientAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add a client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		phone, _ := cmd.Flags().GetString("phone")
		address, _ := cmd.Flags().GetString("address")
		notes, _ := cmd.Flags().GetString("notes")

		payload := models.ClientPayload{
			Name:    args[0],
			Phone:   phone,
			Address: address,
			Notes:   notes,
		}
		rec, err := st.Create(models.EntityClients, activeBusinessID(), payload)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Added client %s (%s)", payload.Name, output.ShortID(rec.ExternalID))
		return nil
	},
}

var clientListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := st.Query(models.EntityClients, activeBusinessID())
		if err != nil {
			output.Error("%v", err)
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return output.JSON(records)
		}
		if len(records) == 0 {
			output.Info("No clients yet. Add one with 'inventa client add NAME'.")
			return nil
		}
		for _, rec := range records {
			var p models.ClientPayload
			if err := json.Unmarshal(rec.Payload, &p); err != nil {
				output.Warning("skipping %s: %v", rec.ExternalID, err)
				continue
			}
			fmt.Println(output.FormatClientShort(rec, p))
		}
		return nil
	},
}

var clientRmCmd = &cobra.Command{
	Use:     "rm [id]",
	Aliases: []string{"remove", "delete"},
	Short:   "Delete a client",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := resolveRecord(st, models.EntityClients, activeBusinessID(), args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if err := st.SoftDelete(models.EntityClients, rec.ExternalID); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Deleted client %s", output.ShortID(rec.ExternalID))
		return nil
	},
}

func init() {
	clientAddCmd.Flags().String("phone", "", "Phone number")
	clientAddCmd.Flags().String("address", "", "Street address")
	clientAddCmd.Flags().String("notes", "", "Free-form notes")
	clientListCmd.Flags().Bool("json", false, "Output as JSON")

	clientCmd.AddCommand(clientAddCmd, clientListCmd, clientRmCmd)
	rootCmd.AddCommand(clientCmd)
}

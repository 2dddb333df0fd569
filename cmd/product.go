package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jvega/inventa/internal/models"
	"github.com/jvega/inventa/internal/output"
	"github.com/spf13/cobra"
)

var productCmd = &cobra.Command{
	Use:     "product",
	Aliases: []string{"products"},
	Short:   "Manage the product catalog",
	GroupID: "inventory",
}

var productAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		sku, _ := cmd.Flags().GetString("sku")
		barcode, _ := cmd.Flags().GetString("barcode")
		cost, _ := cmd.Flags().GetFloat64("cost")
		price, _ := cmd.Flags().GetFloat64("price")
		stock, _ := cmd.Flags().GetFloat64("stock")
		category, _ := cmd.Flags().GetString("category")
		unit, _ := cmd.Flags().GetString("unit")

		payload := models.ProductPayload{
			Name:      args[0],
			SKU:       sku,
			Barcode:   barcode,
			Cost:      cost,
			SalePrice: price,
			Stock:     stock,
			Category:  category,
			Unit:      unit,
		}
		rec, err := st.Create(models.EntityProducts, activeBusinessID(), payload)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Added product %s (%s)", payload.Name, output.ShortID(rec.ExternalID))
		return nil
	},
}

var productListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List products",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := st.Query(models.EntityProducts, activeBusinessID())
		if err != nil {
			output.Error("%v", err)
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return output.JSON(records)
		}
		if len(records) == 0 {
			output.Info("No products yet. Add one with 'inventa product add NAME'.")
			return nil
		}
		filter, _ := cmd.Flags().GetString("category")
		for _, rec := range records {
			var p models.ProductPayload
			if err := json.Unmarshal(rec.Payload, &p); err != nil {
				output.Warning("skipping %s: %v", rec.ExternalID, err)
				continue
			}
			if filter != "" && !strings.EqualFold(p.Category, filter) {
				continue
			}
			fmt.Println(output.FormatProductShort(rec, p))
		}
		return nil
	},
}

var productRmCmd = &cobra.Command{
	Use:     "rm [id]",
	Aliases: []string{"remove", "delete"},
	Short:   "Delete a product",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := resolveRecord(st, models.EntityProducts, activeBusinessID(), args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if err := st.SoftDelete(models.EntityProducts, rec.ExternalID); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Deleted product %s", output.ShortID(rec.ExternalID))
		return nil
	},
}

var productSetCmd = &cobra.Command{
	Use:   "set [id]",
	Short: "Update product fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := resolveRecord(st, models.EntityProducts, activeBusinessID(), args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		var p models.ProductPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			output.Error("corrupt payload: %v", err)
			return err
		}

		if cmd.Flags().Changed("cost") {
			p.Cost, _ = cmd.Flags().GetFloat64("cost")
		}
		if cmd.Flags().Changed("price") {
			p.SalePrice, _ = cmd.Flags().GetFloat64("price")
		}
		if cmd.Flags().Changed("stock") {
			p.Stock, _ = cmd.Flags().GetFloat64("stock")
		}
		if cmd.Flags().Changed("sku") {
			p.SKU, _ = cmd.Flags().GetString("sku")
		}
		if cmd.Flags().Changed("name") {
			p.Name, _ = cmd.Flags().GetString("name")
		}

		if err := st.Update(models.EntityProducts, rec.ExternalID, p); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Updated product %s", output.ShortID(rec.ExternalID))
		return nil
	},
}

func init() {
	productAddCmd.Flags().String("sku", "", "Stock keeping unit, unique per business")
	productAddCmd.Flags().String("barcode", "", "Barcode")
	productAddCmd.Flags().Float64("cost", 0, "Unit cost")
	productAddCmd.Flags().Float64("price", 0, "Sale price")
	productAddCmd.Flags().Float64("stock", 0, "Current stock level")
	productAddCmd.Flags().String("category", "", "Category")
	productAddCmd.Flags().String("unit", "", "Unit of measure")

	productListCmd.Flags().Bool("json", false, "Output as JSON")
	productListCmd.Flags().String("category", "", "Filter by category")

	productSetCmd.Flags().String("name", "", "Product name")
	productSetCmd.Flags().String("sku", "", "Stock keeping unit")
	productSetCmd.Flags().Float64("cost", 0, "Unit cost")
	productSetCmd.Flags().Float64("price", 0, "Sale price")
	productSetCmd.Flags().Float64("stock", 0, "Current stock level")

	productCmd.AddCommand(productAddCmd, productListCmd, productRmCmd, productSetCmd)
	rootCmd.AddCommand(productCmd)
}

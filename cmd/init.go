package cmd

import (
	"fmt"

	"github.com/jvega/inventa/internal/clientconfig"
	"github.com/jvega/inventa/internal/output"
	"github.com/jvega/inventa/internal/store"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Initialize the local database",
	Long:    `Creates the .inventa directory and the local SQLite database in the current directory.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		if localDBExists() {
			output.Warning(".inventa/ already exists")
			return nil
		}

		st, err := store.Initialize(getBaseDir())
		if err != nil {
			output.Error("failed to initialize database: %v", err)
			return err
		}
		defer st.Close()

		fmt.Println("INITIALIZED .inventa/")

		deviceID, err := clientconfig.GetDeviceID()
		if err != nil {
			output.Warning("could not persist device id: %v", err)
			return nil
		}
		fmt.Printf("Device: %s\n", deviceID)
		if !clientconfig.IsAuthenticated() {
			output.Info("Run 'inventa login --server URL --key KEY' to enable sync.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

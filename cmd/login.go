package cmd

import (
	"errors"
	"fmt"

	"github.com/jvega/inventa/internal/clientconfig"
	"github.com/jvega/inventa/internal/output"
	"github.com/jvega/inventa/internal/store"
	"github.com/jvega/inventa/internal/syncclient"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	Short:   "Authenticate this device with a server",
	GroupID: "system",
	Long: `Verifies the API key against the server and saves the credentials for
future syncs. Records created before login are adopted into the business
the key belongs to.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		key, _ := cmd.Flags().GetString("key")
		if server == "" || key == "" {
			output.Error("both --server and --key are required")
			return fmt.Errorf("both --server and --key are required")
		}

		deviceID, err := clientconfig.GetDeviceID()
		if err != nil {
			output.Error("device id: %v", err)
			return err
		}

		client := syncclient.New(server, key, deviceID)
		status, err := client.Status()
		if err != nil {
			if errors.Is(err, syncclient.ErrUnauthorized) {
				output.Error("the server rejected this API key")
			} else {
				output.Error("cannot reach server: %v", err)
			}
			return err
		}

		creds := &clientconfig.AuthCredentials{
			APIKey:       key,
			BusinessID:   status.BusinessID,
			BusinessName: status.BusinessName,
			ServerURL:    server,
			DeviceID:     deviceID,
		}
		if err := clientconfig.SaveAuth(creds); err != nil {
			output.Error("save credentials: %v", err)
			return err
		}
		output.Success("Logged in as %s (%s)", status.BusinessName, status.BusinessID)

		// Re-home anything created before login so it syncs under the
		// real business.
		if localDBExists() {
			st, err := store.Open(getBaseDir())
			if err == nil {
				defer st.Close()
				if moved, err := st.AdoptBusiness(localBusinessID, status.BusinessID); err != nil {
					output.Warning("could not adopt local records: %v", err)
				} else if moved > 0 {
					output.Info("Adopted %d local record(s) into %s.", moved, status.BusinessName)
				}
			}
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	Short:   "Forget saved credentials",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := clientconfig.ClearAuth(); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Logged out. Local data is untouched.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	Short:   "Show the active login",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := clientconfig.LoadAuth()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if creds == nil || creds.APIKey == "" {
			output.Info("Not logged in.")
			return nil
		}
		output.Info("Business: %s (%s)", creds.BusinessName, creds.BusinessID)
		output.Info("Server:   %s", creds.ServerURL)
		output.Info("Device:   %s", creds.DeviceID)
		return nil
	},
}

func init() {
	loginCmd.Flags().String("server", "", "Server base URL, e.g. https://sync.example.com")
	loginCmd.Flags().String("key", "", "API key issued by the server")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jvega/inventa/internal/api"
	"github.com/jvega/inventa/internal/serverdb"
)

func runAdmin(args []string) {
	if len(args) == 0 {
		printAdminUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "create-business":
		runAdminCreateBusiness(args[1:])
	case "create-key":
		runAdminCreateKey(args[1:])
	case "cursors":
		runAdminCursors(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown admin command: %s\n", args[0])
		printAdminUsage()
		os.Exit(1)
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, `Usage: inventad admin <command> [flags]

Commands:
  create-business  Create a business tenant
  create-key       Issue an API key for a business
  cursors          Show per-device sync cursors for a business`)
}

func openDB(dbPath string) *serverdb.ServerDB {
	if dbPath == "" {
		cfg := api.LoadConfig()
		dbPath = cfg.ServerDBPath
	}
	store, err := serverdb.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open database: %v\n", err)
		os.Exit(1)
	}
	return store
}

func runAdminCreateBusiness(args []string) {
	fs := flag.NewFlagSet("admin create-business", flag.ExitOnError)
	name := fs.String("name", "", "business name")
	dbPath := fs.String("db", "", "path to inventad.db (default: from INVENTA_SERVER_DB_PATH or ./data/inventad.db)")
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "error: --name is required")
		fs.Usage()
		os.Exit(1)
	}

	store := openDB(*dbPath)
	defer store.Close()

	biz, err := store.CreateBusiness(*name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("created business %s (%s)\n", biz.Name, biz.ID)
}

func runAdminCreateKey(args []string) {
	fs := flag.NewFlagSet("admin create-key", flag.ExitOnError)
	businessID := fs.String("business", "", "business id")
	name := fs.String("name", "device key", "label for the key")
	expires := fs.String("expires", "", "expiry as a duration from now, e.g. 8760h (default: never)")
	dbPath := fs.String("db", "", "path to inventad.db (default: from INVENTA_SERVER_DB_PATH or ./data/inventad.db)")
	fs.Parse(args)

	if *businessID == "" {
		fmt.Fprintln(os.Stderr, "error: --business is required")
		fs.Usage()
		os.Exit(1)
	}

	var expiresAt *time.Time
	if *expires != "" {
		d, err := time.ParseDuration(*expires)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid --expires: %v\n", err)
			os.Exit(1)
		}
		t := time.Now().Add(d)
		expiresAt = &t
	}

	store := openDB(*dbPath)
	defer store.Close()

	plaintext, key, err := store.GenerateAPIKey(*businessID, *name, expiresAt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("created key %s for business %s\n", key.ID, *businessID)
	fmt.Printf("api key (save it, it is not stored): %s\n", plaintext)
}

func runAdminCursors(args []string) {
	fs := flag.NewFlagSet("admin cursors", flag.ExitOnError)
	businessID := fs.String("business", "", "business id")
	dbPath := fs.String("db", "", "path to inventad.db (default: from INVENTA_SERVER_DB_PATH or ./data/inventad.db)")
	fs.Parse(args)

	if *businessID == "" {
		fmt.Fprintln(os.Stderr, "error: --business is required")
		fs.Usage()
		os.Exit(1)
	}

	store := openDB(*dbPath)
	defer store.Close()

	cursors, err := store.ListSyncCursors(*businessID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(cursors) == 0 {
		fmt.Println("no devices have synced yet")
		return
	}
	for _, c := range cursors {
		last := "never"
		if c.LastSyncAt != nil {
			last = c.LastSyncAt.Format(time.RFC3339)
		}
		fmt.Printf("%s  last_pushed=%d  last_sync=%s\n", c.DeviceID, c.LastPushedAt, last)
	}
}

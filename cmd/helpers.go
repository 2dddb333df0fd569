package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jvega/inventa/internal/clientconfig"
	"github.com/jvega/inventa/internal/models"
	"github.com/jvega/inventa/internal/outbox"
	"github.com/jvega/inventa/internal/output"
	"github.com/jvega/inventa/internal/store"
	"github.com/jvega/inventa/internal/syncclient"
	"github.com/jvega/inventa/internal/syncer"
)

// localBusinessID scopes records created before the device has logged in.
// Login adopts them into the real business scope.
const localBusinessID = "local"

// openStore opens the local database in the working directory.
func openStore() (*store.Store, error) {
	st, err := store.Open(getBaseDir())
	if err != nil {
		output.Error("%v", err)
		return nil, err
	}
	return st, nil
}

// activeBusinessID returns the tenant scope for local reads and writes.
func activeBusinessID() string {
	if id := clientconfig.GetBusinessID(); id != "" {
		return id
	}
	return localBusinessID
}

// newSyncClient builds an authenticated API client from saved credentials.
func newSyncClient() (*syncclient.Client, error) {
	if !clientconfig.IsAuthenticated() {
		output.Error("not logged in. Run 'inventa login --server URL --key KEY'")
		return nil, fmt.Errorf("not logged in")
	}
	deviceID, err := clientconfig.GetDeviceID()
	if err != nil {
		output.Error("device id: %v", err)
		return nil, err
	}
	return syncclient.New(clientconfig.GetServerURL(), clientconfig.GetAPIKey(), deviceID), nil
}

// newEngine wires the full sync stack over an already-open store.
func newEngine(st *store.Store) (*syncer.Engine, error) {
	client, err := newSyncClient()
	if err != nil {
		return nil, err
	}
	return syncer.New(st, outbox.New(st.Conn()), client, activeBusinessID()), nil
}

// resolveRecord finds a record by external id prefix within a tenant scope.
// Exact matches win; a prefix that matches more than one record is an error.
func resolveRecord(st *store.Store, entityType, businessID, ref string) (*models.Record, error) {
	if rec, err := st.Get(entityType, ref); err != nil {
		return nil, err
	} else if rec != nil && !rec.Deleted {
		return rec, nil
	}

	records, err := st.Query(entityType, businessID)
	if err != nil {
		return nil, err
	}
	var matches []models.Record
	for _, rec := range records {
		if strings.HasPrefix(rec.ExternalID, ref) {
			matches = append(matches, rec)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no %s matching %q", singular(entityType), ref)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("%q is ambiguous (%d matches)", ref, len(matches))
	}
}

func singular(entityType string) string {
	switch entityType {
	case models.EntityClients:
		return "client"
	case models.EntityProducts:
		return "product"
	case models.EntitySessions:
		return "session"
	case models.EntityCountedItems:
		return "counted item"
	}
	return entityType
}

// localDBExists reports whether init has been run in the base directory.
func localDBExists() bool {
	_, err := os.Stat(filepath.Join(getBaseDir(), ".inventa"))
	return err == nil
}

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/jvega/inventa/internal/models"
	"github.com/jvega/inventa/internal/serverdb"
)

type testServer struct {
	srv    *Server
	store  *serverdb.ServerDB
	ts     *httptest.Server
	apiKey string
	bizID  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := serverdb.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	biz, err := store.CreateBusiness("Test Shop")
	if err != nil {
		t.Fatalf("create business: %v", err)
	}
	key, _, err := store.GenerateAPIKey(biz.ID, "test", nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	srv, err := NewServer(LoadConfig(), store)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testServer{srv: srv, store: store, ts: ts, apiKey: key, bizID: biz.ID}
}

func (h *testServer) do(t *testing.T, method, path string, body any, auth bool) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, h.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func rawClient(name string) json.RawMessage {
	raw, _ := json.Marshal(models.ClientPayload{Name: name})
	return raw
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t)
	resp := h.do(t, "GET", "/healthz", nil, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
	var body map[string]string
	decodeInto(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %q", body["status"])
	}
}

func TestSyncBatchRequiresAuth(t *testing.T) {
	h := newTestServer(t)
	resp := h.do(t, "POST", "/sync/batch", batchRequest{}, false)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	var body ErrorResponse
	decodeInto(t, resp, &body)
	if body.Error.Code != ErrCodeUnauthorized {
		t.Errorf("error code = %q", body.Error.Code)
	}
}

func TestSyncBatchAppliesAndReports(t *testing.T) {
	h := newTestServer(t)

	resp := h.do(t, "POST", "/sync/batch", batchRequest{
		DeviceID: "dev1",
		Changes: map[string][]models.Record{
			models.EntityClients: {
				{ExternalID: "c1", Payload: rawClient("Acme")},
				{ExternalID: "c2", Payload: rawClient("")},
			},
		},
	}, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body batchResponse
	decodeInto(t, resp, &body)
	res := body.Processed[models.EntityClients]
	if len(res.Applied) != 1 || len(res.Rejected) != 1 {
		t.Fatalf("processed = %+v", res)
	}
	if body.ServerTimestamp == 0 {
		t.Error("missing server timestamp")
	}
}

func TestSyncPushAlias(t *testing.T) {
	h := newTestServer(t)

	resp := h.do(t, "POST", "/sync/push", batchRequest{
		DeviceID: "dev1",
		Changes: map[string][]models.Record{
			models.EntityClients: {{ExternalID: "c1", Payload: rawClient("Acme")}},
		},
	}, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("alias status = %d", resp.StatusCode)
	}
}

func TestSyncBatchUnknownEntityType(t *testing.T) {
	h := newTestServer(t)

	resp := h.do(t, "POST", "/sync/batch", batchRequest{
		Changes: map[string][]models.Record{
			"gadgets": {{ExternalID: "g1", Payload: rawClient("x")}},
		},
	}, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSyncPullRoundTrip(t *testing.T) {
	h := newTestServer(t)

	push := h.do(t, "POST", "/sync/batch", batchRequest{
		DeviceID: "dev1",
		Changes: map[string][]models.Record{
			models.EntityClients: {{ExternalID: "c1", Payload: rawClient("Acme")}},
		},
	}, true)
	var pushed batchResponse
	decodeInto(t, push, &pushed)

	resp := h.do(t, "GET", "/sync/pull?lastSync=0", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pull status = %d", resp.StatusCode)
	}
	var body pullResponse
	decodeInto(t, resp, &body)
	if body.BusinessID != h.bizID {
		t.Errorf("businessId = %q", body.BusinessID)
	}
	recs := body.Updates[models.EntityClients]
	if len(recs) != 1 || recs[0].ExternalID != "c1" {
		t.Fatalf("updates = %+v", body.Updates)
	}

	// Pulling from past the record's timestamp returns nothing.
	resp = h.do(t, "GET", "/sync/pull?lastSync="+strconv.FormatInt(recs[0].UpdatedAt, 10), nil, true)
	var empty pullResponse
	decodeInto(t, resp, &empty)
	if len(empty.Updates) != 0 {
		t.Errorf("expected empty page, got %+v", empty.Updates)
	}
}

func TestSyncPullRejectsBadParams(t *testing.T) {
	h := newTestServer(t)

	resp := h.do(t, "GET", "/sync/pull?lastSync=yesterday", nil, true)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad lastSync status = %d", resp.StatusCode)
	}

	resp = h.do(t, "GET", "/sync/pull?lastSync=0&tables=gadgets", nil, true)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad tables status = %d", resp.StatusCode)
	}
}

func TestSyncStatus(t *testing.T) {
	h := newTestServer(t)

	h.do(t, "POST", "/sync/batch", batchRequest{
		Changes: map[string][]models.Record{
			models.EntityClients: {{ExternalID: "c1", Payload: rawClient("Acme")}},
		},
	}, true).Body.Close()

	resp := h.do(t, "GET", "/sync/status", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body statusResponse
	decodeInto(t, resp, &body)
	if body.Counts[models.EntityClients] != 1 {
		t.Errorf("counts = %+v", body.Counts)
	}
}

func TestDeliverItemsFlow(t *testing.T) {
	h := newTestServer(t)

	created := h.do(t, "POST", "/requests", nil, true)
	if created.StatusCode != http.StatusCreated {
		t.Fatalf("create request status = %d", created.StatusCode)
	}
	var reqBody requestResponse
	decodeInto(t, created, &reqBody)

	item, _ := json.Marshal(models.CountedItemPayload{
		SessionExternalID: "s1", ProductName: "Widget", Quantity: 2,
	})
	resp := h.do(t, "POST", "/requests/"+reqBody.ID+"/items", deliverItemsRequest{
		SessionID: "s1",
		DeviceID:  "dev2",
		Items:     []models.Record{{ExternalID: "i1", Payload: item}},
	}, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deliver status = %d", resp.StatusCode)
	}
	var delivered deliverItemsResponse
	decodeInto(t, resp, &delivered)
	if delivered.Accepted != 1 {
		t.Errorf("accepted = %d", delivered.Accepted)
	}

	// The items landed in the issuing business's store.
	status := h.do(t, "GET", "/sync/status", nil, true)
	var counts statusResponse
	decodeInto(t, status, &counts)
	if counts.Counts[models.EntityCountedItems] != 1 {
		t.Errorf("counted_items = %d, want 1", counts.Counts[models.EntityCountedItems])
	}

	// A device that lost the response redelivers the same payload. The
	// retry succeeds against the now fulfilled request and stores nothing
	// new.
	resp = h.do(t, "POST", "/requests/"+reqBody.ID+"/items", deliverItemsRequest{
		SessionID: "s1",
		DeviceID:  "dev2",
		Items:     []models.Record{{ExternalID: "i1", Payload: item}},
	}, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("redeliver status = %d, want 200", resp.StatusCode)
	}
	var redelivered deliverItemsResponse
	decodeInto(t, resp, &redelivered)
	if redelivered.Accepted != 1 {
		t.Errorf("redeliver accepted = %d, want 1", redelivered.Accepted)
	}

	status = h.do(t, "GET", "/sync/status", nil, true)
	decodeInto(t, status, &counts)
	if counts.Counts[models.EntityCountedItems] != 1 {
		t.Errorf("counted_items after retry = %d, want 1", counts.Counts[models.EntityCountedItems])
	}
}

func TestDeliverItemsUnknownRequest(t *testing.T) {
	h := newTestServer(t)
	item, _ := json.Marshal(models.CountedItemPayload{SessionExternalID: "s1", Quantity: 1})
	resp := h.do(t, "POST", "/requests/req_missing/items", deliverItemsRequest{
		Items: []models.Record{{ExternalID: "i1", Payload: item}},
	}, true)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

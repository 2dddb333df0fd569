package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jvega/inventa/internal/models"
	"github.com/jvega/inventa/internal/serverdb"
)

// batchRequest is the JSON body for POST /sync/batch.
type batchRequest struct {
	Changes   map[string][]models.Record `json:"changes"`
	DeviceID  string                     `json:"deviceId"`
	Timestamp int64                      `json:"timestamp"`
}

// batchResponse is the JSON response for POST /sync/batch.
type batchResponse struct {
	Processed       map[string]serverdb.EntityResult `json:"processed"`
	ServerTimestamp int64                            `json:"serverTimestamp"`
}

// pullResponse is the JSON response for GET /sync/pull.
type pullResponse struct {
	Updates         map[string][]models.Record `json:"updates"`
	ServerTimestamp int64                      `json:"serverTimestamp"`
	BusinessID      string                     `json:"businessId"`
}

// statusResponse is the JSON response for GET /sync/status.
type statusResponse struct {
	Counts          map[string]int64 `json:"counts"`
	ServerTimestamp int64            `json:"serverTimestamp"`
	BusinessID      string           `json:"businessId"`
	BusinessName    string           `json:"businessName"`
}

// handleSyncBatch handles POST /sync/batch (and its /sync/push alias).
func (s *Server) handleSyncBatch(w http.ResponseWriter, r *http.Request) {
	biz := businessFromContext(r.Context())

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}

	total := 0
	for et, recs := range req.Changes {
		if !models.IsEntityType(et) {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "unknown entity type "+et)
			return
		}
		total += len(recs)
	}
	if total > s.config.MaxBatchRecords {
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge,
			"batch exceeds "+strconv.Itoa(s.config.MaxBatchRecords)+" records")
		return
	}

	results, serverTS, err := s.store.ApplyBatch(biz.BusinessID, req.DeviceID, req.Changes)
	if err != nil {
		logFor(r.Context()).Error("apply batch", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to apply batch")
		return
	}

	var applied, rejected int64
	for _, res := range results {
		applied += int64(len(res.Applied))
		rejected += int64(len(res.Rejected))
	}
	s.metrics.RecordBatch(applied, rejected)
	logFor(r.Context()).Info("batch", "device", req.DeviceID, "applied", applied, "rejected", rejected)

	writeJSON(w, http.StatusOK, batchResponse{
		Processed:       results,
		ServerTimestamp: serverTS,
	})
}

// handleSyncPull handles GET /sync/pull.
func (s *Server) handleSyncPull(w http.ResponseWriter, r *http.Request) {
	biz := businessFromContext(r.Context())

	lastSync := int64(0)
	if v := r.URL.Query().Get("lastSync"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid lastSync")
			return
		}
		lastSync = n
	}

	var tables []string
	if v := r.URL.Query().Get("tables"); v != "" {
		for _, t := range strings.Split(v, ",") {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			if !models.IsEntityType(t) {
				writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "unknown entity type "+t)
				return
			}
			tables = append(tables, t)
		}
	}

	updates, err := s.store.ChangedSince(biz.BusinessID, lastSync, tables)
	if err != nil {
		logFor(r.Context()).Error("changed since", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to read changes")
		return
	}
	s.metrics.RecordPullRequest()

	writeJSON(w, http.StatusOK, pullResponse{
		Updates:         updates,
		ServerTimestamp: time.Now().UnixMilli(),
		BusinessID:      biz.BusinessID,
	})
}

// handleSyncStatus handles GET /sync/status.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	biz := businessFromContext(r.Context())

	counts, err := s.store.Counts(biz.BusinessID)
	if err != nil {
		logFor(r.Context()).Error("status counts", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to count records")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Counts:          counts,
		ServerTimestamp: time.Now().UnixMilli(),
		BusinessID:      biz.BusinessID,
		BusinessName:    biz.Name,
	})
}

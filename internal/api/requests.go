package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jvega/inventa/internal/models"
)

// requestResponse is the JSON shape of a connection request.
type requestResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

// deliverItemsRequest is the JSON body for POST /requests/{id}/items.
type deliverItemsRequest struct {
	SessionID string          `json:"sessionId"`
	Items     []models.Record `json:"items"`
	DeviceID  string          `json:"deviceId"`
}

// deliverItemsResponse is the JSON response for POST /requests/{id}/items.
type deliverItemsResponse struct {
	Accepted int `json:"accepted"`
}

// handleCreateRequest handles POST /requests. The request is issued by the
// business that wants to receive captured items.
func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	biz := businessFromContext(r.Context())

	req, err := s.store.CreateConnectionRequest(biz.BusinessID)
	if err != nil {
		logFor(r.Context()).Error("create connection request", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to create request")
		return
	}

	writeJSON(w, http.StatusCreated, requestResponse{
		ID:        req.ID,
		Status:    req.Status,
		CreatedAt: req.CreatedAt.Format(time.RFC3339),
	})
}

// handleDeliverItems handles POST /requests/{id}/items. The caller is any
// authenticated device holding the request ID; the items land in the issuing
// business's store, not the caller's.
func (s *Server) handleDeliverItems(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("id")
	if requestID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "missing request id")
		return
	}

	var req deliverItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "no items")
		return
	}

	cr, err := s.store.GetConnectionRequest(requestID)
	if err != nil {
		logFor(r.Context()).Error("get connection request", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load request")
		return
	}
	if cr == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown request")
		return
	}

	accepted, err := s.store.DeliverItems(requestID, req.Items)
	if err != nil {
		logFor(r.Context()).Error("deliver items", "err", err, "request", requestID)
		writeError(w, http.StatusConflict, ErrCodeBadRequest, err.Error())
		return
	}
	s.metrics.RecordItemsDelivered(int64(accepted))
	logFor(r.Context()).Info("items delivered", "request", requestID, "accepted", accepted, "device", req.DeviceID)

	writeJSON(w, http.StatusOK, deliverItemsResponse{Accepted: accepted})
}

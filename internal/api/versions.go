package api

import (
	"net/http"

	"go.uber.org/zap"
)

// handleGetVersion returns the current release descriptor. A missing or
// malformed descriptor fails this request only.
func (h *Handler) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	d, err := h.Versions.Load()
	if err != nil {
		h.logger().Error("load version descriptor", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, newResult(CodeServerError, nil, h.now()))
		return
	}
	writeJSON(w, http.StatusOK, newResult(CodeSuccess, d, h.now()))
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newResult(CodeSuccess, nil, h.now()))
}

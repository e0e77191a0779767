package handlers

import (
	"encoding/json"
	"io"
	"maps"
	"net/http"
	"strings"

	"github.com/foxzi/outreach/internal/web/middleware"
)

const maxVerifyBody = 64 << 10

type verifyRequest struct {
	IDToken string `json:"idToken"`
}

// Verify checks an ID token and answers with its decoded claims.
// A missing token is a client error; malformed bodies and rejected
// tokens answer 500 with the failure text.
func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxVerifyBody)).Decode(&req); err != nil && err != io.EOF {
		h.apiError(w, http.StatusInternalServerError, err.Error())
		return
	}

	token := strings.TrimSpace(req.IDToken)
	if token == "" {
		h.apiError(w, http.StatusBadRequest, "missing idToken")
		return
	}

	p, err := h.gate.Verify(r.Context(), token)
	if err != nil {
		h.logger.Warn("token verification failed", "ip", middleware.ClientIP(r), "error", err)
		h.apiError(w, http.StatusInternalServerError, err.Error())
		return
	}

	decoded := make(map[string]any, len(p.Claims)+1)
	maps.Copy(decoded, p.Claims)
	decoded["uid"] = p.UID

	h.apiJSON(w, http.StatusOK, map[string]any{"ok": true, "decoded": decoded})
}

package web

import (
	"net/http"
)

type placeBidRequest struct {
	Number flexValue `json:"number"`
	Amount flexValue `json:"amount"`
}

func (s *Server) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeMessage(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	var req placeBidRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	maxOffer, err := s.service.PlaceBid(r.Context(), id, string(req.Number), string(req.Amount))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"message":         "bid accepted",
		"currentMaxOffer": amount(maxOffer),
	})
}

type finalizeRequest struct {
	WinnerNumber flexValue `json:"winnerNumber"`
}

// handleFinalizeAuction serves both /finalize and /winner.
func (s *Server) handleFinalizeAuction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeMessage(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	var req finalizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	winner, err := s.service.FinalizeAuction(r.Context(), id, string(req.WinnerNumber))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"message":      "auction finalized",
		"winnerNumber": winner,
	})
}

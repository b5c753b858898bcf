package web

import (
	"net/http"
)

func (s *Server) handleListAuctions(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.service.ListAuctions(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]summaryResponse, len(summaries))
	for i, sum := range summaries {
		resp[i] = s.toSummary(r, sum)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeMessage(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	a, err := s.service.GetAuction(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.toDetail(r, a))
}

type updateAuctionRequest struct {
	Name string `json:"name"`
	Date string `json:"date"`
}

func (s *Server) handleUpdateAuction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeMessage(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	var req updateAuctionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a, err := s.service.UpdateAuction(r.Context(), id, req.Name, req.Date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"message": "auction updated",
		"auction": s.toDetail(r, a),
	})
}

func (s *Server) handleDeleteAuction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeMessage(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	if err := s.service.DeleteAuction(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeMessage(w, http.StatusOK, "auction deleted")
}

package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vbonduro/rifas/internal/domain"
	"github.com/vbonduro/rifas/internal/service"
	"go.uber.org/zap"
)

type summaryResponse struct {
	ID              int64       `json:"id"`
	Name            string      `json:"name"`
	Date            string      `json:"date"`
	CurrentMaxOffer json.Number `json:"currentMaxOffer"`
	Inscritos       int         `json:"inscritos"`
	ImageURL        *string     `json:"imageUrl"`
	IsFinished      bool        `json:"isFinished"`
	WinnerNumber    *int        `json:"winnerNumber"`
}

type bidResponse struct {
	Number    int         `json:"number"`
	Amount    json.Number `json:"amount"`
	Timestamp time.Time   `json:"timestamp"`
}

type detailResponse struct {
	ID              int64         `json:"id"`
	Name            string        `json:"name"`
	Date            string        `json:"date"`
	Matrix          [][]int       `json:"matrix"`
	CurrentMaxOffer json.Number   `json:"currentMaxOffer"`
	MinOffer        json.Number   `json:"minOffer"`
	Bids            []bidResponse `json:"bids"`
	Inscritos       int           `json:"inscritos"`
	ImageURL        *string       `json:"imageUrl"`
	IsFinished      bool          `json:"isFinished"`
	WinnerNumber    *int          `json:"winnerNumber"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

type errorResponse struct {
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

func amount(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func (s *Server) toSummary(r *http.Request, sum *domain.AuctionSummary) summaryResponse {
	return summaryResponse{
		ID:              sum.ID,
		Name:            sum.Name,
		Date:            sum.Date,
		CurrentMaxOffer: amount(sum.CurrentMaxOffer),
		Inscritos:       sum.BidCount,
		ImageURL:        s.imageURL(r, sum.ImageRef),
		IsFinished:      sum.IsFinished,
		WinnerNumber:    sum.WinnerNumber,
	}
}

func (s *Server) toDetail(r *http.Request, a *domain.Auction) detailResponse {
	grid := a.Grid()
	matrix := make([][]int, domain.GridSize)
	for row := range matrix {
		matrix[row] = make([]int, domain.GridSize)
		for col := range matrix[row] {
			matrix[row][col] = int(grid[row][col])
		}
	}

	bids := make([]bidResponse, len(a.Bids))
	for i, b := range a.Bids {
		bids[i] = bidResponse{Number: b.Number, Amount: amount(b.Amount), Timestamp: b.Timestamp}
	}

	return detailResponse{
		ID:              a.ID,
		Name:            a.Name,
		Date:            a.Date,
		Matrix:          matrix,
		CurrentMaxOffer: amount(a.CurrentMaxOffer),
		MinOffer:        amount(a.MinOffer),
		Bids:            bids,
		Inscritos:       len(a.Bids),
		ImageURL:        s.imageURL(r, a.ImageRef),
		IsFinished:      a.IsFinished,
		WinnerNumber:    a.WinnerNumber,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

// imageURL renders an image reference. Store keys become
// <base>/uploads/<key>; anything else is returned as given.
func (s *Server) imageURL(r *http.Request, ref string) *string {
	if ref == "" {
		return nil
	}
	if !service.IsImageKey(ref) {
		return &ref
	}
	base := strings.TrimRight(s.opts.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	u := base + "/uploads/" + ref
	return &u
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write response failed", zap.Error(err))
	}
}

func (s *Server) writeMessage(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Message: msg})
}

// writeError maps a failure to a status code. Domain errors carry their
// reason to the client; anything else is logged and reported as internal.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Error(err),
		)
		s.writeMessage(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := http.StatusBadRequest
	if de.Kind == domain.KindNotFound {
		status = http.StatusNotFound
	}
	s.writeJSON(w, status, errorResponse{Message: de.Reason, Fields: de.Fields})
}

package web

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/vbonduro/rifas/internal/domain"
	"github.com/vbonduro/rifas/internal/imagestore"
	"github.com/vbonduro/rifas/internal/service"
	"go.uber.org/zap"
)

// maxFormMemory is how much of a multipart body is kept in memory; the rest
// spills to temporary files.
const maxFormMemory = 8 << 20

// allowedImageTypes is the set of MIME types accepted for uploaded images.
// net/http.DetectContentType handles JPEG, PNG, and GIF via magic-byte
// sniffing. WebP is detected separately because the WHATWG sniff spec (and
// therefore the stdlib) does not include a WebP signature.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// allowedImageMIME returns the detected MIME type and true if the data is an
// accepted image format, or ("", false) otherwise.
func allowedImageMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	detected := http.DetectContentType(data)
	if allowedImageTypes[detected] {
		return detected, true
	}
	return "", false
}

type createAuctionRequest struct {
	Name     string    `json:"name"`
	Date     string    `json:"date"`
	MinOffer flexValue `json:"minOffer"`
	ImageURL string    `json:"imageUrl"`
}

// handleCreateAuction accepts either a multipart form with an optional
// "image" file or a JSON body with an optional absolute imageUrl.
func (s *Server) handleCreateAuction(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		in       service.CreateAuctionInput
		imageKey string
	)
	if mediaType == "multipart/form-data" {
		var ok bool
		in, imageKey, ok = s.readMultipartCreate(w, r)
		if !ok {
			return
		}
	} else {
		var req createAuctionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeMessage(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.ImageURL != "" && !isAbsoluteHTTPURL(req.ImageURL) {
			s.writeError(w, r, domain.InvalidFields("imageUrl"))
			return
		}
		in = service.CreateAuctionInput{
			Name:     req.Name,
			Date:     req.Date,
			MinOffer: string(req.MinOffer),
			ImageRef: req.ImageURL,
		}
	}

	a, err := s.service.CreateAuction(r.Context(), in)
	if err != nil {
		if imageKey != "" {
			s.discardImage(context.WithoutCancel(r.Context()), imageKey)
		}
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, s.toSummary(r, a.Summary()))
}

// readMultipartCreate parses the form and stores the uploaded image, if any.
// It writes the error response itself and reports ok=false on failure.
func (s *Server) readMultipartCreate(w http.ResponseWriter, r *http.Request) (service.CreateAuctionInput, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeMessage(w, http.StatusRequestEntityTooLarge, "upload too large")
		} else {
			s.writeMessage(w, http.StatusBadRequest, "failed to parse form")
		}
		return service.CreateAuctionInput{}, "", false
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.logger.Warn("failed to remove multipart temp files", zap.Error(err))
		}
	}()

	in := service.CreateAuctionInput{
		Name:     r.FormValue("name"),
		Date:     r.FormValue("date"),
		MinOffer: r.FormValue("minOffer"),
	}

	file, _, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return in, "", true
	}
	if err != nil {
		s.writeMessage(w, http.StatusBadRequest, "failed to read image")
		return in, "", false
	}
	defer closeWithLog(file, "upload file", s.logger)

	imageData, err := io.ReadAll(file)
	if err != nil {
		s.writeMessage(w, http.StatusInternalServerError, "failed to read image")
		s.logger.Error("read upload failed", zap.Error(err))
		return in, "", false
	}

	mimeType, ok := allowedImageMIME(imageData)
	if !ok {
		s.writeMessage(w, http.StatusBadRequest, "unsupported image format")
		return in, "", false
	}

	key, err := s.images.Save(r.Context(), "auction", mimeType, bytes.NewReader(imageData))
	if err != nil {
		s.writeMessage(w, http.StatusInternalServerError, "failed to store image")
		s.logger.Error("save upload failed", zap.Error(err))
		return in, "", false
	}
	s.logger.Debug("image saved", zap.String("storage_key", key), zap.String("mime_type", mimeType))

	in.ImageRef = key
	return in, key, true
}

func (s *Server) discardImage(ctx context.Context, key string) {
	if err := s.images.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to discard uploaded image", zap.String("storage_key", key), zap.Error(err))
	}
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !service.IsImageKey(key) {
		http.NotFound(w, r)
		return
	}

	reader, mimeType, err := s.images.Get(r.Context(), key)
	if err != nil {
		if !errors.Is(err, imagestore.ErrNotFound) {
			s.logger.Warn("get image failed", zap.String("storage_key", key), zap.Error(err))
		}
		http.NotFound(w, r)
		return
	}
	defer closeWithLog(reader, "image reader", s.logger)

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("write image failed", zap.String("storage_key", key), zap.Error(err))
	}
}

func isAbsoluteHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *zap.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", zap.String("label", label), zap.Error(err))
	}
}

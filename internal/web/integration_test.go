package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/rifas/internal/events"
	"github.com/vbonduro/rifas/internal/imagestore/local"
	"github.com/vbonduro/rifas/internal/service"
	"github.com/vbonduro/rifas/internal/store"
	"github.com/vbonduro/rifas/internal/web"
	"go.uber.org/zap"
)

// minimalJPEG is 512 bytes with the JPEG magic bytes header followed by zeros.
// http.DetectContentType identifies JPEG from the leading 0xFF 0xD8 bytes.
var minimalJPEG = func() []byte {
	b := make([]byte, 512)
	b[0] = 0xFF
	b[1] = 0xD8
	b[2] = 0xFF
	b[3] = 0xE0
	return b
}()

type testServer struct {
	*httptest.Server
	handler   http.Handler
	uploadDir string
	hub       *events.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	uploadDir := t.TempDir()

	images, err := local.NewLocalImageStore(uploadDir, logger)
	require.NoError(t, err)

	hub := events.NewHub("*", logger)
	svc := service.NewAuctionService(store.NewMemoryAuctionStore(), images, hub, logger)
	handler := web.NewServer(svc, images, hub, web.Options{MaxUploadBytes: 1 << 20}, logger)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testServer{Server: srv, handler: handler, uploadDir: uploadDir, hub: hub}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return ts.send(t, req)
}

func (ts *testServer) send(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") && len(data) > 0 && data[0] == '{' {
		require.NoError(t, json.Unmarshal(data, &decoded))
	}
	return resp, decoded
}

func (ts *testServer) list(t *testing.T, query string) []map[string]any {
	t.Helper()
	resp, err := http.Get(ts.URL + "/auctions" + query)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (ts *testServer) uploads(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(ts.uploadDir)
	require.NoError(t, err)
	return entries
}

func multipartCreate(t *testing.T, url string, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		fw, err := mw.CreateFormFile("image", "photo.jpg")
		require.NoError(t, err)
		_, err = fw.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url+"/auctions", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "/auctions")

	r, decoded := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.Equal(t, "ok", decoded["status"])
	assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
	assert.Equal(t, "nosniff", r.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "*", r.Header.Get("Access-Control-Allow-Origin"))
}

func TestCreateAuctionJSON(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/auctions", map[string]any{
		"name": "Bicicleta", "date": "2025-07-01", "minOffer": 100,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.EqualValues(t, 1, body["id"])
	assert.Equal(t, "Bicicleta", body["name"])
	assert.EqualValues(t, 0, body["currentMaxOffer"])
	assert.EqualValues(t, 0, body["inscritos"])
	assert.Nil(t, body["imageUrl"])
	assert.Equal(t, false, body["isFinished"])
	assert.Nil(t, body["winnerNumber"])
	assert.NotContains(t, body, "matrix")

	resp, body = ts.do(t, http.MethodPost, "/auctions", map[string]any{
		"name": "Televisor", "date": "2025-08-01", "minOffer": "10", "imageUrl": "https://cdn.example/tv.jpg",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.EqualValues(t, 2, body["id"])
	assert.Equal(t, "https://cdn.example/tv.jpg", body["imageUrl"])
}

func TestCreateAuctionValidation(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/auctions", map[string]any{
		"name": "", "date": "2025-07-01", "minOffer": "abc",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid fields", body["message"])
	assert.Equal(t, []any{"name", "minOffer"}, body["fields"])

	resp, body = ts.do(t, http.MethodPost, "/auctions", map[string]any{
		"name": "x", "date": "y", "minOffer": 1, "imageUrl": "../etc/passwd",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, []any{"imageUrl"}, body["fields"])

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/auctions", strings.NewReader("{not json"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, body = ts.send(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid request body", body["message"])

	assert.Empty(t, ts.list(t, ""))
}

func TestCreateAuctionMultipartWithImage(t *testing.T) {
	ts := newTestServer(t)

	req := multipartCreate(t, ts.URL, map[string]string{
		"name": "Canasta", "date": "2025-12-24", "minOffer": "5",
	}, minimalJPEG)
	resp, body := ts.send(t, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	imageURL, ok := body["imageUrl"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(imageURL, ts.URL+"/uploads/auction-"), imageURL)

	img, err := http.Get(imageURL)
	require.NoError(t, err)
	defer img.Body.Close()
	assert.Equal(t, http.StatusOK, img.StatusCode)
	assert.Equal(t, "image/jpeg", img.Header.Get("Content-Type"))
	data, err := io.ReadAll(img.Body)
	require.NoError(t, err)
	assert.Equal(t, minimalJPEG, data)

	// Deleting the auction removes its image.
	resp, _ = ts.do(t, http.MethodDelete, "/auctions/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, ts.uploads(t))
}

func TestCreateAuctionMultipartRejectsBadImage(t *testing.T) {
	ts := newTestServer(t)

	req := multipartCreate(t, ts.URL, map[string]string{
		"name": "Canasta", "date": "2025-12-24", "minOffer": "5",
	}, []byte("%PDF-1.4 malicious content"))
	resp, body := ts.send(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "unsupported image format", body["message"])
	assert.Empty(t, ts.uploads(t))
}

func TestCreateAuctionMultipartDiscardsImageOnValidationError(t *testing.T) {
	ts := newTestServer(t)

	req := multipartCreate(t, ts.URL, map[string]string{"date": "2025-12-24", "minOffer": "5"}, minimalJPEG)
	resp, body := ts.send(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, []any{"name"}, body["fields"])
	assert.Empty(t, ts.uploads(t))
}

func TestCreateAuctionMultipartTooLarge(t *testing.T) {
	ts := newTestServer(t)

	big := append(append([]byte{}, minimalJPEG...), make([]byte, 2<<20)...)
	req := multipartCreate(t, ts.URL, map[string]string{"name": "a", "date": "b", "minOffer": "1"}, big)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, ts.uploads(t))
}

func TestBiddingFlow(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := ts.do(t, http.MethodPost, "/auctions", map[string]any{"name": "Rifa", "date": "2025-07-01", "minOffer": 100})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	steps := []struct {
		body       map[string]any
		wantStatus int
		wantMsg    string
	}{
		{map[string]any{"number": 5, "amount": 50}, http.StatusBadRequest, "below minimum"},
		{map[string]any{"number": 5, "amount": 150}, http.StatusCreated, "bid accepted"},
		{map[string]any{"number": "5", "amount": "200"}, http.StatusBadRequest, "number unavailable"},
		{map[string]any{"number": 6, "amount": 150}, http.StatusBadRequest, "not a new maximum"},
		{map[string]any{"number": 100, "amount": 999}, http.StatusBadRequest, "number out of range"},
		{map[string]any{"number": 7, "amount": "lots"}, http.StatusBadRequest, "amount invalid"},
		{map[string]any{"amount": 999}, http.StatusBadRequest, "number out of range"},
		{map[string]any{"number": "6", "amount": 151.5}, http.StatusCreated, "bid accepted"},
	}
	for _, step := range steps {
		resp, body := ts.do(t, http.MethodPost, "/auctions/1/bids", step.body)
		assert.Equal(t, step.wantStatus, resp.StatusCode, step.body)
		assert.Equal(t, step.wantMsg, body["message"], step.body)
	}

	resp, body := ts.do(t, http.MethodGet, "/auctions/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 151.5, body["currentMaxOffer"])
	assert.EqualValues(t, 100, body["minOffer"])
	assert.EqualValues(t, 2, body["inscritos"])

	matrix, ok := body["matrix"].([]any)
	require.True(t, ok)
	require.Len(t, matrix, 10)
	row0 := matrix[0].([]any)
	assert.EqualValues(t, 1, row0[5])
	assert.EqualValues(t, 1, row0[6])
	assert.EqualValues(t, 0, row0[7])

	bids, ok := body["bids"].([]any)
	require.True(t, ok)
	require.Len(t, bids, 2)
	first := bids[0].(map[string]any)
	assert.EqualValues(t, 5, first["number"])
	assert.EqualValues(t, 150, first["amount"])
	assert.NotEmpty(t, first["timestamp"])

	summaries := ts.list(t, "")
	require.Len(t, summaries, 1)
	assert.EqualValues(t, 2, summaries[0]["inscritos"])
	assert.NotContains(t, summaries[0], "bids")
}

func TestFinalizeFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/auctions", map[string]any{"name": "Rifa", "date": "2025-07-01", "minOffer": 1})
	resp, _ := ts.do(t, http.MethodPost, "/auctions/1/bids", map[string]any{"number": 42, "amount": 10})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := ts.do(t, http.MethodPut, "/auctions/1/finalize", map[string]any{"winnerNumber": 8})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "winner number not reserved", body["message"])

	resp, body = ts.do(t, http.MethodPut, "/auctions/1/finalize", map[string]any{"winnerNumber": 120})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "winner number out of range", body["message"])

	resp, body = ts.do(t, http.MethodPut, "/auctions/1/winner", map[string]any{"winnerNumber": 42})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "auction finalized", body["message"])
	assert.EqualValues(t, 42, body["winnerNumber"])

	resp, body = ts.do(t, http.MethodPut, "/auctions/1/finalize", map[string]any{"winnerNumber": 42})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "already finished", body["message"])

	resp, body = ts.do(t, http.MethodPost, "/auctions/1/bids", map[string]any{"number": 7, "amount": 999})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "auction finished", body["message"])

	resp, body = ts.do(t, http.MethodPut, "/auctions/1", map[string]any{"name": "Otra", "date": "2026-01-01"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "finished", body["message"])

	resp, body = ts.do(t, http.MethodGet, "/auctions/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["isFinished"])
	assert.EqualValues(t, 42, body["winnerNumber"])

	resp, _ = ts.do(t, http.MethodDelete, "/auctions/1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUpdateAndDelete(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/auctions", map[string]any{"name": "Rifa", "date": "2025-07-01", "minOffer": 1})

	resp, body := ts.do(t, http.MethodPut, "/auctions/1", map[string]any{"name": "Bicicleta Roja", "date": "2025-09-09"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "auction updated", body["message"])
	auction := body["auction"].(map[string]any)
	assert.Equal(t, "Bicicleta Roja", auction["name"])
	assert.Equal(t, "2025-09-09", auction["date"])

	resp, body = ts.do(t, http.MethodPut, "/auctions/1", map[string]any{"name": " ", "date": "2025-09-09"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, []any{"name"}, body["fields"])

	assert.Len(t, ts.list(t, "?search=roja"), 1)
	assert.Len(t, ts.list(t, "?search=2025-09"), 1)
	assert.Empty(t, ts.list(t, "?search=televisor"))

	resp, body = ts.do(t, http.MethodDelete, "/auctions/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "auction deleted", body["message"])

	resp, body = ts.do(t, http.MethodDelete, "/auctions/1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "auction not found", body["message"])

	resp, body = ts.do(t, http.MethodPost, "/auctions", map[string]any{"name": "Nueva", "date": "2025-07-01", "minOffer": 1})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.EqualValues(t, 2, body["id"])
}

func TestNotFoundAndBadIDs(t *testing.T) {
	ts := newTestServer(t)

	for _, tc := range []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, "/auctions/9", nil},
		{http.MethodPut, "/auctions/9", map[string]any{"name": "a", "date": "b"}},
		{http.MethodDelete, "/auctions/9", nil},
		{http.MethodPost, "/auctions/9/bids", map[string]any{"number": 1, "amount": 1}},
		{http.MethodPut, "/auctions/9/finalize", map[string]any{"winnerNumber": 1}},
	} {
		resp, body := ts.do(t, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, tc.path)
		assert.Equal(t, "auction not found", body["message"], tc.path)
	}

	resp, body := ts.do(t, http.MethodGet, "/auctions/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid auction id", body["message"])

	r, err := http.Get(ts.URL + "/uploads/missing.jpg")
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusNotFound, r.StatusCode)
}

func TestWebSocketReceivesBidEvents(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/auctions", map[string]any{"name": "Rifa", "date": "2025-07-01", "minOffer": 1})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws?auction=1", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return ts.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, _ := ts.do(t, http.MethodPost, "/auctions/1/bids", map[string]any{"number": 3, "amount": 10})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var e map[string]any
	require.NoError(t, json.Unmarshal(data, &e))
	assert.Equal(t, "bid_accepted", e["type"])
	assert.EqualValues(t, 1, e["auctionId"])
	assert.EqualValues(t, 3, e["number"])
	assert.Equal(t, "10", e["currentMaxOffer"])
}

package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kd2675/image-back-server/internal/cache"
	"github.com/kd2675/image-back-server/internal/config"
	"github.com/kd2675/image-back-server/internal/processor"
	"github.com/kd2675/image-back-server/internal/storage"
)

var urlPattern = regexp.MustCompile(`^\d{4}/\d{2}/\d{2}/[0-9a-f-]{36}\.png$`)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	variantCache := cache.NewVariantCache(cfg.Cache.Capacity, time.Minute, cfg.Cache.MaxEntryBytes)
	store := storage.New(t.TempDir(), variantCache, cfg.MaxGenerations)
	return New(cfg, store, variantCache)
}

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x += 3 {
		for y := 0; y < height; y += 3 {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: 80, B: uint8(y % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type filePart struct {
	field    string
	filename string
	content  []byte
}

func multipartBody(t *testing.T, parts ...filePart) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, part := range parts {
		fw, err := writer.CreateFormFile(part.field, part.filename)
		require.NoError(t, err)
		_, err = fw.Write(part.content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func doRequest(s *Server, method, target, contentType string, body *bytes.Buffer) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func uploadImage(t *testing.T, s *Server, filename string, content []byte) string {
	t.Helper()
	body, contentType := multipartBody(t, filePart{field: "file", filename: filename, content: content})
	rec := doRequest(s, http.MethodPost, "/upload", contentType, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.URL
}

func TestUpload(t *testing.T) {
	s := newTestServer(t)

	url := uploadImage(t, s, "photo.png", testPNG(t, 320, 240))
	assert.Regexp(t, urlPattern, url)
}

func TestUploadWithoutFile(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/upload", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadEmptyFile(t *testing.T) {
	s := newTestServer(t)

	body, contentType := multipartBody(t, filePart{field: "file", filename: "photo.png"})
	rec := doRequest(s, http.MethodPost, "/upload", contentType, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadUnsupportedFormat(t *testing.T) {
	s := newTestServer(t)

	body, contentType := multipartBody(t, filePart{field: "file", filename: "photo.webp", content: testPNG(t, 32, 24)})
	rec := doRequest(s, http.MethodPost, "/upload", contentType, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported image format")
}

func TestUploadBatchMixedResults(t *testing.T) {
	s := newTestServer(t)

	body, contentType := multipartBody(t,
		filePart{field: "files", filename: "good.png", content: testPNG(t, 64, 48)},
		filePart{field: "files", filename: "empty.png"},
	)
	rec := doRequest(s, http.MethodPost, "/upload/batch", contentType, body)
	require.Equal(t, http.StatusOK, rec.Code)

	var results []batchUploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 2)

	assert.True(t, results[0].Success)
	assert.Regexp(t, urlPattern, results[0].URL)
	assert.False(t, results[1].Success)
	assert.Equal(t, "empty.png", results[1].OriginalFilename)
	assert.NotEmpty(t, results[1].Error)
}

func TestGetImageOriginal(t *testing.T) {
	s := newTestServer(t)

	url := uploadImage(t, s, "photo.png", testPNG(t, 320, 240))
	rec := doRequest(s, http.MethodGet, "/images/"+url, "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), path.Base(url))

	img, err := processor.Decode(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 240, img.Bounds().Dy())
}

func TestGetImageResized(t *testing.T) {
	s := newTestServer(t)

	url := uploadImage(t, s, "photo.png", testPNG(t, 320, 240))
	rec := doRequest(s, http.MethodGet, "/images/"+url+"?width=150&height=150", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	img, err := processor.Decode(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 150, img.Bounds().Dx())
	assert.Equal(t, 150, img.Bounds().Dy())
}

func TestGetImageSingleDimensionServesOriginal(t *testing.T) {
	s := newTestServer(t)

	url := uploadImage(t, s, "photo.png", testPNG(t, 320, 240))
	rec := doRequest(s, http.MethodGet, "/images/"+url+"?width=150", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	img, err := processor.Decode(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 240, img.Bounds().Dy())
}

func TestGetImageNotFound(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/images/2024/01/01/nope.png", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(s, http.MethodGet, "/images/2024/01/01/nope.png?width=10&height=10", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStats(t *testing.T) {
	s := newTestServer(t)

	uploadImage(t, s, "photo.png", testPNG(t, 64, 48))
	rec := doRequest(s, http.MethodGet, "/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats struct {
		Store storage.Stats `json:"store"`
		Cache cache.Stats   `json:"cache"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Store.StoredImages)
}

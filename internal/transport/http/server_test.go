package http

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appsvc "facemask-api/internal/app"
	"facemask-api/internal/bootstrap"
	"facemask-api/internal/config"
	"facemask-api/internal/model"
	"facemask-api/internal/stats"
	"facemask-api/internal/upload"
	"facemask-api/internal/vision"
)

const testMaxBytes = 1 << 20

type fixedModel struct {
	p float32
}

func (m fixedModel) Run(vision.Tensor) ([]float32, error) {
	return []float32{m.p}, nil
}

func newTestApp(t *testing.T, m vision.Model) *bootstrap.App {
	t.Helper()

	cfg := &config.Config{
		App: config.AppConfig{Name: "facemask-api", Env: "test", GinMode: gin.TestMode},
		Vision: config.VisionConfig{
			InputSize: 120,
			Threshold: vision.DefaultThreshold,
		},
		Upload: config.UploadConfig{
			Dir:               t.TempDir(),
			MaxBytes:          testMaxBytes,
			AllowedExtensions: []string{"png", "jpg", "jpeg"},
		},
	}

	scratch, err := upload.NewScratchStore(cfg.Upload.Dir)
	require.NoError(t, err)
	predictor := vision.NewPredictor(m, cfg.Vision.InputSize, cfg.Vision.Threshold)
	recorder := stats.NewRecorder()
	svc := appsvc.NewPredictService(predictor, scratch, upload.NewExtensions(cfg.Upload.AllowedExtensions...), zap.NewNop(),
		appsvc.WithEvents(recorder))

	return &bootstrap.App{
		Config:         cfg,
		Logger:         zap.NewNop(),
		Predictor:      predictor,
		Scratch:        scratch,
		Stats:          recorder,
		PredictService: svc,
		StartedAt:      time.Now(),
	}
}

func buildMultipartBody(t *testing.T, field, filename string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 5), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func doPredict(t *testing.T, router http.Handler, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body["error"]
}

func assertScratchEmpty(t *testing.T, app *bootstrap.App) {
	t.Helper()
	entries, err := os.ReadDir(app.Scratch.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPredictSuccess(t *testing.T) {
	app := newTestApp(t, fixedModel{p: 0.93})
	router := NewRouter(app)

	body, ct := buildMultipartBody(t, "image", "face.png", testPNG(t))
	resp := doPredict(t, router, body, ct)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Len(t, got, 2)
	assert.Equal(t, model.LabelMask, got["class"])
	assert.InDelta(t, 0.93, got["confidence"], 1e-6)
	assert.NotEmpty(t, resp.Header().Get("X-Request-ID"))
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
	assertScratchEmpty(t, app)
}

func TestPredictThresholdIsStrict(t *testing.T) {
	router := NewRouter(newTestApp(t, fixedModel{p: 0.5}))

	body, ct := buildMultipartBody(t, "image", "face.jpeg", testPNG(t))
	resp := doPredict(t, router, body, ct)

	require.Equal(t, http.StatusOK, resp.Code)
	var got model.Prediction
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, model.LabelNoMask, got.Class)
	assert.Equal(t, 0.5, got.Confidence)
}

func TestPredictMissingImageField(t *testing.T) {
	router := NewRouter(newTestApp(t, fixedModel{p: 0.9}))

	body, ct := buildMultipartBody(t, "photo", "face.png", testPNG(t))
	resp := doPredict(t, router, body, ct)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "No image provided", decodeError(t, resp))

	resp = doPredict(t, router, bytes.NewBufferString(`{"image":"x"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "No image provided", decodeError(t, resp))
}

func TestPredictEmptyFilename(t *testing.T) {
	app := newTestApp(t, fixedModel{p: 0.9})
	router := NewRouter(app)

	body, ct := buildMultipartBody(t, "image", "", testPNG(t))
	resp := doPredict(t, router, body, ct)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "No selected file", decodeError(t, resp))
	assertScratchEmpty(t, app)
}

func TestPredictTextFieldIsNotAFile(t *testing.T) {
	app := newTestApp(t, fixedModel{p: 0.9})
	router := NewRouter(app)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("image", "hello"))
	require.NoError(t, writer.Close())

	resp := doPredict(t, router, body, writer.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "No image provided", decodeError(t, resp))
	assertScratchEmpty(t, app)
}

func TestPredictSkipsTextFieldBeforeFile(t *testing.T) {
	router := NewRouter(newTestApp(t, fixedModel{p: 0.9}))

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("image", "hello"))
	part, err := writer.CreateFormFile("image", "face.png")
	require.NoError(t, err)
	_, err = part.Write(testPNG(t))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	resp := doPredict(t, router, body, writer.FormDataContentType())
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var got model.Prediction
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, model.LabelMask, got.Class)
}

func TestPredictInvalidFileType(t *testing.T) {
	app := newTestApp(t, fixedModel{p: 0.9})
	router := NewRouter(app)

	for _, name := range []string{"face.gif", "face", "face.png.exe", "face.txt", "face."} {
		t.Run(name, func(t *testing.T) {
			body, ct := buildMultipartBody(t, "image", name, testPNG(t))
			resp := doPredict(t, router, body, ct)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.Equal(t, "Invalid file type", decodeError(t, resp))
		})
	}
	assertScratchEmpty(t, app)
}

func TestPredictExtensionIsCaseInsensitive(t *testing.T) {
	router := NewRouter(newTestApp(t, fixedModel{p: 0.1}))

	for _, name := range []string{"FACE.PNG", "face.Jpg", "face.JPEG"} {
		body, ct := buildMultipartBody(t, "image", name, testPNG(t))
		resp := doPredict(t, router, body, ct)
		assert.Equal(t, http.StatusOK, resp.Code, name)
	}
}

func TestPredictCorruptImage(t *testing.T) {
	app := newTestApp(t, fixedModel{p: 0.9})
	router := NewRouter(app)

	body, ct := buildMultipartBody(t, "image", "x.jpg", []byte("this is not an image at all"))
	resp := doPredict(t, router, body, ct)

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	msg := decodeError(t, resp)
	assert.True(t, strings.HasPrefix(msg, "decode image"), msg)
	assertScratchEmpty(t, app)
	assert.Equal(t, int64(1), app.Stats.Summary().Failures)
}

func TestPredictTooLarge(t *testing.T) {
	app := newTestApp(t, fixedModel{p: 0.9})
	router := NewRouter(app)

	body, ct := buildMultipartBody(t, "image", "big.png", bytes.Repeat([]byte("a"), testMaxBytes+10))
	resp := doPredict(t, router, body, ct)

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
	assert.Equal(t, "Image too large", decodeError(t, resp))
	assertScratchEmpty(t, app)
}

func TestPredictPreflight(t *testing.T) {
	router := NewRouter(newTestApp(t, fixedModel{p: 0.9}))

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestHealthAndStats(t *testing.T) {
	router := NewRouter(newTestApp(t, fixedModel{p: 0.2}))

	body, ct := buildMultipartBody(t, "image", "face.png", testPNG(t))
	require.Equal(t, http.StatusOK, doPredict(t, router, body, ct).Code)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &health))
	assert.Equal(t, "facemask-api", health["app"])
	assert.Equal(t, []interface{}{1.0, 120.0, 120.0, 3.0}, health["model"].(map[string]interface{})["input_shape"])

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	var summary stats.Summary
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &summary))
	assert.Equal(t, int64(1), summary.TotalRequests)
	assert.Equal(t, int64(1), summary.ByClass[model.LabelNoMask])
}

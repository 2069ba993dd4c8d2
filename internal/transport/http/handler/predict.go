package handler

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"facemask-api/internal/app"
	"facemask-api/internal/transport/http/middleware"
	"facemask-api/internal/transport/http/response"
	"facemask-api/internal/upload"
)

const (
	formField = "image"
	// room for multipart boundaries, headers and other fields around the file part
	multipartOverhead = 1 << 20
)

// PredictHandler serves POST /predict.
type PredictHandler struct {
	service  *app.PredictService
	maxBytes int64
	logger   *zap.Logger
}

func NewPredictHandler(service *app.PredictService, maxBytes int64, logger *zap.Logger) *PredictHandler {
	return &PredictHandler{service: service, maxBytes: maxBytes, logger: logger}
}

// Predict accepts a multipart form with an "image" file and returns the
// predicted class and its confidence. The file part is streamed straight into
// the scratch store.
func (h *PredictHandler) Predict(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	}

	part, err := findFilePart(c.Request, formField)
	if err != nil {
		if isTooLarge(err) {
			response.Error(c, http.StatusRequestEntityTooLarge, upload.ErrTooLarge.Error())
			return
		}
		response.Error(c, http.StatusBadRequest, upload.ErrNoImage.Error())
		return
	}
	defer part.Close()

	var body io.Reader = part
	if h.maxBytes > 0 {
		body = http.MaxBytesReader(c.Writer, part, h.maxBytes)
	}

	pred, err := h.service.Predict(c.Request.Context(), app.Upload{
		RequestID: middleware.GetRequestID(c),
		Filename:  part.FileName(),
		Body:      body,
	})
	if err != nil {
		switch {
		case upload.IsValidationError(err):
			response.Error(c, http.StatusBadRequest, err.Error())
		case isTooLarge(err):
			response.Error(c, http.StatusRequestEntityTooLarge, upload.ErrTooLarge.Error())
		default:
			_ = c.Error(err)
			h.logger.Error("prediction failed", zap.String("request_id", middleware.GetRequestID(c)), zap.Error(err))
			response.Error(c, http.StatusInternalServerError, app.PublicMessage(err))
		}
		return
	}

	response.OK(c, pred)
}

// findFilePart returns the first part named field that carries a filename
// parameter. The parameter may be empty; parts without it are plain form
// values and are skipped.
func findFilePart(r *http.Request, field string) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, http.ErrMissingFile
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == field && hasFilenameParam(part) {
			return part, nil
		}
		_ = part.Close()
	}
}

func hasFilenameParam(part *multipart.Part) bool {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return false
	}
	_, ok := params["filename"]
	return ok
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

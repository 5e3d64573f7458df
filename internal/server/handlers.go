package server

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/piwi3910/WaybillPack/internal/archive"
	"github.com/piwi3910/WaybillPack/internal/delivery"
	"github.com/piwi3910/WaybillPack/internal/export"
	"github.com/piwi3910/WaybillPack/internal/logger"
	"github.com/piwi3910/WaybillPack/internal/model"
	"go.uber.org/zap"
)

// Form field and response headers of the packing endpoint.
const (
	uploadField   = "archive"
	captionHeader = "X-Waybill-Caption"
	batchHeader   = "X-Batch-ID"
)

// packResponse is returned when the document was handed to a deliverer.
type packResponse struct {
	BatchID   string                `json:"batch_id"`
	Receipt   delivery.Receipt      `json:"receipt"`
	Documents []model.DocumentStats `json:"documents"`
	Failures  []failureResponse     `json:"failures,omitempty"`
	Waybills  int                   `json:"waybills"`
	Sheets    int                   `json:"sheets"`
}

type failureResponse struct {
	Document string `json:"document"`
	Message  string `json:"message"`
}

// handlePack accepts a ZIP of PDFs (or a single PDF) and responds with the
// merged document. The per-request workspace is always removed.
func (s *Server) handlePack(c *gin.Context) {
	log := logger.GetGinLogger(c)

	if s.cfg.Server.MaxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.Server.MaxUploadSize)
	}
	header, err := c.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Upload exceeds the size limit"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No archive uploaded"})
		return
	}

	ws, err := archive.NewWorkspace(s.cfg.Server.WorkDir)
	if err != nil {
		log.Error("Failed to create workspace", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to prepare workspace"})
		return
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			log.Warn("Failed to remove workspace", zap.String("dir", ws.Dir), zap.Error(err))
		}
	}()

	docs, err := s.saveUpload(c, ws, header)
	if err != nil {
		s.fail(c, err)
		return
	}
	log.Info("Upload received",
		zap.String("filename", header.Filename),
		zap.Int64("size", header.Size),
		zap.Int("documents", len(docs)),
	)

	ctx := c.Request.Context()
	if s.cfg.Pipeline.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Pipeline.JobTimeout)
		defer cancel()
	}

	name := s.outputName()
	outPath := ws.Path(name)
	result, err := s.builder.Build(ctx, docs, outPath, export.OptionsFromConfig(s.cfg.Layout, s.cfg.Export))
	if err != nil {
		s.fail(c, err)
		return
	}

	artifact := delivery.Artifact{Path: outPath, Name: name, Result: result}
	if s.deliverer == nil {
		c.Header(captionHeader, delivery.Caption(result))
		c.Header(batchHeader, result.ID)
		c.FileAttachment(outPath, name)
		return
	}

	receipt, err := s.deliverer.Deliver(ctx, artifact)
	if err != nil {
		log.Error("Delivery failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to deliver the merged document"})
		return
	}

	resp := packResponse{
		BatchID:   result.ID,
		Receipt:   receipt,
		Documents: result.Documents,
		Waybills:  result.TotalWaybills(),
		Sheets:    len(result.Sheets),
	}
	for _, f := range result.Failures {
		resp.Failures = append(resp.Failures, failureResponse{Document: f.Document, Message: f.Message})
	}
	c.Header(batchHeader, result.ID)
	c.JSON(http.StatusOK, resp)
}

// saveUpload stores the upload in the workspace and returns the PDFs to process.
func (s *Server) saveUpload(c *gin.Context, ws *archive.Workspace, header *multipart.FileHeader) ([]string, error) {
	if archive.IsPDF(header.Filename) {
		dst := ws.Path("docs", filepath.Base(header.Filename))
		if err := c.SaveUploadedFile(header, dst); err != nil {
			return nil, err
		}
		return []string{dst}, nil
	}

	upload := ws.Path("upload.zip")
	if err := c.SaveUploadedFile(header, upload); err != nil {
		return nil, err
	}
	return archive.ExtractPDFs(upload, ws.Path("docs"), s.cfg.Archive)
}

func (s *Server) outputName() string {
	if s.cfg.Export.OutputName != "" {
		return filepath.Base(s.cfg.Export.OutputName)
	}
	return model.DefaultAppConfig().Export.OutputName
}

// fail writes an error response derived from the error taxonomy.
func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.GetGinLogger(c).Error("Request failed", zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{
		"error":      delivery.FailureMessage(err),
		"request_id": logger.GetRequestID(c),
	})
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidArchive):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrEmptyResult), errors.Is(err, model.ErrRasterizationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

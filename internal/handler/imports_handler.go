package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/boddenberg/crm-leads-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const importFormField = "file"

// startImportHandler accepts a multipart upload and answers 202 with the
// queued job. The import itself outlives the request.
func startImportHandler(jobs *service.ImportJobs, maxBytes int64, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/imports")
		defer span.End()

		if maxBytes > 0 {
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "file too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		file, header, err := r.FormFile(importFormField)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "file too large")
				return
			}
			writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not read upload")
			return
		}
		span.SetAttributes(
			attribute.String("import.file", header.Filename),
			attribute.Int("import.bytes", len(data)),
		)

		job, err := jobs.Start(ctx, SessionFromContext(ctx), header.Filename, data)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusAccepted, job)
	}
}

func getImportHandler(jobs *service.ImportJobs, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/imports/{jobId}")
		defer span.End()

		job, err := jobs.Get(ctx, SessionFromContext(ctx).TenantID, chi.URLParam(r, "jobId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

package web

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/agrionboard/internal/core"
	"github.com/JonMunkholm/agrionboard/internal/web/views"
	"github.com/cockroachdb/errors"
)

// multipartOverhead is headroom above the file limit for form boundaries.
const multipartOverhead = 1 << 20

// handleImport accepts a CSV either as a multipart "file" field or as the raw
// request body. ?dryRun=true validates without saving.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	payload, partner, err := readImportPayload(r, maxSize)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if partner == "" {
		s.respondError(w, r, core.ValidationErrorf("partner is required"))
		return
	}

	ctx := r.Context()
	if s.cfg.Import.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Import.Timeout)
		defer cancel()
	}

	result, err := s.service.ImportRecords(ctx, payload, core.ImportOptions{
		AssignedPartner: partner,
		DryRun:          parseBoolParam(r, "dryRun"),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = views.ImportReport(result).Render(r.Context(), w)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func readImportPayload(r *http.Request, maxSize int64) ([]byte, string, error) {
	partner := r.URL.Query().Get("partner")

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxSize); err != nil {
			return nil, "", tooLarge(err, maxSize)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, "", core.ValidationErrorf("no file provided")
		}
		defer file.Close()
		if partner == "" {
			partner = r.FormValue("partner")
		}
		data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
		if err != nil {
			return nil, "", errors.Wrap(err, "read upload")
		}
		return data, strings.TrimSpace(partner), nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxSize+1))
	if err != nil {
		return nil, "", tooLarge(err, maxSize)
	}
	return data, strings.TrimSpace(partner), nil
}

func tooLarge(err error, maxSize int64) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return core.ValidationErrorf("file too large: maximum size is %d bytes", maxSize)
	}
	return core.ValidationErrorf("invalid upload: %v", err)
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.service.ImportLimiter().Status())
}

// handleExport streams the filtered records as CSV. The file is rendered in
// memory first so a failure can still be reported as an error response.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	spec, err := parseFilter(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if _, err := s.service.ExportRecords(r.Context(), &buf, spec); err != nil {
		s.respondError(w, r, err)
		return
	}

	filename := "onboarding-" + time.Now().UTC().Format("20060102") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = buf.WriteTo(w)
}

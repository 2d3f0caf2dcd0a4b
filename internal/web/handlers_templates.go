package web

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/core"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/fileio"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/store"
)

// TemplateSummary is the list form of a template.
type TemplateSummary struct {
	ID         string `json:"id"`
	Channel    string `json:"channel,omitempty"`
	Name       string `json:"name,omitempty"`
	Key        string `json:"key,omitempty"`
	Attributes int    `json:"attributes"`
	Source     string `json:"source,omitempty"`
}

// handleListTemplates lists registered templates, optionally filtered by ?channel=.
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates := s.service.ListTemplates()
	if ch := r.URL.Query().Get("channel"); ch != "" {
		templates = core.ByChannel(ch)
	}

	out := make([]TemplateSummary, len(templates))
	for i, t := range templates {
		out[i] = TemplateSummary{
			ID:         t.ID,
			Channel:    t.Channel,
			Name:       t.Name,
			Key:        t.Key,
			Attributes: len(t.Attributes),
			Source:     t.Source,
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"templates": out,
		"count":     len(out),
		"channels":  core.Channels(),
	})
}

// handleGetTemplate returns a template with its attributes and output columns.
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.service.Template(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"template": t,
		"columns":  t.Columns(),
	})
}

// handleImport runs an import job for the uploaded file.
//
// The file is sent either as multipart field "file" or as the raw body.
// Query parameters: format, filename, tenant_id, job_name.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	src, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	q := r.URL.Query()
	res, err := s.service.Import(r.Context(), core.ImportRequest{
		TemplateID: chi.URLParam(r, "id"),
		TenantID:   q.Get("tenant_id"),
		JobName:    q.Get("job_name"),
		Type:       store.JobType(strings.ToUpper(q.Get("job_type"))),
		Source:     src,
	})
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handlePreview dry-runs a template over the uploaded file. No job is
// created. Query parameters: tenant_id, max_rows.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	src, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	resp, err := s.service.Preview(r.Context(), core.PreviewRequest{
		TemplateID: chi.URLParam(r, "id"),
		TenantID:   r.URL.Query().Get("tenant_id"),
		Source:     src,
		MaxRows:    parseIntParam(r, "max_rows", core.DefaultPreviewRows),
	})
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleExport runs an export job over the uploaded product rows.
//
// Query parameters: formats (comma separated, default csv), include_invalid,
// name (base file name), tenant_id, job_name, and download=<format> to
// receive that file's bytes instead of the JSON summary.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	src, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	q := r.URL.Query()
	formats, err := parseFormats(q.Get("formats"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	var download fileio.Format
	if d := q.Get("download"); d != "" {
		if download, err = fileio.ParseFormat(d); err != nil {
			s.respondError(w, r, err, 0)
			return
		}
		if !slices.Contains(formats, download) {
			formats = append(formats, download)
		}
	}

	res, err := s.service.Export(r.Context(), core.ExportRequest{
		TemplateID:     chi.URLParam(r, "id"),
		TenantID:       q.Get("tenant_id"),
		JobName:        q.Get("job_name"),
		Type:           store.JobType(strings.ToUpper(q.Get("job_type"))),
		Source:         src,
		Formats:        formats,
		IncludeInvalid: parseBoolParam(r, "include_invalid"),
		FileName:       q.Get("name"),
	})
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	if download != "" {
		for _, f := range res.Files {
			if f.Format != download {
				continue
			}
			w.Header().Set("Content-Type", f.ContentType)
			w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
			w.Header().Set("X-Job-ID", res.JobID)
			w.WriteHeader(http.StatusOK)
			w.Write(f.Data)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, res)
}

// readUpload turns the request body into a row source. The size limit
// comes from PIPELINE_MAX_UPLOAD_MB. With PIPELINE_REMOTE_FILES enabled,
// ?file_url= names an http or https file to fetch instead.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*fileio.Source, error) {
	limit := s.cfg.Pipeline.MaxUploadBytes()
	if fileURL := r.URL.Query().Get("file_url"); fileURL != "" {
		return s.remoteSource(r, fileURL, limit)
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	var (
		data        []byte
		name        = r.URL.Query().Get("filename")
		contentType = r.Header.Get("Content-Type")
	)

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) {
				return nil, core.ErrNoFile
			}
			return nil, uploadError(err, limit)
		}
		defer file.Close()
		if data, err = io.ReadAll(file); err != nil {
			return nil, uploadError(err, limit)
		}
		if name == "" {
			name = header.Filename
		}
		mediaType, _, _ = mime.ParseMediaType(header.Header.Get("Content-Type"))
	} else {
		var err error
		if data, err = io.ReadAll(r.Body); err != nil {
			return nil, uploadError(err, limit)
		}
	}
	if len(data) == 0 {
		return nil, core.ErrNoFile
	}

	format, err := uploadFormat(r.URL.Query().Get("format"), name, mediaType)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "upload." + format.Extension()
	}
	return fileio.BytesSource(data, fileio.Options{Format: format}).Named(name), nil
}

func (s *Server) remoteSource(r *http.Request, fileURL string, limit int64) (*fileio.Source, error) {
	if !s.cfg.Pipeline.RemoteFiles {
		return nil, fmt.Errorf("%w: file_url is disabled, upload the file instead", errBadRequest)
	}
	var opts fileio.Options
	if f := r.URL.Query().Get("format"); f != "" {
		format, err := fileio.ParseFormat(f)
		if err != nil {
			return nil, err
		}
		opts.Format = format
	}
	src, err := fileio.URLSource(fileURL, opts, fileio.Fetcher{Client: s.fetch, MaxBytes: limit})
	if errors.Is(err, fileio.ErrFetch) {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return src, err
}

func uploadError(err error, limit int64) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: limit is %d MB", core.ErrFileTooLarge, limit>>20)
	}
	return fmt.Errorf("%w: read upload: %v", errBadRequest, err)
}

var mediaFormats = map[string]fileio.Format{
	"text/csv":                  fileio.FormatCSV,
	"text/tab-separated-values": fileio.FormatTSV,
	"application/json":          fileio.FormatJSON,
	"application/x-ndjson":      fileio.FormatNDJSON,
	"application/jsonl":         fileio.FormatNDJSON,
	"application/xml":           fileio.FormatXML,
	"text/xml":                  fileio.FormatXML,

	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": fileio.FormatXLSX,
}

// uploadFormat picks the format from the explicit parameter, then the file
// name, then the media type.
func uploadFormat(param, name, mediaType string) (fileio.Format, error) {
	if param != "" {
		return fileio.ParseFormat(param)
	}
	if name != "" {
		if f, err := fileio.FormatFromPath(name); err == nil {
			return f, nil
		}
	}
	if f, ok := mediaFormats[mediaType]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: cannot tell the format of %q, pass ?format=", fileio.ErrUnsupportedFormat, name)
}

func parseFormats(s string) ([]fileio.Format, error) {
	var formats []fileio.Format
	for part := range strings.SplitSeq(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		f, err := fileio.ParseFormat(part)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(formats, f) {
			formats = append(formats, f)
		}
	}
	return formats, nil
}

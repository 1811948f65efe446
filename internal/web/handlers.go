package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/arthur-debert/faraday/formats"
	"github.com/arthur-debert/faraday/types"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createRequest struct {
	Name        string      `json:"name"`
	Columns     []string    `json:"columns"`
	Data        []types.Row `json:"data"`
	Locations   int         `json:"locations"`
	Frequencies int         `json:"frequencies"`
}

type updateRequest struct {
	Name    *string     `json:"name"`
	Columns []string    `json:"columns"`
	Data    []types.Row `json:"data"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid login payload")
		return
	}

	if err := s.service.Authenticate(r.Context(), req.Username, req.Password); err != nil {
		if statusFor(err) == http.StatusUnauthorized {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"username": req.Username})
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	experiments, err := s.service.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, experiments)
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := s.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// handleCreateExperiment stores a table sent by the client, or builds a
// blank one when no columns are given.
func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid experiment payload")
		return
	}

	var (
		exp types.Experiment
		err error
	)
	actor := userFrom(r.Context())
	if len(req.Columns) > 0 {
		exp, err = s.service.Create(r.Context(), req.Name, types.Table{Columns: req.Columns, Data: req.Data}, actor)
	} else {
		exp, err = s.service.CreateBlank(r.Context(), req.Name, req.Locations, req.Frequencies, actor)
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, exp)
}

func (s *Server) handleUpdateExperiment(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid update payload")
		return
	}
	if req.Data == nil {
		writeError(w, http.StatusBadRequest, "data is required")
		return
	}

	exp, err := s.service.Update(r.Context(), r.PathValue("id"), types.UpdateRequest{
		Name:    req.Name,
		Columns: req.Columns,
		Data:    req.Data,
	}, userFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleDeleteExperiment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	removed, err := s.service.Delete(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, fmt.Sprintf("experiment %s not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRederiveExperiment(w http.ResponseWriter, r *http.Request) {
	exp, result, err := s.service.Rederive(r.Context(), r.PathValue("id"), userFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"experiment": exp,
		"transform":  result,
	})
}

func (s *Server) handleDownloadExperiment(w http.ResponseWriter, r *http.Request) {
	format, ok := requestedFormat(w, r)
	if !ok {
		return
	}

	download, err := s.service.Export(r.Context(), r.PathValue("id"), format)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", download.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(download.Content)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxUploadBody); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer func() { _ = file.Close() }()

	result, err := s.service.Upload(r.Context(), header.Filename, file, userFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	format, ok := requestedFormat(w, r)
	if !ok {
		return
	}

	// Buffer first so a failure can still be reported as JSON
	var buf bytes.Buffer
	if err := s.service.Backup(r.Context(), &buf, format); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	filename := fmt.Sprintf("faraday-backup-%s.zip", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// requestedFormat reads the format query parameter, xlsx when absent
func requestedFormat(w http.ResponseWriter, r *http.Request) (*formats.TableFormat, bool) {
	name := r.URL.Query().Get("format")
	if name == "" {
		return formats.XLSX, true
	}
	format, err := formats.Get(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q (supported: %s)", name, strings.Join(formats.List(), ", ")))
		return nil, false
	}
	return format, true
}

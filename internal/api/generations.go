package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/digkill/chimeralens/internal/models"
	"github.com/digkill/chimeralens/internal/service"
)

// multipartOverhead covers form fields and boundaries around the image.
const multipartOverhead = 1 << 20

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "payload_too_large", Message: "source image is too large"})
			return
		}
		s.badRequest(w, "multipart form required")
		return
	}

	file, header, err := r.FormFile("sourceImage")
	if err != nil {
		s.badRequest(w, "sourceImage is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.badRequest(w, "read sourceImage")
		return
	}

	req := service.GenerationRequest{
		TemplateID:  strings.TrimSpace(r.FormValue("templateId")),
		ModelKey:    strings.TrimSpace(r.FormValue("modelKey")),
		SourceImage: data,
		ContentType: header.Header.Get("Content-Type"),
	}
	if req.TemplateID == "" || req.ModelKey == "" {
		s.badRequest(w, "templateId and modelKey are required")
		return
	}
	if raw := strings.TrimSpace(r.FormValue("options")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Options); err != nil {
			s.badRequest(w, "options must be a JSON object")
			return
		}
	}
	if raw := strings.TrimSpace(r.FormValue("faceSelection")); raw != "" {
		var sel models.FaceSelection
		if err := json.Unmarshal([]byte(raw), &sel); err != nil {
			s.badRequest(w, "faceSelection must be a JSON object")
			return
		}
		req.FaceSelection = &sel
	}

	result, err := s.deps.Generations.Generate(r.Context(), accountFrom(r.Context()), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleListGenerations(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	result, err := s.deps.Generations.List(r.Context(), accountFrom(r.Context()), page, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetGeneration(w http.ResponseWriter, r *http.Request) {
	generation, err := s.deps.Generations.Get(r.Context(), accountFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, generation)
}

func (s *Server) handleDownloadGeneration(w http.ResponseWriter, r *http.Request) {
	body, contentType, generation, err := s.deps.Generations.Download(r.Context(), accountFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+generation.ID+path.Ext(generation.ResultImageURL)+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		s.log.Warn("stream download", "generation_id", generation.ID, "err", err)
	}
}

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/loris/pkg/adapter"
	"github.com/m-mizutani/loris/pkg/model"
	"github.com/m-mizutani/loris/pkg/tool"
	"github.com/m-mizutani/loris/pkg/tool/retrieval"
	"github.com/m-mizutani/loris/pkg/usecase/generate"
	"github.com/m-mizutani/loris/pkg/usecase/ingest"
	"github.com/m-mizutani/loris/pkg/utils/logging"
)

// maxUploadSize bounds one uploaded PDF.
const maxUploadSize = 64 << 20

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Default().Warn("failed to write response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, model.ErrInvalidRequest) {
		status = http.StatusBadRequest
	}

	if status >= http.StatusInternalServerError {
		logging.From(r.Context()).Error("request failed", "error", err, "path", r.URL.Path)
	} else {
		logging.From(r.Context()).Warn("request rejected", "error", err, "path", r.URL.Path)
	}

	s.respondJSON(w, status, map[string]string{"detail": err.Error()})
}

// uploadInput extracts the document source from either a multipart file
// field or a JSON body with a URL. Validation of the exactly-one rule
// happens in the ingestion pipeline.
func (s *Server) uploadInput(r *http.Request) (*ingest.Input, error) {
	input := &ingest.Input{}

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			return nil, goerr.Wrap(model.ErrInvalidRequest, "invalid multipart body")
		}
		if file, _, err := r.FormFile("file"); err == nil {
			defer file.Close()
			data, err := io.ReadAll(file)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to read uploaded file")
			}
			input.File = data
		}
		input.URL = r.FormValue("url")
		return input, nil
	}

	var body struct {
		URL string `json:"url"`
	}
	// A missing or malformed body is treated as no URL given; the
	// pipeline rejects empty input.
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
		input.URL = body.URL
	}

	return input, nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	creds, err := s.creds.Resolve(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	clients := s.clients(creds)

	input, err := s.uploadInput(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	pipeline := ingest.New(s.repo, clients.Embedder, clients.Parser)
	output, err := pipeline.Run(ctx, input)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"task_id": output.TaskID,
		"status":  output.Status,
	})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := chi.URLParam(r, "taskID")

	creds, err := s.creds.Resolve(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	clients := s.clients(creds)

	task, err := clients.Parser.GetTask(ctx, taskID, adapter.WithChunks())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{"task": task})
}

type generateRequest struct {
	Messages []model.Message `json:"messages"`
	TaskID   string          `json:"task_id"`
	Model    string          `json:"model"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	creds, err := s.creds.Resolve(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	clients := s.clients(creds)

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, goerr.Wrap(model.ErrInvalidRequest, "invalid request body"))
		return
	}

	registry := tool.New(retrieval.New(s.repo, clients.Embedder, clients.Parser,
		retrieval.WithThreshold(s.retrievalThreshold),
		retrieval.WithLimit(s.retrievalLimit),
	))

	session, err := generate.New(generate.NewInput{
		Chat:       clients.Chat,
		Registry:   registry,
		Model:      req.Model,
		DocumentID: model.DocumentID(req.TaskID),
		Messages:   req.Messages,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	encoder := json.NewEncoder(w)
	err = session.Run(ctx, func(event model.Event) error {
		if err := encoder.Encode(event); err != nil {
			return goerr.Wrap(err, "failed to write stream event")
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		// Headers are already sent; the best we can do is log and
		// close the stream.
		logging.From(ctx).Error("generation stream aborted", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		logging.From(r.Context()).Warn("health check failed", "error", err)
		s.respondJSON(w, http.StatusOK, map[string]string{
			"message": "Database connection failed",
			"status":  "unhealthy",
		})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"message": "Database is available and connected",
		"status":  "healthy",
	})
}

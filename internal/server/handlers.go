package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/cache"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/storage"
	kerr "github.com/hyperjump/kioku/pkg/errors"
	"github.com/hyperjump/kioku/pkg/utils"
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var in models.QueryInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("query request",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("text", utils.Truncate(in.Text, 80)), zap.Bool("image", in.Image != ""))
	out, err := s.engine.Query(r.Context(), &in)
	if err != nil {
		s.fail(w, "query failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	modality := chi.URLParam(r, "modality")
	var req models.StoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.cache.Store(r.Context(), modality, cache.Entry{
		Query:     req.Query,
		Image:     req.Image,
		Embedding: req.Embedding,
		Response:  req.Response,
	})
	if err != nil {
		s.fail(w, "store failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, models.StoreResponse{Modality: modality, ID: id})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	modality := chi.URLParam(r, "modality")
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	_, topK := s.engine.Policy()
	if err := req.Validate(topK); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.cache.Search(r.Context(), modality, req.Embedding, req.K)
	if err != nil {
		s.fail(w, "search failed", err)
		return
	}
	if records == nil {
		records = []*models.EmbeddingRecord{}
	}
	s.respondJSON(w, http.StatusOK, models.SearchResponse{Modality: modality, Records: records, Total: len(records)})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	modality := chi.URLParam(r, "modality")
	s.logger.Debug("flush request", zap.String("modality", modality))
	if err := s.cache.Flush(r.Context(), modality); err != nil {
		s.fail(w, "flush failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"modality": modality, "status": "flushed"})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	modality := chi.URLParam(r, "modality")
	removed, err := s.cache.Reconcile(r.Context(), modality)
	if err != nil {
		s.fail(w, "reconcile failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"modality": modality, "removed": removed})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	threshold, topK := s.engine.Policy()
	resp := models.StatusResponse{
		Store:      s.store.Backend(),
		TopK:       topK,
		Threshold:  threshold,
		Modalities: s.cache.Stats(),
	}
	if bytes, ok, err := storage.DiskUsage(s.store); err != nil {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	} else if ok {
		resp.DiskBytes = bytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := kerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

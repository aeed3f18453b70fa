package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/matome/internal/cluster"
	"github.com/hyperjump/matome/internal/models"
	"github.com/hyperjump/matome/internal/storage"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (s *Server) defaultThreshold() float64 {
	return s.config.Cluster.ThresholdOrDefault(models.DefaultThreshold)
}

func (s *Server) handleCluster(w http.ResponseWriter, r *http.Request) {
	var query models.ClusterQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if query.Threshold == nil {
		t := s.defaultThreshold()
		query.Threshold = &t
	}
	if err := query.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("cluster request", zap.Int("items", len(query.Items)), zap.Float64("threshold", query.ThresholdValue()))
	resp, err := s.engine.Run(r.Context(), query.Items, query.ThresholdValue())
	if err != nil {
		s.respondClusterError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLiveClusters(w http.ResponseWriter, r *http.Request) {
	if s.ingester == nil {
		s.respondError(w, http.StatusNotImplemented, "no feeds configured")
		return
	}
	threshold := s.defaultThreshold()
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		t, err := parseThreshold(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		threshold = t
	}
	fetched, err := s.ingester.Run(r.Context())
	if err != nil {
		s.logger.Error("ingest failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp, err := s.engine.Run(r.Context(), fetched.Items, threshold)
	if err != nil {
		s.respondClusterError(w, err)
		return
	}
	resp.Errors = fetched.Errors
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTitle(w http.ResponseWriter, r *http.Request) {
	var query models.TitleQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	maxWords := query.MaxWords
	if maxWords <= 0 {
		maxWords = s.engine.MaxTitleWords()
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"title": cluster.TitleFor(query.Titles, maxWords)})
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		s.respondError(w, http.StatusNotImplemented, "storage not enabled")
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := intParam(r, "limit", defaultListLimit)
	if err != nil || limit <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	items, err := s.storage.ListItems(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list items failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.storage.CountItems(r.Context())
	if err != nil {
		s.logger.Error("count items failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"items":  items,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		s.respondError(w, http.StatusNotImplemented, "storage not enabled")
		return
	}
	item, err := s.storage.GetItem(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleFeeds(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"feeds": []string{}}
	if s.ingester != nil {
		resp["feeds"] = s.ingester.URLs()
		if last := s.ingester.LastRun(); !last.IsZero() {
			resp["last_run"] = last.UTC()
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.ingester == nil {
		s.respondError(w, http.StatusNotImplemented, "no feeds configured")
		return
	}
	res, err := s.ingester.Run(r.Context())
	if err != nil {
		s.logger.Error("refresh failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"items":  len(res.Items),
		"errors": res.Errors,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{}
	if s.storage != nil {
		count, err := s.storage.CountItems(r.Context())
		if err != nil {
			s.logger.Error("status: count items failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["items"] = count
		if size, err := storage.DatabaseSizeBytes(s.config.Storage.DatabasePath); err == nil {
			resp["disk_usage_bytes"] = size
		}
	}
	if s.ingester != nil {
		resp["feeds"] = len(s.ingester.URLs())
	}
	resp["config"] = map[string]interface{}{
		"embedding_provider":    s.config.Embedding.Provider,
		"embedding_dimensions":  s.config.Embedding.Dimensions,
		"embedding_concurrency": s.config.Embedding.Concurrency,
		"threshold":             s.defaultThreshold(),
		"max_title_words":       s.engine.MaxTitleWords(),
		"centroid":              s.config.Cluster.Centroid,
		"database_path":         s.config.Storage.DatabasePath,
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondClusterError(w http.ResponseWriter, err error) {
	s.logger.Error("clustering failed", zap.Error(err))
	status := http.StatusInternalServerError
	if errors.Is(err, cluster.ErrEmbeddingUnavailable) {
		status = http.StatusBadGateway
	}
	s.respondError(w, status, err.Error())
}

// parseThreshold accepts any finite number; NaN and infinities cannot be compared or encoded.
func parseThreshold(raw string) (float64, error) {
	t, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(t) || math.IsInf(t, 0) {
		return 0, fmt.Errorf("invalid threshold %q", raw)
	}
	return t, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

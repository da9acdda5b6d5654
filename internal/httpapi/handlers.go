package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"

	"horse.fit/techwatch/internal/globaltime"
)

const maxForgetIDs = 1000

type processRequest struct {
	Limit *int `json:"limit"`
}

type forgetRequest struct {
	ItemIDs []int64 `json:"item_ids"`
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.stats.Ping(c.Request().Context()); err != nil {
		s.logger.Error().Err(err).Msg("database ping failed")
		return unavailable(c, "Database unavailable")
	}
	return success(c, map[string]any{
		"service": "techwatch",
		"time":    globaltime.UTC(),
		"topics":  s.topicNames(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.stats.QueryStats(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

func (s *Server) handleProcess(c echo.Context) error {
	topic := strings.ToLower(strings.TrimSpace(c.Param("topic")))
	if _, ok := s.topics[topic]; !ok {
		return failNotFound(c, fmt.Sprintf("Unknown topic %q", topic))
	}

	var req processRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	limit := s.opts.MaxItems
	if req.Limit != nil {
		if *req.Limit < 1 || *req.Limit > s.opts.MaxItems {
			return failValidation(c, map[string]string{"limit": fmt.Sprintf("must be between 1 and %d", s.opts.MaxItems)})
		}
		limit = *req.Limit
	}

	result, err := s.processor.ProcessBatch(c.Request().Context(), topic, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("process batch failed")
		return internalError(c, "Failed to process batch")
	}
	return success(c, result)
}

func (s *Server) handleForget(c echo.Context) error {
	var req forgetRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	if len(req.ItemIDs) == 0 {
		return failValidation(c, map[string]string{"item_ids": "is required"})
	}
	if len(req.ItemIDs) > maxForgetIDs {
		return failValidation(c, map[string]string{"item_ids": fmt.Sprintf("must contain at most %d ids", maxForgetIDs)})
	}
	for _, id := range req.ItemIDs {
		if id <= 0 {
			return failValidation(c, map[string]string{"item_ids": "must be positive integers"})
		}
	}

	result, err := s.processor.Forget(c.Request().Context(), req.ItemIDs)
	if err != nil {
		s.logger.Error().Err(err).Int("items", len(req.ItemIDs)).Msg("forget failed")
		return internalError(c, "Failed to forget items")
	}
	return success(c, result)
}

func (s *Server) topicNames() []string {
	names := make([]string, 0, len(s.topics))
	for topic := range s.topics {
		names = append(names, topic)
	}
	sort.Strings(names)
	return names
}

// decodeJSONBody decodes an optional JSON object body and rejects unknown
// fields. An empty body leaves dst untouched.
func decodeJSONBody(c echo.Context, dst any) error {
	body := c.Request().Body
	if body == nil || body == http.NoBody {
		return nil
	}
	decoder := json.NewDecoder(io.LimitReader(body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

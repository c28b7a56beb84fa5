package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mnemohq/mnemo/pkg/message"
	"github.com/mnemohq/mnemo/pkg/search"
)

// ErrorResponse is the JSON error body for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SearchResponse contains ranked search results.
type SearchResponse struct {
	Query   string                  `json:"query"`
	Count   int                     `json:"count"`
	Results []message.ScoredMessage `json:"results"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleSearch runs a hybrid search. Query params: q (required), channel,
// limit, min_score.
func (s *Server) handleSearch(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "q parameter required"})
	}

	opts := search.Options{
		ChannelID:      c.Query("channel"),
		Limit:          c.QueryInt("limit"),
		MinScore:       c.QueryFloat("min_score"),
		SemanticWeight: s.config.SemanticWeight,
		TemporalDecay:  s.config.TemporalDecay,
	}

	results, err := s.engine.Search(c.Context(), query, opts)
	if err != nil {
		s.logger.Error("search request failed",
			zap.String("query", query),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "search failed"})
	}

	return c.JSON(SearchResponse{
		Query:   query,
		Count:   len(results),
		Results: results,
	})
}

// handleContext assembles and returns the context bundle for a channel.
// Query params: q (optional semantic query), thread, summaries, profiles.
func (s *Server) handleContext(c *fiber.Ctx) error {
	channelID := c.Params("channel")
	if channelID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "channel parameter required"})
	}

	opts := s.config.Memory
	opts.ThreadTS = c.Query("thread")
	opts.IncludeSummaries = c.QueryBool("summaries")
	opts.IncludeProfiles = c.QueryBool("profiles")

	bundle := s.builder.BuildContext(c.Context(), channelID, c.Query("q"), opts)

	return c.JSON(bundle)
}

// handlePoolStats returns a snapshot of database pool metrics.
func (s *Server) handlePoolStats(c *fiber.Ctx) error {
	if s.pool == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "no database pool configured"})
	}

	stats := s.pool.Stats()

	return c.JSON(map[string]any{
		"healthy": s.pool.Healthy(),
		"stats":   stats,
	})
}

// Package httpserver exposes the orchestrator over HTTP: a WebSocket
// conversation endpoint for the game client and a small REST surface for
// corrections, mistakes, reviews, and world events.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/bridges/otelslog"

	orchestration "github.com/polyglotgames/dialogue-core/core"
)

var logger = otelslog.NewLogger("github.com/polyglotgames/dialogue-core/internal/httpserver")

// Server wires the orchestrator and its repositories to HTTP routes.
type Server struct {
	echo         *echo.Echo
	orchestrator *orchestration.Orchestrator
	mistakes     orchestration.MistakeRepository
}

func New(orchestrator *orchestration.Orchestrator, mistakes orchestration.MistakeRepository) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	server := &Server{
		echo:         e,
		orchestrator: orchestrator,
		mistakes:     mistakes,
	}

	e.GET("/healthz", server.health)
	e.GET("/ws/converse/:participant_id/:character_id", server.converse)
	e.POST("/v1/corrections", server.checkCorrections)
	e.GET("/v1/participants/:participant_id/mistakes/top", server.topMistakes)
	e.POST("/v1/participants/:participant_id/review", server.generateReview)
	e.POST("/v1/world/events", server.worldEvent)
	e.POST("/v1/debug/turn", server.debugTurn)

	return server
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type correctionRequest struct {
	Language    string `json:"language"`
	Proficiency string `json:"proficiency"`
	Utterance   string `json:"utterance"`
}

type correctionResponse struct {
	Corrections []correctionPayload `json:"corrections"`
}

type correctionPayload struct {
	Category    string `json:"category"`
	Original    string `json:"original"`
	Correction  string `json:"correction"`
	Explanation string `json:"explanation"`
	Severity    int    `json:"severity"`
}

func toCorrectionPayloads(entries []orchestration.MistakeEntry) []correctionPayload {
	payloads := make([]correctionPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, correctionPayload{
			Category:    entry.Category,
			Original:    entry.Original,
			Correction:  entry.Correction,
			Explanation: entry.Explanation,
			Severity:    entry.Severity,
		})
	}
	return payloads
}

func (s *Server) checkCorrections(c echo.Context) error {
	var request correctionRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if request.Utterance == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "utterance is required")
	}

	entries, err := s.orchestrator.CheckUtterance(c.Request().Context(), request.Language, request.Proficiency, request.Utterance)
	if err != nil {
		logger.ErrorContext(c.Request().Context(), "utterance check failed", "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, "analysis unavailable")
	}

	return c.JSON(http.StatusOK, correctionResponse{Corrections: toCorrectionPayloads(entries)})
}

func (s *Server) topMistakes(c echo.Context) error {
	if s.mistakes == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "mistake log not configured")
	}

	limit := 3
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	categories, err := s.mistakes.TopCategories(c.Request().Context(), c.Param("participant_id"), limit)
	if err != nil {
		logger.ErrorContext(c.Request().Context(), "top categories query failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "mistake log unavailable")
	}

	return c.JSON(http.StatusOK, map[string]any{"categories": categories})
}

type reviewRequest struct {
	Language string `json:"language"`
}

func (s *Server) generateReview(c echo.Context) error {
	var request reviewRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	session, err := s.orchestrator.GenerateReviewSession(c.Request().Context(), c.Param("participant_id"), request.Language)
	if err != nil {
		logger.WarnContext(c.Request().Context(), "review generation failed", "error", err)
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "no review available")
	}

	return c.JSON(http.StatusOK, session)
}

func (s *Server) worldEvent(c echo.Context) error {
	var event orchestration.GameEvent
	if err := c.Bind(&event); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event body")
	}

	if err := s.orchestrator.HandleGameEvent(c.Request().Context(), event); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

type debugTurnRequest struct {
	ParticipantID string `json:"participant_id"`
	CharacterID   string `json:"character_id"`
	Transcript    string `json:"transcript"`
}

type debugTurnResponse struct {
	TurnID      string              `json:"turn_id"`
	Transcript  string              `json:"transcript"`
	Response    string              `json:"response"`
	Status      string              `json:"status"`
	Corrections []correctionPayload `json:"corrections"`
}

// debugTurn runs a text-only turn synchronously and waits for the correction
// side path, trading latency for a complete picture. Development tooling
// only; the game client uses the WebSocket endpoint.
func (s *Server) debugTurn(c echo.Context) error {
	var request debugTurnRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if request.ParticipantID == "" || request.CharacterID == "" || request.Transcript == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "participant_id, character_id, and transcript are required")
	}

	session := s.orchestrator.Session(request.ParticipantID, request.CharacterID)
	turn, err := s.orchestrator.RunTurn(c.Request().Context(), session,
		orchestration.TurnInput{Transcript: request.Transcript})
	if errors.Is(err, orchestration.ErrSessionBusy) {
		return echo.NewHTTPError(http.StatusConflict, "a turn is already in flight")
	}
	if err != nil {
		logger.ErrorContext(c.Request().Context(), "debug turn failed", "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	response := debugTurnResponse{
		TurnID:     turn.ID,
		Transcript: turn.Transcript,
		Response:   turn.Response,
		Status:     string(turn.Status),
	}

	select {
	case report := <-turn.Correction():
		if report != nil {
			response.Corrections = toCorrectionPayloads(report.Entries)
		}
	case <-time.After(30 * time.Second):
	}

	return c.JSON(http.StatusOK, response)
}

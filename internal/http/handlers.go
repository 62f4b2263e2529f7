package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/internal/db"
	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/pkg"
)

// bindError reports a body or parameter that could not be decoded as a
// validation failure, so malformed JSON gets the same 422 as a missing field.
func bindError(err error) error {
	msg := err.Error()
	var herr *echo.HTTPError
	if errors.As(err, &herr) {
		if m, ok := herr.Message.(string); ok {
			msg = m
		}
	}
	return &pkg.ValidationError{Reason: msg}
}

// bindParams fills dst from the query string and then from the body, which
// may be form encoded or JSON.  Body values win.
func bindParams(c echo.Context, dst any) error {
	b := &echo.DefaultBinder{}
	if err := b.BindQueryParams(c, dst); err != nil {
		return bindError(err)
	}
	if err := b.BindBody(c, dst); err != nil {
		return bindError(err)
	}
	return nil
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "AI Farming Assistant API is running"})
}

// handleHealth reports store reachability and, when known, the state of the
// model circuit breaker.
func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	checks := map[string]string{"database": "ok"}
	if err := s.Store.Ping(ctx); err != nil {
		s.log.Warn("health check: store ping failed", "err", err)
		checks["database"] = "unavailable"
		status, code = "degraded", http.StatusServiceUnavailable
	}
	if b, ok := s.Conv.LLM.(interface{ BreakerState() string }); ok {
		checks["llm"] = b.BreakerState()
	}
	return c.JSON(code, map[string]any{"status": status, "checks": checks})
}

func (s *Server) handleCreateFarmer(c echo.Context) error {
	var req pkg.FarmerCreateRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	if err := req.Validate(); err != nil {
		return err
	}
	farmer, err := s.Store.CreateFarmer(c.Request().Context(), req.Profile())
	if err != nil {
		s.log.Error("create farmer", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create farmer profile")
	}
	return c.JSON(http.StatusOK, farmer)
}

func (s *Server) handleGetFarmer(c echo.Context) error {
	farmer, err := s.Store.GetFarmer(c.Request().Context(), c.Param("farmer_id"))
	if errors.Is(err, db.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Farmer not found")
	}
	if err != nil {
		s.log.Error("get farmer", "farmer_id", c.Param("farmer_id"), "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load farmer profile")
	}
	return c.JSON(http.StatusOK, farmer)
}

func (s *Server) handleListFarmers(c echo.Context) error {
	farmers, err := s.Store.ListFarmers(c.Request().Context(), db.FarmerListLimit)
	if err != nil {
		s.log.Error("list farmers", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list farmers")
	}
	return c.JSON(http.StatusOK, farmers)
}

func (s *Server) handleChat(c echo.Context) error {
	var req pkg.ChatRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	if err := req.Validate(); err != nil {
		return err
	}
	reply, err := s.Conv.HandleChat(c.Request().Context(), req)
	if err != nil {
		s.log.Error("chat", "farmer_id", *req.FarmerID, "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process message")
	}
	return c.JSON(http.StatusOK, reply)
}

func (s *Server) handleChatHistory(c echo.Context) error {
	farmerID := c.Param("farmer_id")
	msgs, err := s.Store.ListChatMessages(c.Request().Context(), farmerID, c.QueryParam("session_id"), db.ChatHistoryLimit)
	if err != nil {
		s.log.Error("chat history", "farmer_id", farmerID, "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load chat history")
	}
	return c.JSON(http.StatusOK, msgs)
}

func (s *Server) handleDetectDisease(c echo.Context) error {
	var req pkg.DetectionRequest
	if err := bindParams(c, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}
	reply, err := s.Conv.HandleDiseaseDetection(c.Request().Context(), req)
	if err != nil {
		s.log.Error("disease detection", "farmer_id", req.FarmerID, "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to analyze plant image")
	}
	return c.JSON(http.StatusOK, reply)
}

func (s *Server) handleWeather(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Conv.Weather(c.Param("location")))
}

func (s *Server) handleEscalate(c echo.Context) error {
	var req pkg.EscalationRequest
	if err := bindParams(c, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}
	reply, err := s.Conv.Escalate(c.Request().Context(), req)
	if err != nil {
		s.log.Error("escalate", "farmer_id", req.FarmerID, "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to escalate query")
	}
	return c.JSON(http.StatusOK, reply)
}

func (s *Server) handleListEscalations(c echo.Context) error {
	farmerID := c.Param("farmer_id")
	list, err := s.Store.ListEscalations(c.Request().Context(), farmerID, db.EscalationListLimit)
	if err != nil {
		s.log.Error("list escalations", "farmer_id", farmerID, "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list escalations")
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleTranslate(c echo.Context) error {
	var req pkg.TranslationRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	src, dst, err := req.Validate()
	if err != nil {
		return err
	}
	translated, err := s.Conv.Translate(c.Request().Context(), *req.Text, src, dst)
	if err != nil {
		s.log.Error("translate", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Translation failed")
	}
	return c.JSON(http.StatusOK, pkg.TranslationResponse{
		OriginalText:   *req.Text,
		TranslatedText: translated,
		SourceLanguage: src,
		TargetLanguage: dst,
	})
}

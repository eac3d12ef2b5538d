package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/arnold/gutgoals-api/internal/history"
	"github.com/arnold/gutgoals-api/internal/middleware"
)

type addLogRequest struct {
	Appearance      string   `json:"appearance"`
	Color           string   `json:"color"`
	HealthScore     *int     `json:"health_score"`
	Analysis        string   `json:"analysis"`
	Recommendations []string `json:"recommendations"`
}

func (h *Handler) GetLogs(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	ctx := c.UserContext()

	var (
		entries []history.Entry
		last    time.Time
		hasLast bool
	)
	err := history.ForUser(h.Goals, userID, nil, func(l *history.Log) error {
		var err error
		if entries, err = l.List(ctx); err != nil {
			return err
		}
		if last, hasLast, err = l.LastLoggedAt(ctx); err != nil {
			h.Log.Warn("Failed to read last log time", zap.Stringer("user_id", userID), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to load logs")
	}

	resp := fiber.Map{"logs": entries}
	if hasLast {
		resp["lastLoggedAt"] = last
	}
	return c.JSON(resp)
}

func (h *Handler) AddLog(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req addLogRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.HealthScore == nil || *req.HealthScore < 0 || *req.HealthScore > 100 {
		return errorJSON(c, fiber.StatusBadRequest, "health_score must be between 0 and 100")
	}

	var entry history.Entry
	err := history.ForUser(h.Goals, userID, nil, func(l *history.Log) error {
		var err error
		entry, err = l.Append(c.UserContext(), history.Entry{
			Appearance:      req.Appearance,
			Color:           req.Color,
			HealthScore:     *req.HealthScore,
			Analysis:        req.Analysis,
			Recommendations: req.Recommendations,
		})
		return err
	})
	if err != nil {
		h.Log.Error("Failed to save log", zap.Stringer("user_id", userID), zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to save log")
	}

	h.Hub.Broadcast(userID, WSEvent{Type: EventLogAdded, Data: entry})
	return c.Status(fiber.StatusCreated).JSON(entry)
}

func (h *Handler) GetWeeklyScore(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var (
		score int
		ok    bool
	)
	err := history.ForUser(h.Goals, userID, nil, func(l *history.Log) error {
		var err error
		score, ok, err = l.WeeklyScore(c.UserContext())
		return err
	})
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to compute weekly score")
	}
	if !ok {
		return c.JSON(fiber.Map{"score": nil})
	}
	return c.JSON(fiber.Map{"score": score})
}

package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/arnold/gutgoals-api/internal/goals"
	"github.com/arnold/gutgoals-api/internal/middleware"
)

func (h *Handler) GetCatalog(c *fiber.Ctx) error {
	return c.JSON(goals.Catalog())
}

// GetGoals returns the active set, drawing one on first use and
// backfilling matured replacements.
func (h *Handler) GetGoals(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	store := h.Goals.For(userID)

	if _, err := store.Initialize(c.UserContext()); err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to load goals")
	}

	active, err := store.ProcessReplacementQueue(c.UserContext())
	if err != nil {
		h.Log.Error("Failed to process goal queue", zap.Stringer("user_id", userID), zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to load goals")
	}

	return c.JSON(fiber.Map{"goals": active})
}

// RefreshGoals is called whenever the goals screen regains focus.
func (h *Handler) RefreshGoals(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	active, added, err := h.Goals.For(userID).Replenish(c.UserContext())
	if err != nil {
		h.Log.Error("Failed to process goal queue", zap.Stringer("user_id", userID), zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to refresh goals")
	}

	if added > 0 {
		h.Hub.Broadcast(userID, WSEvent{Type: EventGoalsUpdated, Data: active})
	}
	return c.JSON(fiber.Map{"goals": active, "added": added})
}

func (h *Handler) DismissGoal(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	goalID := c.Params("id")
	if goalID == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid goal ID")
	}

	active, err := h.Goals.For(userID).DeleteAndQueueReplacement(c.UserContext(), goalID)
	if err != nil {
		h.Log.Error("Failed to dismiss goal", zap.Stringer("user_id", userID), zap.String("goal_id", goalID), zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to dismiss goal")
	}

	if h.Scheduler != nil {
		if err := h.Scheduler.ScheduleFromQueue(c.UserContext(), userID); err != nil {
			h.Log.Warn("Failed to schedule goal replacement", zap.Stringer("user_id", userID), zap.Error(err))
		}
	}

	h.Hub.Broadcast(userID, WSEvent{Type: EventGoalsUpdated, Data: active})
	return c.JSON(fiber.Map{"goals": active})
}

func (h *Handler) GetQueue(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	store := h.Goals.For(userID)

	queue, err := store.Queue(c.UserContext())
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to load replacement queue")
	}

	resp := fiber.Map{"queue": queue, "cooldownSeconds": int64(store.Cooldown().Seconds())}
	at, ok, err := store.NextMaturation(c.UserContext())
	if err != nil {
		h.Log.Warn("Failed to compute next goal replacement", zap.Stringer("user_id", userID), zap.Error(err))
	} else if ok {
		resp["nextReplacementAt"] = at.UTC()
	}
	return c.JSON(resp)
}

func (h *Handler) ClearGoals(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	h.Goals.For(userID).ClearAll(c.UserContext())
	h.Hub.Broadcast(userID, WSEvent{Type: EventGoalsCleared})
	return c.SendStatus(fiber.StatusNoContent)
}

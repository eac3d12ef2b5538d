package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/arnold/gutgoals-api/internal/history"
	"github.com/arnold/gutgoals-api/internal/middleware"
	"github.com/arnold/gutgoals-api/internal/models"
)

func (h *Handler) Register(c *fiber.Ctx) error {
	var req models.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Email and password are required")
	}
	if len(req.Password) < 6 {
		return errorJSON(c, fiber.StatusBadRequest, "Password must be at least 6 characters")
	}

	// Check if user exists
	var existingUser models.User
	if err := h.DB.Where("email = ?", req.Email).First(&existingUser).Error; err == nil {
		return errorJSON(c, fiber.StatusConflict, "Email already registered")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to hash password")
	}

	user := models.User{
		Email:    req.Email,
		Password: string(hashedPassword),
		Name:     req.Name,
	}

	if err := h.DB.Create(&user).Error; err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to create user")
	}

	token, err := middleware.GenerateToken(h.JWTSecret, user.ID, user.Email)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to generate token")
	}

	h.Log.Info("User registered", zap.Stringer("user_id", user.ID))
	return c.Status(fiber.StatusCreated).JSON(models.AuthResponse{
		Token: token,
		User:  user,
	})
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Email and password are required")
	}

	var user models.User
	if err := h.DB.Where("email = ?", req.Email).First(&user).Error; err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Invalid credentials")
	}

	token, err := middleware.GenerateToken(h.JWTSecret, user.ID, user.Email)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to generate token")
	}

	return c.JSON(models.AuthResponse{
		Token: token,
		User:  user,
	})
}

func (h *Handler) GetMe(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorJSON(c, fiber.StatusNotFound, "User not found")
		}
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to load user")
	}

	return c.JSON(user)
}

// RegisterDeviceToken saves the FCM token for push notifications
func (h *Handler) RegisterDeviceToken(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req models.DeviceTokenRequest
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Token is required")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", userID).Update("fcm_token", req.Token).Error; err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to save token")
	}

	return c.JSON(fiber.Map{"success": true})
}

// ClearUserData wipes the user's goals, queue and log history. The account
// itself is kept.
func (h *Handler) ClearUserData(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	if err := history.ClearUser(c.UserContext(), h.Goals, userID); err != nil {
		h.Log.Error("Failed to clear user data", zap.Stringer("user_id", userID), zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to clear user data.")
	}

	h.Hub.Broadcast(userID, WSEvent{Type: EventGoalsCleared})
	return c.JSON(fiber.Map{"success": true})
}

package handlers

import (
	"net/http"

	"github.com/AmaniTsuma/smartdesk-backend-sub000/internal/auth"
	"github.com/AmaniTsuma/smartdesk-backend-sub000/internal/repo"
	"github.com/AmaniTsuma/smartdesk-backend-sub000/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// UserHandler handles account administration
type UserHandler struct {
	userRepo    *repo.UserRepository
	authService *auth.Service
}

// NewUserHandler creates a new user handler
func NewUserHandler(userRepo *repo.UserRepository, authService *auth.Service) *UserHandler {
	return &UserHandler{userRepo: userRepo, authService: authService}
}

// ListUsers lists accounts with pagination.
// GET /api/v1/admin/users
func (h *UserHandler) ListUsers(c echo.Context) error {
	limit, err := intQueryParam(c, "limit", 50)
	if err != nil {
		return chatError(c, err)
	}
	offset, err := intQueryParam(c, "offset", 0)
	if err != nil {
		return chatError(c, err)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	users, err := h.userRepo.List(c.Request().Context(), limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list users"})
	}
	total, err := h.userRepo.Count(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list users"})
	}
	return c.JSON(http.StatusOK, models.NewPaginationResult(users, total, limit, offset))
}

// CreateUser registers a new admin or client account.
// POST /api/v1/admin/users
func (h *UserHandler) CreateUser(c echo.Context) error {
	var req models.CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request format"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if existing, err := h.userRepo.GetByEmail(c.Request().Context(), req.Email); err == nil && existing != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Email already registered"})
	}

	hash, err := h.authService.HashPassword(req.Password)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create user"})
	}

	user := &models.User{
		Email:    req.Email,
		Password: hash,
		Name:     req.Name,
		Phone:    req.Phone,
		Role:     req.Role,
		IsActive: true,
	}
	if err := h.userRepo.Create(c.Request().Context(), user); err != nil {
		log.Error().Err(err).Str("email", req.Email).Msg("user creation failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create user"})
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{"user": user})
}

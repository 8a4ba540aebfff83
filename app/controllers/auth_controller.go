package controllers

import (
	"net/http"

	"github.com/shashiranjanraj/ventas/app/repositories"
	"github.com/shashiranjanraj/ventas/app/services"
	"github.com/shashiranjanraj/ventas/pkg/ctx"
)

type AuthController struct {
	service *services.AuthService
	users   *repositories.UserRepository
}

func NewAuthController(service *services.AuthService, users *repositories.UserRepository) *AuthController {
	return &AuthController{service: service, users: users}
}

type LoginInput struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
}

// Login issues an operator token.
func (h *AuthController) Login(c *ctx.Context) {
	var in LoginInput
	if !c.BindJSON(&in) {
		return
	}

	token, user, err := h.service.Login(c.Context(), in.Username, in.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.Success(map[string]any{"token": token, "user": user})
}

// Me returns the authenticated operator.
func (h *AuthController) Me(c *ctx.Context) {
	claims, ok := c.Claims()
	if !ok {
		c.Fail(http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return
	}
	user, err := h.users.FindByID(c.Context(), claims.UserID)
	if err != nil {
		c.NotFound("operator not found")
		return
	}
	c.Success(user)
}

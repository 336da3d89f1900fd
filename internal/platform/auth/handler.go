package auth

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct{ svc *Service }

// RegisterRoutes: /login は公開、/register は admin のみ
func RegisterRoutes(public gin.IRoutes, protected gin.IRoutes, svc *Service) {
	h := &AuthHandler{svc: svc}
	public.POST("/login", h.Login)
	protected.POST("/register", RequireRole(RoleAdmin), h.Register)
}

type LoginRequest struct {
	ID       string `json:"id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid request")
		return
	}

	token, err := h.svc.Login(c.Request.Context(), req.ID, req.Password)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) && !errors.Is(err, ErrAccountDisabled) {
			log.Printf("[ERROR] login: %v", err)
		}
		abort(c, http.StatusUnauthorized, "IDまたはパスワードが間違っています")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"message": "Login successful",
	})
}

type RegisterRequest struct {
	ID       string  `json:"id" binding:"required"`
	Password string  `json:"password" binding:"required"`
	Role     *string `json:"role,omitempty"` // 未指定なら employee
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid request")
		return
	}

	role := ""
	if req.Role != nil {
		role = *req.Role
	}

	if err := h.svc.Register(c.Request.Context(), req.ID, req.Password, role); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"error": gin.H{"code": "CONFLICT", "message": "ID already exists"}})
			return
		}
		if errors.Is(err, ErrInvalidAccount) {
			abort(c, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[ERROR] register: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "INTERNAL", "message": "failed to register account"}})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "registered"})
}

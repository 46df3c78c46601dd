package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"contracthub/apperr"
	"contracthub/config"
	"contracthub/database"
	"contracthub/middleware"
	"contracthub/models"
)

type AuthHandler struct {
	cfg *config.Config
	log *zap.Logger
}

func NewAuthHandler(cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, log: log}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	State    string `json:"state"`
}

type userResponse struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.log, err)
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || !strings.Contains(req.Email, "@") {
		respondError(w, h.log, apperr.ValidationFailed("name and a valid email are required"))
		return
	}
	if len(req.Password) < 8 {
		respondError(w, h.log, apperr.ValidationFailed("password must be at least 8 characters"))
		return
	}

	db := database.GetDB()

	var existing models.User
	if err := db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		respondError(w, h.log, apperr.Conflict("email already registered"))
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(w, h.log, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	user := models.User{Name: req.Name, Email: req.Email, PasswordHash: string(hash)}
	if err := db.Create(&user).Error; err != nil {
		respondError(w, h.log, err)
		return
	}

	token, err := middleware.GenerateToken(&user, h.cfg.JWTExpiration)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	h.setTokenCookie(w, token)

	h.log.Info("user registered", zap.Uint("user_id", user.ID))
	respondJSON(w, http.StatusCreated, map[string]any{
		"token": token,
		"user":  toUserResponse(&user),
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.log, err)
		return
	}

	var user models.User
	if err := database.GetDB().Where("email = ?", req.Email).First(&user).Error; err != nil {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
		return
	}

	token, err := middleware.GenerateToken(&user, h.cfg.JWTExpiration)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	h.setTokenCookie(w, token)

	// A signed state token carries the post-login destination through the
	// login round trip without server-side session storage.
	redirect := "/dashboard"
	if req.State != "" {
		if dest, err := middleware.VerifyRedirectState(req.State); err == nil {
			redirect = dest
		} else {
			h.log.Warn("rejected login state", zap.Error(err))
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"token":    token,
		"user":     toUserResponse(&user),
		"redirect": redirect,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	respondJSON(w, http.StatusOK, toUserResponse(user))
}

// State issues a signed redirect token for an unauthenticated client so
// the frontend can send a user through login and back.
func (h *AuthHandler) State(w http.ResponseWriter, r *http.Request) {
	state, err := middleware.SignRedirectState(r.URL.Query().Get("redirect"), 15*time.Minute)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"state": state})
}

func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cfg.JWTExpiration.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

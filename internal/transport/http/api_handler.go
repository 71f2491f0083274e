package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"quizprep-service/internal/app"
	"quizprep-service/internal/auth"
	"quizprep-service/internal/domain"
)

const (
	requestTimeout = 5 * time.Second
	sessionKey     = "session"
)

// APIHandler serves the REST side of the service: accounts and stored
// mistakes.
type APIHandler struct {
	service *app.PracticeService
	auth    auth.Provider
}

func NewAPIHandler(service *app.PracticeService, provider auth.Provider) *APIHandler {
	return &APIHandler{service: service, auth: provider}
}

type credentialsRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

type removeMistakesRequest struct {
	Subject string   `json:"subject" binding:"required"`
	IDs     []string `json:"ids"`
}

// NewRouter builds the gin engine with every route, including the websocket
// endpoint.
func NewRouter(api *APIHandler, ws *WSHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		log.Info().
			Str("client_ip", param.ClientIP).
			Str("method", param.Method).
			Str("path", param.Path).
			Int("status_code", param.StatusCode).
			Dur("latency", param.Latency).
			Msg("http_request")
		return ""
	}))
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/subjects", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"subjects": domain.Subjects}) })
	r.GET("/ws", gin.WrapF(ws.ServeWS))

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/signup", api.SignUp)
		authGroup.POST("/login", api.Login)
		authGroup.POST("/logout", api.Logout)
		authGroup.GET("/session", api.requireSession, api.CurrentSession)
	}

	practice := r.Group("/", api.requireSession)
	{
		practice.GET("/mistakes", api.ListMistakes)
		practice.POST("/mistakes/remove", api.RemoveMistakes)
		practice.DELETE("/mistakes", api.ClearMistakes)
		practice.DELETE("/seen", api.ClearSeen)
	}
	return r
}

func (h *APIHandler) SignUp(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	session, err := h.auth.SignUp(ctx, req.Identifier, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *APIHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	session, err := h.auth.Login(ctx, req.Identifier, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *APIHandler) Logout(c *gin.Context) {
	token := bearerToken(c.Request)
	if token == "" {
		jsonError(c, http.StatusUnauthorized, string(domain.AuthUnauthenticated), "Missing token")
		return
	}
	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) CurrentSession(c *gin.Context) {
	c.JSON(http.StatusOK, c.MustGet(sessionKey))
}

func (h *APIHandler) ListMistakes(c *gin.Context) {
	scope, ok := scopeFrom(c, c.Query("subject"))
	if !ok {
		return
	}
	mistakes, err := h.service.ListMistakes(c.Request.Context(), scope)
	if err != nil {
		writeError(c, err)
		return
	}
	if mistakes == nil {
		mistakes = []domain.Mistake{}
	}
	c.JSON(http.StatusOK, gin.H{"subject": scope.Subject, "mistakes": mistakes})
}

func (h *APIHandler) RemoveMistakes(c *gin.Context) {
	var req removeMistakesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}
	scope, ok := scopeFrom(c, req.Subject)
	if !ok {
		return
	}
	if err := h.service.RemoveMistakes(c.Request.Context(), scope, req.IDs); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) ClearMistakes(c *gin.Context) {
	scope, ok := scopeFrom(c, c.Query("subject"))
	if !ok {
		return
	}
	if err := h.service.ClearMistakes(c.Request.Context(), scope); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) ClearSeen(c *gin.Context) {
	scope, ok := scopeFrom(c, c.Query("subject"))
	if !ok {
		return
	}
	if err := h.service.ClearSeen(c.Request.Context(), scope); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) requireSession(c *gin.Context) {
	session, err := h.auth.CurrentSession(c.Request.Context(), bearerToken(c.Request))
	if err != nil {
		writeError(c, err)
		c.Abort()
		return
	}
	if session == nil {
		jsonError(c, http.StatusUnauthorized, string(domain.AuthUnauthenticated), "Missing token")
		c.Abort()
		return
	}
	c.Set(sessionKey, session)
	c.Next()
}

func scopeFrom(c *gin.Context, subject string) (domain.Scope, bool) {
	session := c.MustGet(sessionKey).(*auth.Session)
	subject = strings.TrimSpace(subject)
	if subject == "" {
		jsonError(c, http.StatusBadRequest, "invalid_scope", "subject is required")
		return domain.Scope{}, false
	}
	return domain.Scope{UserID: session.UserID, Subject: subject}, true
}

func jsonError(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorPayload{Code: code, Message: message})
}

func writeError(c *gin.Context, err error) {
	code := errorCode(err)
	status := http.StatusInternalServerError
	var authErr *domain.AuthError
	switch {
	case errors.As(err, &authErr):
		switch authErr.Code {
		case domain.AuthUserExists:
			status = http.StatusConflict
		case domain.AuthUserNotFound:
			status = http.StatusNotFound
		default:
			status = http.StatusUnauthorized
		}
	case code == "invalid_scope":
		status = http.StatusBadRequest
	case code == "storage_failed":
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	jsonError(c, status, code, err.Error())
}

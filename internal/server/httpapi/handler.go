package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mlevkov/chatgate/internal/common"
	"github.com/mlevkov/chatgate/internal/server/models"
	"github.com/mlevkov/chatgate/internal/server/relay"
	"github.com/mlevkov/chatgate/internal/server/services"
)

// --- wire types ---

type registerRequest struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	StudentID string `json:"student_id"`
	Password  string `json:"password"`
}

type loginRequest struct {
	LoginID  string `json:"login_id"`
	Password string `json:"password"`
}

type createSessionRequest struct {
	Name string `json:"name"`
}

type updateSessionRequest struct {
	Name     *string `json:"name"`
	IsActive *bool   `json:"is_active"`
}

type deleteSessionsRequest struct {
	IDs []string `json:"ids"`
}

type completionRequest struct {
	Question string `json:"question"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username,omitempty"`
	StudentID string    `json:"student_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IsActive  bool      `json:"is_active"`
}

type messageResponse struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Question  string    `json:"question"`
	Answer    *string   `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		StudentID: u.StudentID,
		CreatedAt: u.CreatedAt,
	}
}

func toSessionResponse(s *models.Session) sessionResponse {
	return sessionResponse{
		ID:        s.ID,
		Name:      s.Name,
		Kind:      string(s.Kind),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		IsActive:  s.IsActive,
	}
}

func toMessageResponse(m *models.Message) messageResponse {
	resp := messageResponse{
		ID:        m.ID,
		SessionID: m.SessionID,
		Question:  m.Question,
		CreatedAt: m.CreatedAt,
	}
	if m.Answer.Valid {
		answer := m.Answer.String
		resp.Answer = &answer
	}
	return resp
}

// writeError maps service errors to HTTP statuses. Not-found and no-changes
// share a status so an unowned id is indistinguishable from a missing one.
func writeError(c *gin.Context, err error) {
	var ue *relay.UpstreamError
	switch {
	case errors.As(err, &ue):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
			"detail":          "upstream error",
			"upstream_status": ue.Status,
			"upstream_body":   ue.Body,
		})
	case errors.Is(err, common.ErrorValidation):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
	case errors.Is(err, common.ErrorConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"detail": err.Error()})
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken):
		unauthorized(c)
	case errors.Is(err, common.ErrorOwnership):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "sessions can only be deleted by their owner"})
	case errors.Is(err, common.ErrorNotFound), errors.Is(err, common.ErrorNoChanges):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"detail": "not found"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
	}
}

func badBody(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid request body"})
}

// kindParam reads the kind query parameter, defaulting to assistant.
func kindParam(c *gin.Context) models.SessionKind {
	return models.SessionKind(c.DefaultQuery("kind", string(models.KindAssistant)))
}

// --- auth ---

func (s *HTTPServer) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c)
		return
	}

	user, err := s.users.Register(c.Request.Context(), services.RegisterRequest{
		Email:     req.Email,
		Username:  req.Username,
		StudentID: req.StudentID,
		Password:  req.Password,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toUserResponse(user))
}

func (s *HTTPServer) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c)
		return
	}

	token, user, err := s.users.Login(c.Request.Context(), req.LoginID, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user_id":      user.ID,
	})
}

// --- sessions ---

func (s *HTTPServer) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c)
		return
	}

	session, err := s.sessions.Create(c.Request.Context(), currentUserID(c), req.Name, kindParam(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toSessionResponse(session))
}

func (s *HTTPServer) listSessions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))
	activeOnly, _ := strconv.ParseBool(c.DefaultQuery("active_only", "false"))

	result, err := s.sessions.List(c.Request.Context(), currentUserID(c), services.ListRequest{
		Kind:       kindParam(c),
		ActiveOnly: activeOnly,
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	items := make([]sessionResponse, 0, len(result))
	for _, session := range result {
		items = append(items, toSessionResponse(session))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": items})
}

func (s *HTTPServer) updateSession(c *gin.Context) {
	var req updateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c)
		return
	}

	session, err := s.sessions.Update(c.Request.Context(), c.Param("id"), currentUserID(c),
		models.SessionPatch{Name: req.Name, IsActive: req.IsActive})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toSessionResponse(session))
}

func (s *HTTPServer) archiveSession(c *gin.Context) {
	if err := s.sessions.Archive(c.Request.Context(), c.Param("id"), currentUserID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (s *HTTPServer) deleteSessions(c *gin.Context) {
	var req deleteSessionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c)
		return
	}

	if err := s.sessions.Delete(c.Request.Context(), currentUserID(c), kindParam(c), req.IDs); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": len(req.IDs)})
}

func (s *HTTPServer) sessionMessages(c *gin.Context) {
	turns, err := s.sessions.Messages(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	items := make([]messageResponse, 0, len(turns))
	for _, m := range turns {
		items = append(items, toMessageResponse(m))
	}
	c.JSON(http.StatusOK, gin.H{"messages": items})
}

// --- completions ---

func sseHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
}

func (s *HTTPServer) streamCompletion(c *gin.Context) {
	var req completionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c)
		return
	}

	events, err := s.completions.Stream(c.Request.Context(), c.Param("id"), currentUserID(c), req.Question)
	if err != nil {
		// an upstream refusal still answers in SSE shape, as a single frame
		var ue *relay.UpstreamError
		if errors.As(err, &ue) {
			s.writeSSERefusal(c, ue)
			return
		}
		writeError(c, err)
		return
	}

	sseHeaders(c)
	for ev := range events {
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", ev.Payload); err != nil {
			return
		}
		c.Writer.Flush()
	}
}

func (s *HTTPServer) writeSSERefusal(c *gin.Context, ue *relay.UpstreamError) {
	code := ue.Status
	if code == 0 {
		code = http.StatusInternalServerError
	}
	frame, err := json.Marshal(map[string]any{"code": code, "message": ue.Body})
	if err != nil {
		writeError(c, common.ErrorInternal)
		return
	}

	sseHeaders(c)
	_, _ = fmt.Fprintf(c.Writer, "data: %s\n\n", frame)
	c.Writer.Flush()
}

// --- export ---

func (s *HTTPServer) exportSession(c *gin.Context) {
	key, url, err := s.exports.Export(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "url": url})
}

package rest

import (
	"net/http"

	"github.com/KevinKickass/aquanest/internal/auth"
	"github.com/KevinKickass/aquanest/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// POST /api/v1/auth/login
func (s *Server) login(c *gin.Context) {
	var creds types.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		badRequest(c, "Invalid request body", err.Error())
		return
	}

	result, err := s.backend.Login(c.Request.Context(), creds)
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := gin.H{"token": result.Token}
	if session, err := auth.NewSession(result.Token, s.now()); err == nil && !session.ExpiresAt.IsZero() {
		resp["expires_at"] = session.ExpiresAt
	}

	s.logger.Info("User logged in", zap.String("email", creds.Email))
	c.JSON(http.StatusOK, resp)
}

// POST /api/v1/auth/register
func (s *Server) register(c *gin.Context) {
	var reg types.Registration
	if err := c.ShouldBindJSON(&reg); err != nil {
		badRequest(c, "Invalid request body", err.Error())
		return
	}

	if err := s.backend.Register(c.Request.Context(), reg); err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "registered"})
}

// GET /api/v1/me
func (s *Server) getProfile(c *gin.Context) {
	profile, err := s.backend.GetProfile(c.Request.Context(), session(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// PATCH /api/v1/me
func (s *Server) updateProfile(c *gin.Context) {
	var req types.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err.Error())
		return
	}

	profile, err := s.backend.UpdateProfile(c.Request.Context(), session(c), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// session is only called behind auth.Middleware.
func session(c *gin.Context) *auth.Session {
	s, _ := auth.FromContext(c)
	return s
}

package rest

import (
	"net/http"
	"strconv"

	"github.com/KevinKickass/aquanest/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func pondID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 0 {
		badRequest(c, "invalid pond id", c.Param("id"))
		return 0, false
	}
	return id, true
}

// GET /api/v1/ponds
func (s *Server) listPonds(c *gin.Context) {
	ponds, err := s.backend.ListPonds(c.Request.Context(), session(c))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ponds": ponds,
		"count": len(ponds),
	})
}

// GET /api/v1/ponds/:id
func (s *Server) getPond(c *gin.Context) {
	id, ok := pondID(c)
	if !ok {
		return
	}

	pond, err := s.backend.GetPond(c.Request.Context(), session(c), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pond)
}

// POST /api/v1/ponds
func (s *Server) createPond(c *gin.Context) {
	var req types.NewPond
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err.Error())
		return
	}

	pond, err := s.backend.CreatePond(c.Request.Context(), session(c), req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.logger.Info("Pond created", zap.Int("pond_id", pond.ID), zap.String("name", pond.Nombre))
	c.JSON(http.StatusCreated, pond)
}

// DELETE /api/v1/ponds/:id
func (s *Server) deletePond(c *gin.Context) {
	id, ok := pondID(c)
	if !ok {
		return
	}

	if err := s.backend.DeletePond(c.Request.Context(), session(c), id); err != nil {
		s.writeError(c, err)
		return
	}

	// The backend delete is authoritative; the notice is best effort.
	if s.notifier != nil {
		s.notifier.PondDeleted(id)
	}
	closed := s.views.UnmountPond(c.Request.Context(), id)

	s.logger.Info("Pond deleted", zap.Int("pond_id", id), zap.Int("views_closed", closed))
	c.JSON(http.StatusOK, gin.H{"message": "pond deleted"})
}

// GET /api/v1/species
func (s *Server) listSpecies(c *gin.Context) {
	species, err := s.backend.ListSpecies(c.Request.Context(), session(c))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"species": species,
		"count":   len(species),
	})
}

// POST /api/v1/species
func (s *Server) createSpecies(c *gin.Context) {
	var req types.NewSpecies
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err.Error())
		return
	}

	species, err := s.backend.CreateSpecies(c.Request.Context(), session(c), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, species)
}

// GET /api/v1/ponds/:id/history
func (s *Server) getPondHistory(c *gin.Context) {
	id, ok := pondID(c)
	if !ok {
		return
	}

	days, err := s.backend.DailyHistory(c.Request.Context(), session(c), id, s.catalog)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pond_id": id,
		"days":    days,
	})
}

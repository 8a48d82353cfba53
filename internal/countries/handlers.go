package countries

import (
	"context"
	"net/http"

	"geminichat-backend/internal/logger"
	"geminichat-backend/internal/models"

	"github.com/gin-gonic/gin"
)

const unavailableNotice = "Country list is temporarily unavailable. Enter your dial code manually."

// Lister returns the country directory.
type Lister interface {
	List(ctx context.Context) ([]models.Country, error)
}

// Handler serves the country directory.
type Handler struct {
	lister Lister
}

func NewHandler(lister Lister) *Handler {
	return &Handler{lister: lister}
}

// ListCountries never fails the request: when the directory is unreachable
// it answers with an empty list and a notice so sign-up stays usable.
func (h *Handler) ListCountries(c *gin.Context) {
	list, err := h.lister.List(c.Request.Context())
	if err != nil {
		lg := logger.Ctx(c.Request.Context())
		lg.Warn().Err(err).Msg("ListCountries: failed to fetch country directory")
		c.JSON(http.StatusOK, gin.H{"countries": []models.Country{}, "notice": unavailableNotice})
		return
	}
	c.JSON(http.StatusOK, gin.H{"countries": list})
}

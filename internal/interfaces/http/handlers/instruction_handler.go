package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/internal/infrastructure/search/opensearch"
)

// InstructionSearcher queries the instruction index.
type InstructionSearcher interface {
	Search(ctx context.Context, q opensearch.Query) (*opensearch.SearchResult, error)
}

// RecordsResponse lists stored records.
type RecordsResponse struct {
	Total   int                   `json:"total"`
	Records []*instruction.Record `json:"records"`
}

// InstructionHandler serves stored parse results.
type InstructionHandler struct {
	repo     instruction.Repository
	searcher InstructionSearcher
	logger   logging.Logger
}

// NewInstructionHandler creates an InstructionHandler. searcher may be nil,
// in which case the search route is not mounted.
func NewInstructionHandler(repo instruction.Repository, searcher InstructionSearcher, logger logging.Logger) *InstructionHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &InstructionHandler{repo: repo, searcher: searcher, logger: logger.Named("instruction_handler")}
}

// RegisterRoutes mounts the lookup routes on r.
func (h *InstructionHandler) RegisterRoutes(r gin.IRouter) {
	if h.searcher != nil {
		r.GET("/instructions/search", h.Search)
	}
	r.GET("/instructions/:inputId", h.ListByInput)
	r.GET("/batches/:batchId/instructions", h.ListByBatch)
}

// ListByInput handles GET /api/v1/instructions/:inputId.
func (h *InstructionHandler) ListByInput(c *gin.Context) {
	records, err := h.repo.ListByInput(c.Request.Context(), c.Param("inputId"))
	if err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, RecordsResponse{Total: len(records), Records: records})
}

// ListByBatch handles GET /api/v1/batches/:batchId/instructions. An
// unknown batch yields an empty list.
func (h *InstructionHandler) ListByBatch(c *gin.Context) {
	records, err := h.repo.ListByBatch(c.Request.Context(), c.Param("batchId"))
	if err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	if records == nil {
		records = []*instruction.Record{}
	}
	c.JSON(http.StatusOK, RecordsResponse{Total: len(records), Records: records})
}

// Search handles GET /api/v1/instructions/search.
func (h *InstructionHandler) Search(c *gin.Context) {
	var q opensearch.Query
	if err := c.ShouldBindQuery(&q); err != nil {
		writeBindError(c, err)
		return
	}
	q.From, q.Size = parsePagination(c)

	res, err := h.searcher.Search(c.Request.Context(), q)
	if err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

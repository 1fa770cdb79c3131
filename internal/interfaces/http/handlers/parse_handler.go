package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/turtacn/sigparse/internal/application/parsing"
	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
)

// ParseService is the slice of *parsing.Parser the API needs.
type ParseService interface {
	ParseWithID(ctx context.Context, id *string, text string) []*instruction.StructuredInstruction
	ParseBatch(ctx context.Context, batchID string, inputs []parsing.Input, mode parsing.Mode) ([]*instruction.StructuredInstruction, error)
}

// ParseRequest is the body of POST /api/v1/parse.
type ParseRequest struct {
	ID   *string `json:"id"`
	Text *string `json:"text" binding:"required"`
}

// ParseResponse carries the records parsed from one input.
type ParseResponse struct {
	Results []*instruction.StructuredInstruction `json:"results"`
}

// BatchParseRequest is the body of POST /api/v1/parse/batch. IDs, when
// given, must match Texts one to one.
type BatchParseRequest struct {
	Texts []string `json:"texts" binding:"required"`
	IDs   []string `json:"ids"`
	Mode  string   `json:"mode"`
}

// BatchParseResponse lists every record of a batch in input order.
type BatchParseResponse struct {
	BatchID string                               `json:"batchId"`
	Mode    string                               `json:"mode,omitempty"`
	Inputs  int                                  `json:"inputs"`
	Results []*instruction.StructuredInstruction `json:"results"`
}

// ParseHandler serves the parse endpoints.
type ParseHandler struct {
	service ParseService
	logger  logging.Logger
	newID   func() string
}

// NewParseHandler creates a ParseHandler.
func NewParseHandler(service ParseService, logger logging.Logger) *ParseHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ParseHandler{service: service, logger: logger.Named("parse_handler"), newID: uuid.NewString}
}

// RegisterRoutes mounts POST /parse and POST /parse/batch on r.
func (h *ParseHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/parse", h.Parse)
	r.POST("/parse/batch", h.ParseBatch)
}

// Parse handles POST /api/v1/parse. Unparseable text still answers 200
// with a single record carrying only id and text.
func (h *ParseHandler) Parse(c *gin.Context) {
	var req ParseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	results := h.service.ParseWithID(c.Request.Context(), req.ID, *req.Text)
	c.JSON(http.StatusOK, ParseResponse{Results: results})
}

// ParseBatch handles POST /api/v1/parse/batch.
func (h *ParseHandler) ParseBatch(c *gin.Context) {
	var req BatchParseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	// An absent mode keeps the server default.
	var mode parsing.Mode
	if req.Mode != "" {
		m, err := parsing.ParseMode(req.Mode)
		if err != nil {
			writeAppError(c, h.logger, err)
			return
		}
		mode = m
	}
	inputs, err := parsing.NewInputs(req.Texts, req.IDs)
	if err != nil {
		writeAppError(c, h.logger, err)
		return
	}

	batchID := h.newID()
	results, err := h.service.ParseBatch(c.Request.Context(), batchID, inputs, mode)
	if err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	if results == nil {
		results = []*instruction.StructuredInstruction{}
	}
	c.JSON(http.StatusOK, BatchParseResponse{
		BatchID: batchID,
		Mode:    string(mode),
		Inputs:  len(inputs),
		Results: results,
	})
}

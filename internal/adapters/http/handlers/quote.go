package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/http/dto"
	"github.com/jsamuelsen/trmnl-quotes/internal/app"
	"github.com/jsamuelsen/trmnl-quotes/internal/platform/logging"
)

// DispatchTrigger starts an out-of-band delivery cycle. *app.Scheduler
// implements it.
type DispatchTrigger interface {
	Trigger(ctx context.Context)
}

// QuoteHandler handles the /api endpoints.
type QuoteHandler struct {
	service *app.QuoteService
	trigger DispatchTrigger
}

// NewQuoteHandler creates a new quote handler. A nil trigger leaves
// POST /api/dispatch unregistered.
func NewQuoteHandler(service *app.QuoteService, trigger DispatchTrigger) *QuoteHandler {
	return &QuoteHandler{
		service: service,
		trigger: trigger,
	}
}

// ListQuotes handles GET /api/quotes.
//
// @Summary List quotes
// @Tags quotes
// @Produce json
// @Success 200 {array} dto.QuoteResponse
// @Router /api/quotes [get]
func (h *QuoteHandler) ListQuotes(c *gin.Context) {
	quotes, err := h.service.List(c.Request.Context())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewQuoteListResponse(quotes))
}

// GetRandomQuote handles GET /api/quotes/random.
//
// @Summary Get a random stored quote
// @Tags quotes
// @Produce json
// @Success 200 {object} dto.QuoteResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/quotes/random [get]
func (h *QuoteHandler) GetRandomQuote(c *gin.Context) {
	quote, err := h.service.Random(c.Request.Context())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewQuoteResponse(quote))
}

// CreateQuote handles POST /api/quotes.
//
// @Summary Add a quote
// @Tags quotes
// @Accept json
// @Produce json
// @Param quote body dto.CreateQuoteRequest true "Quote"
// @Success 201 {object} dto.QuoteResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/quotes [post]
func (h *QuoteHandler) CreateQuote(c *gin.Context) {
	var req dto.CreateQuoteRequest

	if err := dto.BindAndValidate(c, &req); err != nil {
		if errors.Is(err, dto.ErrBinding) {
			logging.FromContext(c.Request.Context()).DebugContext(c.Request.Context(),
				"rejecting unreadable quote body", "error", err.Error())
			c.JSON(http.StatusBadRequest, dto.NewErrorResponse(
				dto.ErrorCodeBadRequest,
				"request body must be a JSON object",
			).WithTraceID(dto.GetTraceID(c)))

			return
		}

		c.JSON(http.StatusBadRequest, dto.NewErrorResponseWithDetails(
			dto.ErrorCodeValidation,
			"quote text is required",
			dto.ValidationErrors(err),
		).WithTraceID(dto.GetTraceID(c)))

		return
	}

	quote, err := h.service.Create(c.Request.Context(), req.Fields())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewQuoteResponse(quote))
}

// Scrape handles POST /api/scrape. It merges the built-in seed quotes and
// reports how many were new.
//
// @Summary Merge seed quotes
// @Tags quotes
// @Produce json
// @Success 200 {object} dto.ScrapeResponse
// @Router /api/scrape [post]
func (h *QuoteHandler) Scrape(c *gin.Context) {
	res, err := h.service.Scrape(c.Request.Context())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewScrapeResponse(res))
}

// TriggerDispatch handles POST /api/dispatch. The delivery runs in the
// background; its outcome is only logged.
//
// @Summary Push a quote to TRMNL now
// @Tags dispatch
// @Produce json
// @Success 202 {object} dto.StatusResponse
// @Router /api/dispatch [post]
func (h *QuoteHandler) TriggerDispatch(c *gin.Context) {
	h.trigger.Trigger(c.Request.Context())

	c.JSON(http.StatusAccepted, dto.StatusResponse{Status: "triggered"})
}

// RegisterQuoteRoutes registers the /api routes on rg. Handlers in guard
// run in front of the mutating routes only.
func (h *QuoteHandler) RegisterQuoteRoutes(rg *gin.RouterGroup, guard ...gin.HandlerFunc) {
	rg.GET("/quotes", h.ListQuotes)
	rg.GET("/quotes/random", h.GetRandomQuote)
	rg.POST("/quotes", withGuard(guard, h.CreateQuote)...)
	rg.POST("/scrape", withGuard(guard, h.Scrape)...)

	if h.trigger != nil {
		rg.POST("/dispatch", withGuard(guard, h.TriggerDispatch)...)
	}
}

func withGuard(guard []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	chain := make([]gin.HandlerFunc, 0, len(guard)+1)
	chain = append(chain, guard...)

	return append(chain, h)
}

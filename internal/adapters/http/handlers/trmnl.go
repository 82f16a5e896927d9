package handlers

import (
	"bytes"
	"context"
	_ "embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/http/dto"
	"github.com/jsamuelsen/trmnl-quotes/internal/domain"
	"github.com/jsamuelsen/trmnl-quotes/internal/platform/logging"
)

//go:embed templates/markup.html
var markupSource string

// fallbackMarkup is served when the template itself fails, so the device
// always receives something it can draw.
const fallbackMarkup = `<div class="view view--full"><div class="layout layout--col layout--center">` +
	`<p class="value">Quote unavailable</p></div></div>`

// emptyStoreQuote is displayed while the collection is empty.
var emptyStoreQuote = domain.Quote{
	Text:   "No quotes available. Add some quotes to get started!",
	Author: "System",
	Source: "Default",
}

// RandomQuoter returns one stored quote. *app.QuoteService implements it.
type RandomQuoter interface {
	Random(ctx context.Context) (*domain.Quote, error)
}

type markupView struct {
	Text            string
	Author          string
	Source          string
	IntervalMinutes int
}

// TRMNLHandler serves the TRMNL private plugin endpoints: the polled
// markup and the install lifecycle hooks.
type TRMNLHandler struct {
	quotes   RandomQuoter
	interval time.Duration
	tmpl     *template.Template
}

// NewTRMNLHandler creates the handler. interval is shown on the device.
func NewTRMNLHandler(quotes RandomQuoter, interval time.Duration) *TRMNLHandler {
	return &TRMNLHandler{
		quotes:   quotes,
		interval: interval,
		tmpl:     template.Must(template.New("markup").Parse(markupSource)),
	}
}

// Markup handles GET /trmnl/markup. It never fails: an empty or unreadable
// store renders a placeholder quote and a template error renders static
// markup.
func (h *TRMNLHandler) Markup(c *gin.Context) {
	ctx := c.Request.Context()
	logger := logging.FromContext(ctx)

	quote, err := h.quotes.Random(ctx)
	if err != nil {
		if !domain.IsNotFound(err) {
			logger.WarnContext(ctx, "loading quote for markup", slog.String("error", err.Error()))
		}
		q := emptyStoreQuote
		quote = &q
	}

	var buf bytes.Buffer
	if err := h.tmpl.Execute(&buf, markupView{
		Text:            quote.Text,
		Author:          quote.Author,
		Source:          quote.Source,
		IntervalMinutes: int(h.interval / time.Minute),
	}); err != nil {
		logger.ErrorContext(ctx, "rendering markup", slog.String("error", err.Error()))
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(fallbackMarkup))

		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// Install handles GET /trmnl/install.
func (h *TRMNLHandler) Install(c *gin.Context) {
	c.JSON(http.StatusOK, dto.StatusResponse{
		Status:  "success",
		Message: "Quote plugin installed successfully",
	})
}

// Uninstall handles GET /trmnl/uninstall.
func (h *TRMNLHandler) Uninstall(c *gin.Context) {
	c.JSON(http.StatusOK, dto.StatusResponse{
		Status:  "success",
		Message: "Quote plugin uninstalled successfully",
	})
}

// WebhookInstall handles POST /trmnl/webhook/install.
func (h *TRMNLHandler) WebhookInstall(c *gin.Context) {
	h.lifecycleWebhook(c, "installation", "Installation webhook processed")
}

// WebhookUninstall handles POST /trmnl/webhook/uninstall.
func (h *TRMNLHandler) WebhookUninstall(c *gin.Context) {
	h.lifecycleWebhook(c, "uninstallation", "Uninstallation webhook processed")
}

// lifecycleWebhook logs the event payload. Nothing is stored. A payload
// that cannot be read answers 500, as TRMNL treats any non-2xx as failed.
func (h *TRMNLHandler) lifecycleWebhook(c *gin.Context, event, processed string) {
	ctx := c.Request.Context()
	logger := logging.FromContext(ctx)

	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		logger.ErrorContext(ctx, "unreadable TRMNL webhook",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, dto.StatusResponse{
			Status:  "error",
			Message: "Failed to process " + event + " webhook",
		})

		return
	}

	logger.InfoContext(ctx, "TRMNL webhook received",
		slog.String("event", event),
		slog.Any("payload", payload),
	)

	c.JSON(http.StatusOK, dto.StatusResponse{
		Status:  "success",
		Message: processed,
	})
}

// RegisterTRMNLRoutes registers the plugin routes on rg, normally /trmnl.
func (h *TRMNLHandler) RegisterTRMNLRoutes(rg *gin.RouterGroup) {
	rg.GET("/markup", h.Markup)
	rg.GET("/install", h.Install)
	rg.GET("/uninstall", h.Uninstall)
	rg.POST("/webhook/install", h.WebhookInstall)
	rg.POST("/webhook/uninstall", h.WebhookUninstall)
}

package acl

import (
	"context"
	"log/slog"
	"time"

	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/clients"
	"github.com/jsamuelsen/trmnl-quotes/internal/domain"
	"github.com/jsamuelsen/trmnl-quotes/internal/platform/logging"
)

// TRMNLServiceName names the webhook downstream in logs, spans and errors.
const TRMNLServiceName = "trmnl-webhook"

// TRMNLNotifierConfig contains configuration for the notifier.
type TRMNLNotifierConfig struct {
	// Client must have the webhook URL as its BaseURL. Required.
	Client *clients.Client

	Logger *slog.Logger
}

// TRMNLNotifier implements ports.QuoteNotifier by posting merge variables
// to a TRMNL private plugin webhook.
type TRMNLNotifier struct {
	BaseAdapter

	logger *slog.Logger
}

// NewTRMNLNotifier creates the notifier. It panics without a client.
func NewTRMNLNotifier(cfg TRMNLNotifierConfig) *TRMNLNotifier {
	if cfg.Client == nil {
		panic("TRMNLNotifier: Client is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &TRMNLNotifier{
		BaseAdapter: NewBaseAdapter(cfg.Client, TRMNLServiceName),
		logger:      logger.With(slog.String("component", "acl.TRMNLNotifier")),
	}
}

// webhookPayload is the TRMNL wire format. Never exposed outside the ACL.
type webhookPayload struct {
	MergeVariables mergeVariables `json:"merge_variables"`
}

type mergeVariables struct {
	Text      string `json:"text"`
	Author    string `json:"author"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

// Notify posts the delivery. The response body is ignored; only the status
// code matters.
func (n *TRMNLNotifier) Notify(ctx context.Context, delivery domain.Delivery) error {
	payload, err := toWebhookPayload(delivery)
	if err != nil {
		return err
	}

	logger := logging.FromContextOr(ctx, n.logger)
	logger.Log(ctx, logging.LevelTrace, "posting merge variables",
		slog.Int("quote_id", delivery.Quote.ID),
		slog.Int("text_len", len(payload.MergeVariables.Text)),
	)

	status, err := n.PostJSON(ctx, "", payload, "push quote")
	if err != nil {
		logger.DebugContext(ctx, "webhook push failed",
			slog.String("service", n.ServiceName()),
			slog.String("circuit", n.Client().CircuitState().String()),
			slog.Int("status", status),
		)

		return err
	}

	logger.DebugContext(ctx, "webhook accepted quote",
		slog.Int("quote_id", delivery.Quote.ID),
		slog.Int("status", status),
	)

	return nil
}

// toWebhookPayload translates the domain delivery into the TRMNL DTO.
func toWebhookPayload(d domain.Delivery) (*webhookPayload, error) {
	if err := ValidateRequired(d.Quote.Text, "text"); err != nil {
		return nil, err
	}

	q := d.Quote
	q.ApplyDefaults()

	stamp := d.Timestamp
	if stamp.IsZero() {
		stamp = time.Now()
	}

	return &webhookPayload{
		MergeVariables: mergeVariables{
			Text:      q.Text,
			Author:    q.Author,
			Source:    q.Source,
			Timestamp: stamp.Format(time.RFC3339),
		},
	}, nil
}

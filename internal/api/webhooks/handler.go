package webhooks

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"hashrent-backend/internal/payments"

	"github.com/gin-gonic/gin"
)

const maxBodyBytes = 65536

type Handler struct {
	providers  *payments.Registry
	reconciler *Reconciler
	log        *slog.Logger
}

func NewHandler(providers *payments.Registry, reconciler *Reconciler, log *slog.Logger) *Handler {
	return &Handler{providers: providers, reconciler: reconciler, log: log}
}

// HandleWebhook receives a provider callback: verify the signature, parse
// into a normalized event, apply it idempotently. A 500 makes the provider
// redeliver; the idempotency ledger makes that redelivery safe.
func (h *Handler) HandleWebhook(c *gin.Context) {
	name := c.Param("provider")
	provider, ok := h.providers.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown provider"})
		return
	}

	payload, err := readBody(c, maxBodyBytes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Error reading request body"})
		return
	}

	ev, err := provider.VerifyAndParse(payload, c.GetHeader(provider.SignatureHeader()))
	if err != nil {
		var sigErr *payments.SignatureError
		if errors.As(err, &sigErr) {
			h.log.Warn("webhook signature verification failed", "provider", name, "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Signature verification failed"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse payload"})
		return
	}

	result, err := h.reconciler.Apply(name, ev)
	if err != nil {
		if errors.Is(err, ErrUnknownReference) {
			h.log.Warn("webhook for unknown reference",
				"provider", name, "event_id", ev.ProviderEventID, "ref", ev.ProviderRef)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown reference"})
			return
		}
		h.log.Error("webhook processing failed",
			"provider", name, "event_id", ev.ProviderEventID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": string(result)})
}

func readBody(c *gin.Context, maxBytes int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	return io.ReadAll(c.Request.Body)
}

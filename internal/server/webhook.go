package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/harvestline/storefront/internal/square"
	"go.uber.org/zap"
)

// maxWebhookBody caps the request body read. Square events are small; a
// megabyte is generous.
const maxWebhookBody = 1 << 20

// HandleSquareWebhook ingests one webhook delivery. The contract with
// Square's retry machinery drives every status code here: 2xx acknowledges
// the event (including events we decide to skip), 401 rejects a bad
// signature, and 503 asks for redelivery after a transient failure.
func (s *Server) HandleSquareWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	sig := c.GetHeader("X-Square-Hmacsha256-Signature")
	if err := square.VerifySignature(sig, s.cfg.Square.NotificationURL, body, s.cfg.Square.SignatureKey); err != nil {
		s.log.Warn("webhook signature rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	evt, err := square.ParseEvent(body)
	if err != nil {
		if errors.Is(err, square.ErrInvalidEnvelope) {
			// Malformed payloads will never parse on redelivery; acknowledge
			// so Square stops resending them.
			s.log.Warn("dropping malformed webhook envelope", zap.Error(err))
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	disp, err := s.reconciler.Handle(c.Request.Context(), evt, body)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "retry"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": string(disp)})
}

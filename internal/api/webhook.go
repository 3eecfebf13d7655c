package api

import (
	"errors"
	"net/http"
	"strconv"

	"license-api/internal/apperrors"
	"license-api/internal/response"
	"license-api/internal/services"
	"license-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// AfdianWebhook handles inbound payment events from Afdian. The
// provider expects an {ec, em} envelope back and retries on anything
// else, so duplicates are acknowledged with success.
func AfdianWebhook(c *gin.Context) {
	var payload services.AfdianWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ec": 400, "em": "Invalid payload"})
		return
	}

	orderService := services.NewOrderService()
	result, err := orderService.HandleWebhook(c.Request.Context(), &payload)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"ec": 400, "em": err.Error()})
			return
		}
		logging.Errorf("Failed to process webhook: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ec": 500, "em": "Processing failed"})
		return
	}

	switch {
	case result.Ignored:
		c.JSON(http.StatusOK, gin.H{"ec": 200, "em": "Ignored"})
	case result.Duplicate:
		c.JSON(http.StatusOK, gin.H{"ec": 200, "em": "Already processed"})
	default:
		c.JSON(http.StatusOK, gin.H{"ec": 200, "em": "ok"})
	}
}

// SyncOrders triggers a manual pull reconciliation against the
// provider's order list. Provider failures surface to the caller.
func SyncOrders(c *gin.Context) {
	page := 1
	if p, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && p > 0 {
		page = p
	}

	orderService := services.NewOrderService()
	result, err := orderService.SyncOrders(c.Request.Context(), page)
	if err != nil {
		response.ErrorFromService(c, err)
		return
	}

	response.SuccessJSON(c, result)
}

// VerifyProviderCredentials checks the configured Afdian credentials
// with a live API call
func VerifyProviderCredentials(c *gin.Context) {
	client, err := services.NewAfdianClient()
	if err != nil {
		response.ErrorFromService(c, err)
		return
	}

	if err := client.VerifyCredentials(c.Request.Context()); err != nil {
		response.ErrorFromService(c, err)
		return
	}

	response.SuccessJSON(c, gin.H{"message": "Provider credentials verified"})
}

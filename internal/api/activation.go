package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"license-api/internal/response"
	"license-api/internal/services"

	"github.com/gin-gonic/gin"
)

// ActivateDeviceRequest represents a device activation request
type ActivateDeviceRequest struct {
	ProductID  uint            `json:"productId" binding:"required"`
	DeviceID   string          `json:"deviceId" binding:"required"`
	DeviceInfo json.RawMessage `json:"deviceInfo"`
}

// ActivateDevice issues a signed license payload for a device
func ActivateDevice(c *gin.Context) {
	var req ActivateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	activationService := services.NewActivationService()
	result, err := activationService.ActivateDevice(req.ProductID, req.DeviceID, string(req.DeviceInfo))
	if err != nil {
		response.ErrorFromService(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetCurrentPublicKey returns the active public key
func GetCurrentPublicKey(c *gin.Context) {
	keyService := services.NewKeyService()
	key, err := keyService.GetActiveKey()
	if err != nil {
		response.ErrorFromService(c, err)
		return
	}

	response.SuccessJSON(c, gin.H{
		"keyId":     key.ID,
		"publicKey": key.PublicKey,
	})
}

// GetPublicKey returns a historical public key by ID, for verifying
// signatures issued before a rotation
func GetPublicKey(c *gin.Context) {
	keyID, err := strconv.ParseUint(c.Param("keyId"), 10, 32)
	if err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid key ID")
		return
	}

	keyService := services.NewKeyService()
	key, err := keyService.GetKeyByID(uint(keyID))
	if err != nil {
		response.ErrorFromService(c, err)
		return
	}

	response.SuccessJSON(c, gin.H{
		"keyId":     key.ID,
		"publicKey": key.PublicKey,
		"createdAt": key.CreatedAt,
	})
}

// GetCloudConfig returns a product's cloud configuration
func GetCloudConfig(c *gin.Context) {
	productID, err := strconv.ParseUint(c.Param("productId"), 10, 32)
	if err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid product ID")
		return
	}

	activationService := services.NewActivationService()
	cfg, err := activationService.GetCloudConfig(uint(productID))
	if err != nil {
		response.ErrorFromService(c, err)
		return
	}

	response.SuccessJSON(c, cfg)
}

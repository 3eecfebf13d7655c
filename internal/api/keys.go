package api

import (
	"license-api/internal/response"
	"license-api/internal/services"

	"github.com/gin-gonic/gin"
)

// GetKeys lists all signing keys (public halves only), newest first
func GetKeys(c *gin.Context) {
	keyService := services.NewKeyService()
	keys, err := keyService.ListKeys()
	if err != nil {
		response.ErrorFromService(c, err)
		return
	}

	list := make([]gin.H, 0, len(keys))
	for _, key := range keys {
		list = append(list, gin.H{
			"keyId":     key.ID,
			"publicKey": key.PublicKey,
			"isActive":  key.IsActive,
			"createdAt": key.CreatedAt,
		})
	}

	response.SuccessJSON(c, list)
}

// RotateKey generates a new signing keypair and atomically retires the
// previous active key. Already-issued signatures stay verifiable via
// the retained historical keys.
func RotateKey(c *gin.Context) {
	keyService := services.NewKeyService()
	key, err := keyService.RotateKey()
	if err != nil {
		response.ErrorFromService(c, err)
		return
	}

	response.SuccessJSON(c, gin.H{
		"keyId":     key.ID,
		"publicKey": key.PublicKey,
	})
}

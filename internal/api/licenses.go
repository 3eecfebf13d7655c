package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"license-api/internal/response"
	"license-api/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CreateLicenseRequest represents an administrative license creation
type CreateLicenseRequest struct {
	ProductID   uint            `json:"product_id" binding:"required"`
	DeviceID    string          `json:"device_id" binding:"required"`
	LicenseType string          `json:"license_type" binding:"required"`
	ExpiresAt   *time.Time      `json:"expires_at"`
	DeviceInfo  json.RawMessage `json:"device_info"`
}

// CreateLicense creates a license manually, without a payment
func CreateLicense(c *gin.Context) {
	var req CreateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	licenseService := services.NewLicenseService()
	license, err := licenseService.Create(services.CreateLicenseParams{
		ProductID:   req.ProductID,
		DeviceID:    req.DeviceID,
		LicenseType: req.LicenseType,
		ExpiresAt:   req.ExpiresAt,
		DeviceInfo:  string(req.DeviceInfo),
	})
	if err != nil {
		response.ErrorFromService(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(license))
}

// GetLicenses lists licenses with filters and pagination
func GetLicenses(c *gin.Context) {
	query := services.LicenseQuery{
		Status:      c.Query("status"),
		LicenseType: c.Query("license_type"),
	}
	if v, err := strconv.ParseUint(c.Query("product_id"), 10, 32); err == nil {
		query.ProductID = uint(v)
	}
	if v, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		query.Page = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		query.Limit = v
	}

	licenseService := services.NewLicenseService()
	licenses, total, err := licenseService.FindAll(query)
	if err != nil {
		response.ErrorFromService(c, err)
		return
	}

	response.SuccessJSON(c, gin.H{
		"data":  licenses,
		"total": total,
		"page":  query.Page,
		"limit": query.Limit,
	})
}

// GetLicense returns a single license
func GetLicense(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	licenseService := services.NewLicenseService()
	license, err := licenseService.GetByID(id)
	if err != nil {
		response.ErrorFromService(c, err)
		return
	}

	response.SuccessJSON(c, license)
}

// UpdateLicenseRequest represents administrative license updates
type UpdateLicenseRequest struct {
	DeviceID    string     `json:"device_id"`
	Status      string     `json:"status"`
	LicenseType string     `json:"license_type"`
	ExpiresAt   *time.Time `json:"expires_at"`
	ClearExpiry bool       `json:"clear_expiry"`
}

// UpdateLicense updates license fields
func UpdateLicense(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	var req UpdateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	licenseService := services.NewLicenseService()
	license, err := licenseService.Update(id, services.UpdateLicenseParams{
		DeviceID:    req.DeviceID,
		Status:      req.Status,
		LicenseType: req.LicenseType,
		ExpiresAt:   req.ExpiresAt,
		ClearExpiry: req.ClearExpiry,
	})
	if err != nil {
		response.ErrorFromService(c, err)
		return
	}

	response.SuccessJSON(c, license)
}

// RevokeLicense revokes a license
func RevokeLicense(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	licenseService := services.NewLicenseService()
	license, err := licenseService.Revoke(id)
	if err != nil {
		response.ErrorFromService(c, err)
		return
	}

	response.SuccessJSON(c, license)
}

// DeleteLicense permanently deletes a license
func DeleteLicense(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	licenseService := services.NewLicenseService()
	if err := licenseService.Remove(id); err != nil {
		response.ErrorFromService(c, err)
		return
	}

	response.SuccessJSON(c, gin.H{"message": "License deleted successfully"})
}

// BatchExtendRequest represents a batch expiry extension
type BatchExtendRequest struct {
	LicenseIDs []uint `json:"license_ids" binding:"required"`
	Days       int    `json:"days" binding:"required"`
}

// BatchExtendLicenses extends expiry for a batch of licenses.
// The batch is all-or-nothing.
func BatchExtendLicenses(c *gin.Context) {
	var req BatchExtendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	licenseService := services.NewLicenseService()
	extended, err := licenseService.ExtendMany(req.LicenseIDs, req.Days)
	if err != nil {
		response.ErrorFromService(c, err)
		return
	}

	response.SuccessJSON(c, gin.H{"extended": extended})
}

// AdjustBalanceRequest represents a balance adjustment
type AdjustBalanceRequest struct {
	Amount string `json:"amount" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// AdjustBalance adjusts a user's balance by a signed decimal amount
func AdjustBalance(c *gin.Context) {
	userID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	var req AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid amount: "+req.Amount)
		return
	}

	balanceService := services.NewBalanceService()
	user, err := balanceService.Adjust(userID, amount, req.Reason)
	if err != nil {
		response.ErrorFromService(c, err)
		return
	}

	response.SuccessJSON(c, user)
}

// parseIDParam parses a numeric path parameter, writing the error
// response itself on failure
func parseIDParam(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid "+name)
		return 0, err
	}
	return uint(id), nil
}

// internal/handlers/license.go
package handlers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/licadmin-backend/internal/models"
	"github.com/javajoker/licadmin-backend/internal/repository"
	"github.com/javajoker/licadmin-backend/internal/services"
	"github.com/javajoker/licadmin-backend/internal/utils"
)

type LicenseHandler struct {
	licenseService *services.LicenseService
	exportService  *services.ExportService
}

func NewLicenseHandler(licenseService *services.LicenseService, exportService *services.ExportService) *LicenseHandler {
	return &LicenseHandler{
		licenseService: licenseService,
		exportService:  exportService,
	}
}

func licenseFilters(c *gin.Context) repository.LicenseFilters {
	filters := repository.LicenseFilters{
		PaginationParams: utils.GetPaginationParams(c),
	}

	if status := c.Query("status"); status != "" {
		s := models.LicenseStatus(status)
		filters.Status = &s
	}
	if from := c.Query("due_from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			filters.DueFrom = &t
		}
	}
	if to := c.Query("due_to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			filters.DueTo = &t
		}
	}

	return filters
}

// GET /licenses
func (h *LicenseHandler) GetLicenses(c *gin.Context) {
	filters := licenseFilters(c)

	licenses, total, err := h.licenseService.ListLicenses(filters)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	result := utils.CreatePaginationResult(licenses, total, filters.PaginationParams)
	utils.PaginatedResponse(c, result)
}

// GET /licenses/:id
func (h *LicenseHandler) GetLicense(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid license ID", nil)
		return
	}

	license, err := h.licenseService.GetLicense(id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			utils.NotFoundResponse(c, "license")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"license": license,
	})
}

// POST /licenses
func (h *LicenseHandler) CreateLicense(c *gin.Context) {
	var req services.CreateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	license, err := h.licenseService.CreateLicense(&req)
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"license": license,
	})
}

// PUT /licenses/:id
func (h *LicenseHandler) UpdateLicense(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid license ID", nil)
		return
	}

	var req services.UpdateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	license, err := h.licenseService.UpdateLicense(id, &req)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			utils.NotFoundResponse(c, "license")
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"license": license,
	})
}

// DELETE /licenses/:id
func (h *LicenseHandler) DeleteLicense(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid license ID", nil)
		return
	}

	if err := h.licenseService.DeleteLicense(id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			utils.NotFoundResponse(c, "license")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": "License canceled",
	})
}

// PATCH /licenses/bulk
func (h *LicenseHandler) BulkUpdate(c *gin.Context) {
	var req services.BulkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}

	affected, err := h.licenseService.BulkUpdate(&req)
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"updated": affected,
	})
}

// GET /licenses/dashboard/metrics
func (h *LicenseHandler) GetDashboardMetrics(c *gin.Context) {
	metrics, err := h.licenseService.DashboardMetrics(c.Request.Context())
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"metrics": metrics,
	})
}

// POST /licenses/export
func (h *LicenseHandler) ExportLicenses(c *gin.Context) {
	filters := licenseFilters(c)

	result, err := h.exportService.ExportLicenses(filters)
	if err != nil {
		if strings.Contains(err.Error(), "AWS credentials") {
			utils.ErrorResponse(c, 503, "EXPORTS_DISABLED", err.Error(), nil)
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"export": result,
	})
}

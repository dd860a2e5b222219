// internal/handlers/sms.go
package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/licadmin-backend/internal/services"
	"github.com/javajoker/licadmin-backend/internal/utils"
)

type SmsHandler struct {
	smsService *services.SmsService
}

func NewSmsHandler(smsService *services.SmsService) *SmsHandler {
	return &SmsHandler{
		smsService: smsService,
	}
}

// POST /licenses/:id/sms/topup
func (h *SmsHandler) CreateTopUp(c *gin.Context) {
	licenseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid license ID", nil)
		return
	}

	var req services.TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	resp, err := h.smsService.CreateTopUp(licenseID, &req)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			utils.NotFoundResponse(c, "license")
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.CreatedResponse(c, resp)
}

// POST /licenses/sms/confirm
func (h *SmsHandler) ConfirmTopUp(c *gin.Context) {
	var req services.ConfirmTopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}

	payment, err := h.smsService.ConfirmTopUp(&req)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			utils.NotFoundResponse(c, "payment")
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"payment": payment,
	})
}

// GET /licenses/:id/sms/payments
func (h *SmsHandler) GetPayments(c *gin.Context) {
	licenseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid license ID", nil)
		return
	}

	params := utils.GetPaginationParams(c)
	payments, total, err := h.smsService.ListPayments(licenseID, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	result := utils.CreatePaginationResult(payments, total, params)
	utils.PaginatedResponse(c, result)
}

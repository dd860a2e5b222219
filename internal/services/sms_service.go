// internal/services/sms_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"gorm.io/gorm"

	"github.com/javajoker/licadmin-backend/internal/config"
	"github.com/javajoker/licadmin-backend/internal/database"
	"github.com/javajoker/licadmin-backend/internal/models"
	"github.com/javajoker/licadmin-backend/internal/repository"
	"github.com/javajoker/licadmin-backend/internal/utils"
)

// SmsService maintains the SMS top-up ledger: Stripe payment intents for
// credit purchases and the balance mutations they settle into.
type SmsService struct {
	db          *gorm.DB
	licenseRepo *repository.LicenseRepository
	config      *config.Config
}

type TopUpRequest struct {
	Credits float64 `json:"credits" validate:"required,min=1"`
}

type TopUpResponse struct {
	ClientSecret string  `json:"client_secret"`
	PaymentID    string  `json:"payment_id"`
	Status       string  `json:"status"`
	Amount       float64 `json:"amount"`
}

type ConfirmTopUpRequest struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
}

func NewSmsService(db *gorm.DB, licenseRepo *repository.LicenseRepository, cfg *config.Config) *SmsService {
	// Initialize Stripe
	stripe.Key = cfg.Payment.StripeSecretKey

	return &SmsService{
		db:          db,
		licenseRepo: licenseRepo,
		config:      cfg,
	}
}

// CreateTopUp opens a Stripe payment intent for an SMS credit purchase and
// records a pending ledger entry.
func (s *SmsService) CreateTopUp(licenseID uuid.UUID, req *TopUpRequest) (*TopUpResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	license, err := s.licenseRepo.GetByID(licenseID)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if license == nil {
		return nil, errors.New("license not found")
	}

	amount := req.Credits * s.config.Payment.SmsCreditUnitPrice
	amountInCents := int64(amount * 100)

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountInCents),
		Currency: stripe.String("usd"),
	}
	params.AddMetadata("license_id", licenseID.String())
	params.AddMetadata("credits", fmt.Sprintf("%.0f", req.Credits))

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	payment := &models.SmsPayment{
		LicenseID:        licenseID,
		Credits:          req.Credits,
		Amount:           amount,
		Currency:         "usd",
		Status:           models.PaymentStatusPending,
		PaymentReference: pi.ID,
	}
	if err := s.db.Create(payment).Error; err != nil {
		return nil, fmt.Errorf("failed to record sms payment: %w", err)
	}

	return &TopUpResponse{
		ClientSecret: pi.ClientSecret,
		PaymentID:    pi.ID,
		Status:       string(pi.Status),
		Amount:       amount,
	}, nil
}

// ConfirmTopUp settles a pending ledger entry once Stripe reports the
// intent succeeded, crediting the license balance in the same transaction.
func (s *SmsService) ConfirmTopUp(req *ConfirmTopUpRequest) (*models.SmsPayment, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	pi, err := paymentintent.Get(req.PaymentIntentID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment intent: %w", err)
	}

	var payment models.SmsPayment
	if err := s.db.Where("payment_reference = ?", req.PaymentIntentID).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("sms payment not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if payment.Status == models.PaymentStatusCompleted {
		return &payment, nil
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		err = database.WithTransaction(s.db, func(tx *gorm.DB) error {
			if err := tx.Model(&models.SmsPayment{}).
				Where("id = ?", payment.ID).
				Update("status", models.PaymentStatusCompleted).Error; err != nil {
				return err
			}
			return tx.Model(&models.License{}).
				Where("id = ?", payment.LicenseID).
				UpdateColumns(map[string]interface{}{
					"sms_balance":   gorm.Expr("sms_balance + ?", payment.Credits),
					"sms_purchased": gorm.Expr("sms_purchased + ?", payment.Credits),
				}).Error
		})
		if err != nil {
			return nil, fmt.Errorf("failed to settle sms payment: %w", err)
		}
		payment.Status = models.PaymentStatusCompleted
		return &payment, nil

	case stripe.PaymentIntentStatusCanceled:
		if err := s.db.Model(&models.SmsPayment{}).
			Where("id = ?", payment.ID).
			Update("status", models.PaymentStatusFailed).Error; err != nil {
			return nil, fmt.Errorf("failed to mark sms payment failed: %w", err)
		}
		return nil, errors.New("payment was canceled")

	default:
		return nil, fmt.Errorf("payment not completed yet (status: %s)", pi.Status)
	}
}

func (s *SmsService) ListPayments(licenseID uuid.UUID, params utils.PaginationParams) ([]models.SmsPayment, int64, error) {
	query := s.db.Model(&models.SmsPayment{}).Where("license_id = ?", licenseID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count sms payments: %w", err)
	}

	allowedSortFields := []string{"created_at", "amount", "credits", "status"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var payments []models.SmsPayment
	if err := query.Find(&payments).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch sms payments: %w", err)
	}

	return payments, total, nil
}

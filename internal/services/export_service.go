// internal/services/export_service.go
package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/javajoker/licadmin-backend/internal/config"
	"github.com/javajoker/licadmin-backend/internal/models"
	"github.com/javajoker/licadmin-backend/internal/repository"
)

// ExportService renders license snapshots to CSV and parks them in S3
// behind a short-lived presigned URL.
type ExportService struct {
	s3Client    *s3.S3
	licenseRepo *repository.LicenseRepository
	config      *config.Config
}

type ExportResult struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	Rows      int       `json:"rows"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewExportService(cfg *config.Config, licenseRepo *repository.LicenseRepository) (*ExportService, error) {
	if cfg.AWS.AccessKeyID == "" {
		// Exports disabled in local development without AWS credentials
		return &ExportService{config: cfg, licenseRepo: licenseRepo}, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWS.AccessKeyID,
			cfg.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &ExportService{
		s3Client:    s3.New(sess),
		licenseRepo: licenseRepo,
		config:      cfg,
	}, nil
}

var exportHeader = []string{
	"id", "appid", "dba", "zip", "status", "starts_at", "due_date", "plan",
	"term", "seats_total", "seats_used", "last_payment", "sms_balance",
	"sms_sent", "agents", "agents_cost", "notes",
}

// ExportLicenses writes every license matching the filters to CSV, uploads
// it, and returns a presigned download link.
func (e *ExportService) ExportLicenses(filters repository.LicenseFilters) (*ExportResult, error) {
	if e.s3Client == nil {
		return nil, fmt.Errorf("exports require AWS credentials")
	}

	// Page through everything; export ignores the caller's page size
	filters.Page = 1
	filters.Limit = 100

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(exportHeader); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	rows := 0
	for {
		licenses, total, err := e.licenseRepo.List(filters)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch licenses for export: %w", err)
		}

		for i := range licenses {
			if err := writer.Write(exportRow(&licenses[i])); err != nil {
				return nil, fmt.Errorf("failed to write csv row: %w", err)
			}
			rows++
		}

		if int64(filters.Page*filters.Limit) >= total || len(licenses) == 0 {
			break
		}
		filters.Page++
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("csv writer error: %w", err)
	}

	key := fmt.Sprintf("exports/licenses-%s.csv", time.Now().Format("20060102-150405"))

	_, err := e.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(e.config.AWS.S3Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload export: %w", err)
	}

	expiry := time.Duration(e.config.AWS.ExportURLExpiry) * time.Minute
	req, _ := e.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(e.config.AWS.S3Bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(expiry)
	if err != nil {
		return nil, fmt.Errorf("failed to presign export url: %w", err)
	}

	return &ExportResult{
		URL:       url,
		Key:       key,
		Rows:      rows,
		ExpiresAt: time.Now().Add(expiry),
	}, nil
}

func exportRow(l *models.License) []string {
	appID := ""
	if l.AppID != nil {
		appID = *l.AppID
	}

	return []string{
		l.ID.String(),
		appID,
		l.DBA,
		l.Zip,
		string(l.Status),
		formatTime(l.StartsAt),
		formatTime(l.DueDate),
		l.Plan,
		string(l.Term),
		strconv.Itoa(l.SeatsTotal),
		strconv.Itoa(l.SeatsUsed),
		strconv.FormatFloat(l.LastPayment, 'f', 2, 64),
		strconv.FormatFloat(l.SmsBalance, 'f', 2, 64),
		strconv.FormatFloat(l.SmsSent, 'f', 2, 64),
		strconv.Itoa(l.Agents),
		strconv.FormatFloat(l.AgentsCost, 'f', 2, 64),
		strings.ReplaceAll(l.Notes, "\n", " "),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

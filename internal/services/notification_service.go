// internal/services/notification_service.go
package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/freshrebate/grc-backend/internal/config"
	"github.com/freshrebate/grc-backend/internal/models"
)

// NotificationService records in-app admin notifications and sends
// member emails for lifecycle events. Callers fire these in a
// goroutine; failures are logged, never surfaced to the request.
type NotificationService struct {
	db     *gorm.DB
	config *config.Config
}

type EmailTemplate struct {
	Subject string
	Body    string
}

type NotificationRequest struct {
	UserID    uuid.UUID              `json:"user_id" validate:"required"`
	Type      string                 `json:"type" validate:"required"`
	Title     string                 `json:"title" validate:"required"`
	Message   string                 `json:"message" validate:"required"`
	Data      map[string]interface{} `json:"data,omitempty"`
	SendEmail bool                   `json:"send_email,omitempty"`
}

func NewNotificationService(db *gorm.DB, config *config.Config) *NotificationService {
	return &NotificationService{
		db:     db,
		config: config,
	}
}

// Authentication notifications
func (s *NotificationService) SendWelcomeEmail(user *models.User, verificationToken string) error {
	template := s.getEmailTemplate("welcome")

	data := map[string]interface{}{
		"Username":        user.Username,
		"VerificationURL": fmt.Sprintf("%s/verify-email?token=%s", s.config.Frontend.BaseURL, verificationToken),
		"PlatformName":    "FreshRebate",
	}

	subject := "Welcome to FreshRebate"
	body, err := s.renderTemplate(template.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(user.Email, subject, body)
}

func (s *NotificationService) SendPasswordResetEmail(user *models.User, resetToken string) error {
	template := s.getEmailTemplate("password_reset")

	data := map[string]interface{}{
		"Username":  user.Username,
		"ResetURL":  fmt.Sprintf("%s/reset-password?token=%s", s.config.Frontend.BaseURL, resetToken),
		"ExpiresIn": "1 hour",
	}

	subject := "Password Reset Request"
	body, err := s.renderTemplate(template.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(user.Email, subject, body)
}

// Certificate lifecycle notifications
func (s *NotificationService) NotifyCertificateIssued(certificate *models.Certificate, recipientID *uuid.UUID) {
	notification := &models.AdminNotification{
		Type:                "certificate_issued",
		Title:               "Certificate Issued",
		Message:             fmt.Sprintf("A $%.0f certificate was issued and is awaiting registration", certificate.Denomination),
		Priority:            "low",
		RelatedResourceType: "certificate",
		RelatedResourceID:   &certificate.ID,
	}
	if err := s.db.Create(notification).Error; err != nil {
		logrus.WithError(err).Error("Failed to create certificate issued notification")
	}

	// A recipient-targeted issuance also tells the member a certificate
	// landed on their queue.
	if recipientID == nil {
		return
	}
	var member models.User
	if err := s.db.First(&member, *recipientID).Error; err != nil {
		logrus.WithError(err).Error("Failed to load recipient for issuance email")
		return
	}
	data := map[string]interface{}{
		"Username":     member.Username,
		"Denomination": fmt.Sprintf("%.0f", certificate.Denomination),
	}
	if body, err := s.renderTemplate(s.getEmailTemplate("certificate_queued").Body, data); err == nil {
		if err := s.sendEmail(member.Email, "A rebate certificate is waiting for you", body); err != nil {
			logrus.WithError(err).Error("Failed to send issuance email")
		}
	}
}

func (s *NotificationService) NotifyCertificateActivated(certificate *models.Certificate) {
	if certificate.MemberID == nil {
		return
	}
	var member models.User
	if err := s.db.First(&member, *certificate.MemberID).Error; err != nil {
		logrus.WithError(err).Error("Failed to load member for activation email")
		return
	}

	data := map[string]interface{}{
		"Username":     member.Username,
		"Denomination": fmt.Sprintf("%.0f", certificate.Denomination),
		"Months":       certificate.MonthsRemaining,
		"GroceryStore": certificate.GroceryStore,
		"DashboardURL": fmt.Sprintf("%s/certificates/%s", s.config.Frontend.BaseURL, certificate.ID),
	}

	subject := "Your rebate certificate is active"
	template := s.getEmailTemplate("certificate_activated")
	body, err := s.renderTemplate(template.Body, data)
	if err != nil {
		logrus.WithError(err).Error("Failed to render activation email")
		return
	}
	if err := s.sendEmail(member.Email, subject, body); err != nil {
		logrus.WithError(err).Error("Failed to send activation email")
	}
}

func (s *NotificationService) NotifyCertificateCompleted(certificate *models.Certificate) {
	if certificate == nil {
		return
	}
	termMonths, _ := models.TermMonths(certificate.Denomination)
	notification := &models.AdminNotification{
		Type:                "certificate_completed",
		Title:               "Certificate Completed",
		Message:             fmt.Sprintf("A $%.0f certificate completed all %d months", certificate.Denomination, termMonths),
		Priority:            "medium",
		RelatedResourceType: "certificate",
		RelatedResourceID:   &certificate.ID,
	}
	if err := s.db.Create(notification).Error; err != nil {
		logrus.WithError(err).Error("Failed to create certificate completed notification")
	}

	if certificate.MemberID != nil {
		var member models.User
		if err := s.db.First(&member, *certificate.MemberID).Error; err == nil {
			data := map[string]interface{}{
				"Username":     member.Username,
				"Denomination": fmt.Sprintf("%.0f", certificate.Denomination),
			}
			if body, err := s.renderTemplate(s.getEmailTemplate("certificate_completed").Body, data); err == nil {
				if err := s.sendEmail(member.Email, "Congratulations, your certificate is complete", body); err != nil {
					logrus.WithError(err).Error("Failed to send completion email")
				}
			}
		}
	}
}

// Receipt and qualification notifications
func (s *NotificationService) NotifyReceiptSubmitted(receipt *models.Receipt) {
	if !receipt.Flagged() && !receipt.MemberOverride {
		return
	}
	notification := &models.AdminNotification{
		Type:                "receipt_review",
		Title:               "Receipt Needs Review",
		Message:             fmt.Sprintf("A receipt for $%.2f was submitted with mismatch flags", receipt.Amount),
		Priority:            "medium",
		RelatedResourceType: "receipt",
		RelatedResourceID:   &receipt.ID,
	}
	if err := s.db.Create(notification).Error; err != nil {
		logrus.WithError(err).Error("Failed to create receipt review notification")
	}
}

func (s *NotificationService) NotifyReceiptDecided(receipt *models.Receipt) {
	var member models.User
	if err := s.db.First(&member, receipt.MemberID).Error; err != nil {
		logrus.WithError(err).Error("Failed to load member for receipt decision email")
		return
	}

	var subject, templateName string
	data := map[string]interface{}{
		"Username": member.Username,
		"Amount":   fmt.Sprintf("%.2f", receipt.Amount),
	}
	switch receipt.Status {
	case models.ReceiptStatusApproved:
		subject = "Receipt approved"
		templateName = "receipt_approved"
	case models.ReceiptStatusRejected:
		subject = "Receipt rejected"
		templateName = "receipt_rejected"
		data["Reason"] = receipt.RejectionReason
		if receipt.ReuploadAllowedUntil != nil {
			data["ReuploadUntil"] = receipt.ReuploadAllowedUntil.Format("January 2, 2006")
		}
	default:
		return
	}

	body, err := s.renderTemplate(s.getEmailTemplate(templateName).Body, data)
	if err != nil {
		logrus.WithError(err).Error("Failed to render receipt decision email")
		return
	}
	if err := s.sendEmail(member.Email, subject, body); err != nil {
		logrus.WithError(err).Error("Failed to send receipt decision email")
	}
}

func (s *NotificationService) NotifyQualificationAchieved(period *models.QualificationPeriod) {
	notification := &models.AdminNotification{
		Type:                "period_qualified",
		Title:               "Month Qualified",
		Message:             fmt.Sprintf("A member qualified %d/%d with $%.2f approved; gift card pending", period.Month, period.Year, period.ApprovedTotal),
		Priority:            "high",
		RelatedResourceType: "qualification_period",
		RelatedResourceID:   &period.ID,
	}
	if err := s.db.Create(notification).Error; err != nil {
		logrus.WithError(err).Error("Failed to create qualification notification")
	}

	var member models.User
	if err := s.db.First(&member, period.MemberID).Error; err != nil {
		return
	}
	data := map[string]interface{}{
		"Username": member.Username,
		"Month":    fmt.Sprintf("%d/%d", period.Month, period.Year),
		"Reward":   fmt.Sprintf("%.0f", models.MonthlyRewardValue),
	}
	if body, err := s.renderTemplate(s.getEmailTemplate("period_qualified").Body, data); err == nil {
		if err := s.sendEmail(member.Email, "You qualified this month", body); err != nil {
			logrus.WithError(err).Error("Failed to send qualification email")
		}
	}
}

func (s *NotificationService) NotifyPeriodForfeited(period *models.QualificationPeriod) {
	var member models.User
	if err := s.db.First(&member, period.MemberID).Error; err != nil {
		return
	}
	data := map[string]interface{}{
		"Username": member.Username,
		"Month":    fmt.Sprintf("%d/%d", period.Month, period.Year),
		"Total":    fmt.Sprintf("%.2f", period.ApprovedTotal),
		"Target":   fmt.Sprintf("%.0f", models.MonthlyTarget),
	}
	if body, err := s.renderTemplate(s.getEmailTemplate("period_forfeited").Body, data); err == nil {
		if err := s.sendEmail(member.Email, "This month's rebate was not reached", body); err != nil {
			logrus.WithError(err).Error("Failed to send forfeiture email")
		}
	}
}

func (s *NotificationService) NotifyRewardSent(period *models.QualificationPeriod) {
	notification := &models.AdminNotification{
		Type:                "reward_sent",
		Title:               "Gift Card Sent",
		Message:             fmt.Sprintf("A $%.0f gift card for %d/%d was recorded as sent", models.MonthlyRewardValue, period.Month, period.Year),
		Priority:            "low",
		RelatedResourceType: "qualification_period",
		RelatedResourceID:   &period.ID,
	}
	if err := s.db.Create(notification).Error; err != nil {
		logrus.WithError(err).Error("Failed to create reward sent notification")
	}

	var member models.User
	if err := s.db.First(&member, period.MemberID).Error; err != nil {
		return
	}
	data := map[string]interface{}{
		"Username": member.Username,
		"Month":    fmt.Sprintf("%d/%d", period.Month, period.Year),
		"Reward":   fmt.Sprintf("%.0f", models.MonthlyRewardValue),
		"Code":     period.FulfillmentCode,
	}
	if body, err := s.renderTemplate(s.getEmailTemplate("reward_sent").Body, data); err == nil {
		if err := s.sendEmail(member.Email, "Your gift card is on its way", body); err != nil {
			logrus.WithError(err).Error("Failed to send reward email")
		}
	}
}

// Purchase notifications
func (s *NotificationService) NotifyPurchaseConfirmed(purchase *models.Purchase) {
	notification := &models.AdminNotification{
		Type:                "purchase_confirmed",
		Title:               "Inventory Purchase Confirmed",
		Message:             fmt.Sprintf("A purchase of %d x $%.0f certificates was confirmed", purchase.Quantity, purchase.Denomination),
		Priority:            "low",
		RelatedResourceType: "purchase",
		RelatedResourceID:   &purchase.ID,
	}
	if err := s.db.Create(notification).Error; err != nil {
		logrus.WithError(err).Error("Failed to create purchase confirmed notification")
	}

	var merchant models.User
	if err := s.db.First(&merchant, purchase.MerchantID).Error; err != nil {
		return
	}
	data := map[string]interface{}{
		"Username":     merchant.Username,
		"Quantity":     purchase.Quantity,
		"Denomination": fmt.Sprintf("%.0f", purchase.Denomination),
		"Total":        fmt.Sprintf("%.2f", purchase.TotalCost),
	}
	if body, err := s.renderTemplate(s.getEmailTemplate("purchase_confirmed").Body, data); err == nil {
		if err := s.sendEmail(merchant.Email, "Certificate purchase confirmed", body); err != nil {
			logrus.WithError(err).Error("Failed to send purchase email")
		}
	}
}

// Admin notifications
func (s *NotificationService) SendUserStatusChangeNotification(user *models.User, oldStatus models.UserStatus, reason string) error {
	data := map[string]interface{}{
		"Username":  user.Username,
		"NewStatus": user.Status,
		"OldStatus": oldStatus,
		"Reason":    reason,
	}

	subject := "Account Status Update"
	template := s.getEmailTemplate("user_status_change")
	body, err := s.renderTemplate(template.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(user.Email, subject, body)
}

// Generic notification methods
func (s *NotificationService) SendCustomNotification(req *NotificationRequest) error {
	notification := &models.AdminNotification{
		Type:    req.Type,
		Title:   req.Title,
		Message: req.Message,
	}

	if err := s.db.Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	if req.SendEmail {
		var user models.User
		if err := s.db.First(&user, req.UserID).Error; err != nil {
			return fmt.Errorf("user not found: %w", err)
		}

		return s.sendEmail(user.Email, req.Title, req.Message)
	}

	return nil
}

// Helper methods
func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.config.Email.SMTPHost == "" {
		logrus.WithFields(logrus.Fields{"to": to, "subject": subject}).Debug("Email skipped, SMTP not configured")
		return nil
	}

	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)

	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s", to, subject, body))

	addr := fmt.Sprintf("%s:%s", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	return smtp.SendMail(addr, auth, s.config.Email.FromEmail, []string{to}, msg)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *NotificationService) getEmailTemplate(templateType string) EmailTemplate {
	// In a real implementation, these would be loaded from files or database
	templates := map[string]EmailTemplate{
		"welcome": {
			Subject: "Welcome to FreshRebate",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Welcome {{.Username}}!</h2>
	<p>Thank you for joining FreshRebate. Please verify your email address by clicking the link below:</p>
	<a href="{{.VerificationURL}}">Verify Email</a>
	<p>Best regards,<br>{{.PlatformName}} Team</p>
</body>
</html>`,
		},
		"certificate_queued": {
			Subject: "A rebate certificate is waiting for you",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.Username}}!</h2>
	<p>A ${{.Denomination}} rebate certificate was issued to you and added to your queue.</p>
	<p>Register it with your grocery store to start earning monthly gift cards.</p>
	<p>Best regards,<br>FreshRebate Team</p>
</body>
</html>`,
		},
		"certificate_activated": {
			Subject: "Your rebate certificate is active",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>You're all set, {{.Username}}!</h2>
	<p>Your ${{.Denomination}} rebate certificate is now active at {{.GroceryStore}}.</p>
	<p>Spend your target each month for {{.Months}} months and we'll send you a gift card every time.</p>
	<a href="{{.DashboardURL}}">View Your Certificate</a>
	<p>Best regards,<br>FreshRebate Team</p>
</body>
</html>`,
		},
		"certificate_completed": {
			Subject: "Your certificate is complete",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Congratulations {{.Username}}!</h2>
	<p>You completed every month of your ${{.Denomination}} rebate certificate.</p>
	<p>If you have another certificate waiting in your queue, it is ready to register now.</p>
	<p>Best regards,<br>FreshRebate Team</p>
</body>
</html>`,
		},
		"receipt_approved": {
			Subject: "Receipt approved",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<p>Hello {{.Username}},</p>
	<p>Your receipt for ${{.Amount}} was approved and counts toward this month's target.</p>
	<p>Best regards,<br>FreshRebate Team</p>
</body>
</html>`,
		},
		"receipt_rejected": {
			Subject: "Receipt rejected",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<p>Hello {{.Username}},</p>
	<p>Your receipt for ${{.Amount}} was rejected: {{.Reason}}</p>
	{{if .ReuploadUntil}}<p>You may submit a replacement until {{.ReuploadUntil}}.</p>{{end}}
	<p>Best regards,<br>FreshRebate Team</p>
</body>
</html>`,
		},
		"period_qualified": {
			Subject: "You qualified this month",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Great news, {{.Username}}!</h2>
	<p>You hit your grocery target for {{.Month}}. A ${{.Reward}} gift card is on its way.</p>
	<p>Best regards,<br>FreshRebate Team</p>
</body>
</html>`,
		},
		"period_forfeited": {
			Subject: "This month's rebate was not reached",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<p>Hello {{.Username}},</p>
	<p>The month {{.Month}} closed with ${{.Total}} approved of the ${{.Target}} target, so no gift card was earned.</p>
	<p>Your certificate keeps its remaining months; the next month is a fresh start.</p>
	<p>Best regards,<br>FreshRebate Team</p>
</body>
</html>`,
		},
		"reward_sent": {
			Subject: "Your gift card is on its way",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<p>Hello {{.Username}},</p>
	<p>Your ${{.Reward}} gift card for {{.Month}} has been sent. Reference: {{.Code}}</p>
	<p>Best regards,<br>FreshRebate Team</p>
</body>
</html>`,
		},
		"purchase_confirmed": {
			Subject: "Certificate purchase confirmed",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<p>Hello {{.Username}},</p>
	<p>Your purchase of {{.Quantity}} x ${{.Denomination}} certificates (${{.Total}}) is confirmed and added to your inventory.</p>
	<p>Best regards,<br>FreshRebate Team</p>
</body>
</html>`,
		},
	}

	if template, exists := templates[templateType]; exists {
		return template
	}

	// Default template
	return EmailTemplate{
		Subject: "Notification",
		Body:    "<p>{{.Message}}</p>",
	}
}

// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess = "success"
	KeyError   = "error"
	KeyWarning = "warning"
	KeyInfo    = "info"

	// Authentication
	KeyAuthRequired           = "auth.required"
	KeyAuthInvalidToken       = "auth.invalid_token"
	KeyAuthTokenExpired       = "auth.token_expired"
	KeyAuthInvalidCredentials = "auth.invalid_credentials"
	KeyAuthUserNotFound       = "auth.user_not_found"
	KeyAuthUserExists         = "auth.user_exists"
	KeyAuthLoginSuccess       = "auth.login_success"
	KeyAuthLogoutSuccess      = "auth.logout_success"
	KeyAuthRegisterSuccess    = "auth.register_success"
	KeyAuthPasswordReset      = "auth.password_reset"

	// User Management
	KeyUserProfileUpdated = "user.profile_updated"
	KeyUserNotFound       = "user.not_found"
	KeyUserSuspended      = "user.suspended"

	// Certificates
	KeyCertificateIssued     = "certificate.issued"
	KeyCertificateActivated  = "certificate.activated"
	KeyCertificateCompleted  = "certificate.completed"
	KeyCertificateExpired    = "certificate.expired"
	KeyCertificateNotFound   = "certificate.not_found"
	KeyCertificateTerminal   = "certificate.terminal"
	KeyCertificateQueueSaved = "certificate.queue_saved"

	// Inventory
	KeyInventoryInsufficient = "inventory.insufficient"
	KeyInventoryPurchased    = "inventory.purchased"
	KeyInventoryConfirmed    = "inventory.confirmed"

	// Receipts
	KeyReceiptSubmitted         = "receipt.submitted"
	KeyReceiptApproved          = "receipt.approved"
	KeyReceiptRejected          = "receipt.rejected"
	KeyReceiptNotFound          = "receipt.not_found"
	KeyReceiptDuplicate         = "receipt.duplicate"
	KeyReceiptNeedsConfirmation = "receipt.needs_confirmation"
	KeyReceiptReuploadClosed    = "receipt.reupload_closed"

	// Qualification
	KeyPeriodQualified     = "period.qualified"
	KeyPeriodForfeited     = "period.forfeited"
	KeyPeriodNotFound      = "period.not_found"
	KeyPeriodSurveySaved   = "period.survey_saved"
	KeyPeriodPendingReview = "period.pending_review"

	// Fulfillment
	KeyRewardSent        = "reward.sent"
	KeyRewardAlreadySent = "reward.already_sent"

	// Payments
	KeyPaymentSuccess       = "payment.success"
	KeyPaymentFailed        = "payment.failed"
	KeyPaymentPending       = "payment.pending"
	KeyPaymentInvalidAmount = "payment.invalid_amount"

	// Admin
	KeyAdminActionSuccess   = "admin.action_success"
	KeyAdminAccessDenied    = "admin.access_denied"
	KeyAdminSettingsUpdated = "admin.settings_updated"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"
	KeyValidationTooShort = "validation.too_short"
	KeyValidationTooLong  = "validation.too_long"
	KeyValidationEmail    = "validation.invalid_email"
	KeyValidationPassword = "validation.invalid_password"

	// File Upload
	KeyFileUploadSuccess = "file.upload_success"
	KeyFileUploadFailed  = "file.upload_failed"
	KeyFileInvalidType   = "file.invalid_type"
	KeyFileTooLarge      = "file.too_large"

	// Notifications
	KeyNotificationSent   = "notification.sent"
	KeyNotificationFailed = "notification.failed"
)

// internal/services/errors.go
package services

import "errors"

// Business conflict conditions. Surfaced to the caller verbatim and
// never retried automatically by the core.
var (
	ErrInsufficientInventory   = errors.New("insufficient inventory for denomination")
	ErrActiveCertificateExists = errors.New("member already has an active certificate")
	ErrDuplicateReceipt        = errors.New("duplicate receipt image for this member")
	ErrReuploadWindowClosed    = errors.New("reupload window for the rejected receipt has closed")
)

// ErrCertificateNotActive is returned when a member submits a receipt
// against a certificate they have not registered yet. The certificate
// is still usable, so this is an input error, not a state violation.
var ErrCertificateNotActive = errors.New("certificate is not active")

// NeedsConfirmation is returned when a flagged submission arrives
// without the member's explicit override; nothing is stored and the
// caller should re-prompt.
var ErrNeedsConfirmation = errors.New("submission carries mismatch flags and requires member confirmation")

// State violations: an operation reached an entity in a state that
// should have been unreachable. These indicate a race or programming
// defect and are logged as invariant breaches.
var (
	ErrTerminalCertificate = errors.New("certificate is in a terminal state")
	ErrPeriodClosed        = errors.New("qualification period is already closed")
	ErrPeriodNotQualified  = errors.New("period has not qualified")
)

// IsConflict reports whether err is an expected business conflict the
// API layer should map to 409.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInsufficientInventory) ||
		errors.Is(err, ErrActiveCertificateExists) ||
		errors.Is(err, ErrDuplicateReceipt) ||
		errors.Is(err, ErrReuploadWindowClosed)
}

// IsStateViolation reports whether err is an invariant breach.
func IsStateViolation(err error) bool {
	return errors.Is(err, ErrTerminalCertificate) ||
		errors.Is(err, ErrPeriodClosed) ||
		errors.Is(err, ErrPeriodNotQualified)
}

package cortexx

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Store errors.
	ErrNoStore         = errors.New("cortexx: no store configured")
	ErrStoreClosed     = errors.New("cortexx: store closed")
	ErrMigrationFailed = errors.New("cortexx: migration failed")
	ErrTxFailed        = errors.New("cortexx: transaction failed")

	// Not found errors.
	ErrJobNotFound          = errors.New("cortexx: job not found")
	ErrDLQNotFound          = errors.New("cortexx: dlq entry not found")
	ErrPlanNotFound         = errors.New("cortexx: plan not found")
	ErrSubscriptionNotFound = errors.New("cortexx: subscription not found")
	ErrEventNotFound        = errors.New("cortexx: webhook event not found")
	ErrWorkerNotFound       = errors.New("cortexx: worker not found")
	ErrRateStateNotFound    = errors.New("cortexx: tenant rate state not found")
	ErrUsageNotFound        = errors.New("cortexx: quota usage not found")

	// Validation errors — rejected immediately, never retried.
	ErrInvalidQueue     = errors.New("cortexx: unknown queue")
	ErrPayloadTooLarge  = errors.New("cortexx: payload exceeds queue limit")
	ErrInvalidSignature = errors.New("cortexx: invalid webhook signature")
	ErrUnknownEventType = errors.New("cortexx: unknown webhook event type")

	// Conflict errors — success-but-skip, not surfaced as failures.
	ErrJobAlreadyExists  = errors.New("cortexx: job already exists")
	ErrPlanAlreadyExists = errors.New("cortexx: plan already exists")
	ErrLeaseExpired      = errors.New("cortexx: job lease expired or held elsewhere")
	ErrDuplicateEvent    = errors.New("cortexx: duplicate webhook event")
	ErrVersionConflict   = errors.New("cortexx: concurrent update conflict")
	ErrRateStateExists   = errors.New("cortexx: tenant rate state already exists")

	// Admission errors.
	ErrRateLimited   = errors.New("cortexx: rate limit exceeded")
	ErrQuotaExceeded = errors.New("cortexx: quota exceeded")

	// State errors.
	ErrJobCanceled         = errors.New("cortexx: job canceled")
	ErrAttemptsExhausted   = errors.New("cortexx: max attempts exhausted")
	ErrInvalidTransition   = errors.New("cortexx: invalid subscription transition")
	ErrIdentityUnavailable = errors.New("cortexx: identity verification unavailable")
)

// RateLimitError is returned when a tenant exceeds its token bucket.
// The HTTP layer maps it to 429 with a Retry-After header.
type RateLimitError struct {
	TenantID   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("cortexx: tenant %s rate limited, retry in %s", e.TenantID, e.RetryAfter)
}

// Is makes errors.Is(err, ErrRateLimited) true for RateLimitError values.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// QuotaError is returned when a tenant exhausts a plan quota. Distinct from
// rate limiting: the remedy is a plan upgrade, not waiting.
type QuotaError struct {
	TenantID  string
	QuotaType string
	Used      int64
	Limit     int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("cortexx: tenant %s quota %q exhausted (%d/%d), upgrade plan",
		e.TenantID, e.QuotaType, e.Used, e.Limit)
}

// Is makes errors.Is(err, ErrQuotaExceeded) true for QuotaError values.
func (e *QuotaError) Is(target error) bool { return target == ErrQuotaExceeded }

// IsValidation reports whether the error is a caller mistake that must be
// rejected immediately and never retried.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidQueue) ||
		errors.Is(err, ErrPayloadTooLarge) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrUnknownEventType)
}

// IsConflict reports whether the error means another actor already did the
// work (lease lost, duplicate delivery). Callers treat it as success-but-skip.
func IsConflict(err error) bool {
	return errors.Is(err, ErrLeaseExpired) ||
		errors.Is(err, ErrDuplicateEvent) ||
		errors.Is(err, ErrJobAlreadyExists) ||
		errors.Is(err, ErrPlanAlreadyExists) ||
		errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrRateStateExists)
}

// IsTransient reports whether the operation may succeed on retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTxFailed) ||
		errors.Is(err, ErrStoreClosed)
}

// IsExhausted reports whether a budget ran out: retry attempts or plan
// quota. These need operator or tenant action, not automatic retry.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrAttemptsExhausted) ||
		errors.Is(err, ErrQuotaExceeded)
}

// IsNotFound reports whether the error is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound) ||
		errors.Is(err, ErrDLQNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrWorkerNotFound) ||
		errors.Is(err, ErrRateStateNotFound) ||
		errors.Is(err, ErrUsageNotFound)
}

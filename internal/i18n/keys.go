// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Authentication
	KeyAuthRequired         = "auth.required"
	KeyAuthInvalidToken     = "auth.invalid_token"
	KeyAuthInvalidSignature = "auth.invalid_signature"
	KeyAuthForbidden        = "auth.forbidden"

	// Validation
	KeyValidationInvalid = "validation.invalid"

	// Errors
	KeyInternalError = "error.internal"
	KeyRateLimited   = "error.rate_limited"
	KeyNotFound      = "error.not_found"

	// Responses
	KeyUserProfileUpdated   = "user.profile_updated"
	KeyProductUpdated       = "product.updated"
	KeyTransferInitiated    = "transfer.initiated"
	KeyTransferSigned       = "transfer.signed"
	KeyTransferCompleted    = "transfer.completed"
	KeyNotificationsUpdated = "notification.updated"
	KeySyncCompleted        = "sync.completed"
)

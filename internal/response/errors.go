package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// Authentication
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// Authorization
	ErrForbidden ErrCode = "FORBIDDEN"

	// Validation
	ErrValidation  ErrCode = "VALIDATION_ERROR"
	ErrInvalidID   ErrCode = "INVALID_ID"
	ErrInvalidExpr ErrCode = "INVALID_EXPRESSION"

	// Resources
	ErrNotFound ErrCode = "NOT_FOUND"

	// Test-session specific
	ErrTestNotAvailable   ErrCode = "TEST_NOT_AVAILABLE"
	ErrNoActiveAttempt    ErrCode = "NO_ACTIVE_ATTEMPT"
	ErrAttemptSubmitted   ErrCode = "ATTEMPT_ALREADY_SUBMITTED"
	ErrSessionInUse       ErrCode = "SESSION_IN_USE"
	ErrSubmissionFailed   ErrCode = "SUBMISSION_FAILED"
	ErrReviewPending      ErrCode = "REVIEW_PENDING"

	// Rate limiting
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// Server
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrSessionActive:
		return "You are already logged in on another device."
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."

	case ErrForbidden:
		return "You do not have permission to access this resource."

	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidExpr:
		return "The expression could not be evaluated."

	case ErrNotFound:
		return "Resource not found."

	case ErrTestNotAvailable:
		return "This test is not currently available."
	case ErrNoActiveAttempt:
		return "You have no active attempt for this test."
	case ErrAttemptSubmitted:
		return "This attempt has already been submitted."
	case ErrSessionInUse:
		return "A test session is already open for this attempt in another tab."
	case ErrSubmissionFailed:
		return "Submission failed. Please try again."
	case ErrReviewPending:
		return "Some questions are still marked for review."

	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}

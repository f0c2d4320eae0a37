package httputil

// Machine-readable error codes returned alongside error messages so clients
// can branch without parsing human text.
const (
	CodeInvalidRequestBody = "INVALID_REQUEST_BODY"
	CodeEmailRequired      = "EMAIL_REQUIRED"
	CodePasswordRequired   = "PASSWORD_REQUIRED"
	CodeEmailAlreadyExists = "EMAIL_ALREADY_EXISTS"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeMissingSession     = "MISSING_SESSION"
	CodeInvalidSession     = "INVALID_SESSION"
	CodeResetTokenRequired = "RESET_TOKEN_REQUIRED"
	CodeInvalidResetToken  = "INVALID_RESET_TOKEN"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeInternalError      = "INTERNAL_ERROR"
)

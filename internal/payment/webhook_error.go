package payment

import "net/http"

// WebhookError represents an error that occurred while verifying or decoding a webhook
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int    // HTTP status code
	PublicError   string // Safe to expose to clients
	InternalError string // Detailed error for logs only
	OriginalErr   error  // Underlying error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}

func configurationError(msg string) *WebhookError {
	return &WebhookError{
		Category:      "configuration",
		StatusCode:    http.StatusInternalServerError,
		PublicError:   "Webhook processing error",
		InternalError: msg,
	}
}

func validationError(public string, err error) *WebhookError {
	return &WebhookError{
		Category:      "validation",
		StatusCode:    http.StatusBadRequest,
		PublicError:   public,
		InternalError: public + ": " + err.Error(),
		OriginalErr:   err,
	}
}

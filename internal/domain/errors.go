package domain

import (
	"fmt"
)

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	StatusCode int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches AppErrors by code so derived errors still satisfy errors.Is
// against the pre-defined values
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Details:    e.Details,
		Err:        err,
	}
}

// WithDetails returns a copy carrying the given details for the caller
func (e *AppError) WithDetails(details map[string]any) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Details:    details,
		Err:        e.Err,
	}
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: 400,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: 404,
	}

	ErrIdentityNotFound = &AppError{
		Code:       "IDENTITY_NOT_FOUND",
		Message:    "Identity not found",
		StatusCode: 404,
	}

	ErrInvalidInput = &AppError{
		Code:       "INVALID_INPUT",
		Message:    "Invalid enrollment input",
		StatusCode: 422,
	}

	ErrInvalidEmbedding = &AppError{
		Code:       "INVALID_INPUT",
		Message:    fmt.Sprintf("Embedding must have exactly %d finite components", EmbeddingDimension),
		StatusCode: 422,
	}

	ErrDuplicateImage = &AppError{
		Code:       "DUPLICATE_IMAGE",
		Message:    "This exact image is already registered for another identity",
		StatusCode: 409,
	}

	ErrDuplicateFace = &AppError{
		Code:       "DUPLICATE_FACE",
		Message:    "This face is already registered with another identity",
		StatusCode: 409,
	}

	ErrKeyConflict = &AppError{
		Code:       "KEY_CONFLICT",
		Message:    "An identity with this unique_id already exists",
		StatusCode: 409,
	}

	ErrNoMatch = &AppError{
		Code:       "NO_MATCH",
		Message:    "Authentication failed, no matching identity found",
		StatusCode: 401,
	}

	ErrTimeout = &AppError{
		Code:       "TIMEOUT",
		Message:    "Identity scan did not complete in time",
		StatusCode: 504,
	}

	ErrStoreUnavailable = &AppError{
		Code:       "STORE_UNAVAILABLE",
		Message:    "Identity store is unavailable",
		StatusCode: 503,
	}

	ErrInvalidImage = &AppError{
		Code:       "INVALID_IMAGE",
		Message:    "Invalid image format or corrupted file",
		StatusCode: 422,
	}

	ErrNoFaceDetected = &AppError{
		Code:       "NO_FACE_DETECTED",
		Message:    "No face detected in the image",
		StatusCode: 422,
	}

	ErrProviderUnavailable = &AppError{
		Code:       "PROVIDER_UNAVAILABLE",
		Message:    "Face recognition provider is unavailable",
		StatusCode: 503,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Rate limit exceeded, please try again later",
		StatusCode: 429,
	}

	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: 422,
	}
)

// NewDuplicateImageError reports an exact photo collision with an enrolled identity
func NewDuplicateImageError(existingKey, existingName string) *AppError {
	return ErrDuplicateImage.WithDetails(map[string]any{
		"unique_id": existingKey,
		"name":      existingName,
	})
}

// NewDuplicateFaceError reports a face already enrolled under another identity
func NewDuplicateFaceError(existingKey, existingName string, distance float64) *AppError {
	return ErrDuplicateFace.WithDetails(map[string]any{
		"unique_id": existingKey,
		"name":      existingName,
		"distance":  distance,
	})
}

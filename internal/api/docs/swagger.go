package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// EnrollRequest documents the JSON enrollment body. Send face_image or
// embedding, never both.
type EnrollRequest struct {
	UniqueID    string    `json:"unique_id" example:"user-123"`
	Name        string    `json:"name" example:"Alice"`
	FaceImage   string    `json:"face_image,omitempty" example:"data:image/jpeg;base64,/9j/4AAQ..."`
	Embedding   []float64 `json:"embedding,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty" example:"c3a1f0e29b7d4c18"`
}

// AuthenticateRequest documents the JSON authentication body
type AuthenticateRequest struct {
	FaceImage string    `json:"face_image,omitempty" example:"data:image/jpeg;base64,/9j/4AAQ..."`
	Embedding []float64 `json:"embedding,omitempty"`
}

// RenameRequest documents the PATCH body
type RenameRequest struct {
	Name string `json:"name" example:"Alice Smith"`
}

// IdentityResponse represents an enrolled identity
type IdentityResponse struct {
	ID          string `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	UniqueID    string `json:"unique_id" example:"user-123"`
	Name        string `json:"name" example:"Alice"`
	Fingerprint string `json:"fingerprint,omitempty" example:"c3a1f0e29b7d4c18"`
	CreatedAt   string `json:"created_at" example:"2024-01-01T00:00:00Z"`
	UpdatedAt   string `json:"updated_at" example:"2024-01-01T00:00:00Z"`
}

// AuthenticateResponse represents the closest enrolled identity
type AuthenticateResponse struct {
	UniqueID string  `json:"unique_id" example:"user-123"`
	Name     string  `json:"name" example:"Alice"`
	Distance float64 `json:"distance" example:"0.31"`
}

// StatsResponse represents the registry size
type StatsResponse struct {
	Identities   int `json:"identities" example:"1500"`
	Placeholders int `json:"placeholders" example:"3"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string         `json:"code" example:"DUPLICATE_FACE"`
	Message string         `json:"message" example:"This face is already registered with another identity"`
	Details map[string]any `json:"details,omitempty"`
}

// EmptyResponse represents no content response (204)
type EmptyResponse struct{}

var (
	errInternal = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")
	errStore    = response.New(ErrorResponse{Code: "STORE_UNAVAILABLE", Message: "Identity store is unavailable"}, "503", "Service Unavailable")
	errNotFound = response.New(ErrorResponse{Code: "IDENTITY_NOT_FOUND", Message: "Identity not found"}, "404", "Not Found")
	keyParam    = parameter.StrParam("unique_id", parameter.Path, parameter.WithDescription("Caller-chosen identity key"))
)

// NewSwagger creates and configures the Swagger documentation
func NewSwagger(host string) *swagno.Swagger {
	if host == "" {
		host = "localhost:3000"
	}

	sw := swagno.New(swagno.Config{
		Title:       "FaceID Identity Registry API",
		Version:     "v1.0.0",
		Description: "Enrolls identities by face, rejects duplicate photos and duplicate faces, and authenticates probes against the registry",
		Host:        host,
		Path:        "/v1",
	})

	endpoints := []*endpoint.EndPoint{
		// POST /v1/identities - Enroll
		endpoint.New(
			endpoint.POST,
			"/identities",
			endpoint.WithTags("Identities"),
			endpoint.WithSummary("Enroll a new identity"),
			endpoint.WithDescription("Enrolls an identity from a photo (JSON face_image or multipart image field) or from a precomputed 128-dimension embedding. Rejects a taken unique_id, a photo already enrolled and a face within tolerance of an enrolled one."),
			endpoint.WithConsume([]mime.MIME{mime.JSON, mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(EnrollRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(IdentityResponse{}, "201", "Identity enrolled"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Invalid request"}, "400", "Bad Request"),
				response.New(ErrorResponse{Code: "KEY_CONFLICT", Message: "An identity with this unique_id already exists"}, "409", "Conflict"),
				response.New(ErrorResponse{Code: "DUPLICATE_IMAGE", Message: "This exact image is already registered for another identity"}, "409", "Conflict"),
				response.New(ErrorResponse{Code: "DUPLICATE_FACE", Message: "This face is already registered with another identity"}, "409", "Conflict"),
				response.New(ErrorResponse{Code: "INVALID_INPUT", Message: "Invalid enrollment input"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "NO_FACE_DETECTED", Message: "No face detected in the image"}, "422", "Unprocessable Entity"),
				errInternal,
				errStore,
				response.New(ErrorResponse{Code: "TIMEOUT", Message: "Identity scan did not complete in time"}, "504", "Gateway Timeout"),
			}),
		),

		// POST /v1/identities/authenticate - Authenticate (1:N)
		endpoint.New(
			endpoint.POST,
			"/identities/authenticate",
			endpoint.WithTags("Identities"),
			endpoint.WithSummary("Authenticate a face"),
			endpoint.WithDescription("Returns the enrolled identity closest to the probe when it lies within tolerance. Rate limited per client IP."),
			endpoint.WithConsume([]mime.MIME{mime.JSON, mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(AuthenticateRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(AuthenticateResponse{}, "200", "Identity matched"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Invalid request"}, "400", "Bad Request"),
				response.New(ErrorResponse{Code: "NO_MATCH", Message: "Authentication failed, no matching identity found"}, "401", "Unauthorized"),
				response.New(ErrorResponse{Code: "INVALID_INPUT", Message: "Embedding must have exactly 128 finite components"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Rate limit exceeded, please try again later"}, "429", "Too Many Requests"),
				errInternal,
				errStore,
			}),
		),

		// GET /v1/identities/:unique_id
		endpoint.New(
			endpoint.GET,
			"/identities/{unique_id}",
			endpoint.WithTags("Identities"),
			endpoint.WithSummary("Get an identity"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(keyParam),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(IdentityResponse{}, "200", "Identity retrieved"),
			}),
			endpoint.WithErrors([]response.Response{errNotFound, errInternal, errStore}),
		),

		// PATCH /v1/identities/:unique_id
		endpoint.New(
			endpoint.PATCH,
			"/identities/{unique_id}",
			endpoint.WithTags("Identities"),
			endpoint.WithSummary("Rename an identity"),
			endpoint.WithDescription("Changes the display name. The face and the unique_id are immutable."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(keyParam),
			endpoint.WithBody(RenameRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(IdentityResponse{}, "200", "Identity renamed"),
			}),
			endpoint.WithErrors([]response.Response{
				errNotFound,
				response.New(ErrorResponse{Code: "INVALID_INPUT", Message: "Invalid enrollment input"}, "422", "Unprocessable Entity"),
				errInternal,
				errStore,
			}),
		),

		// DELETE /v1/identities/:unique_id
		endpoint.New(
			endpoint.DELETE,
			"/identities/{unique_id}",
			endpoint.WithTags("Identities"),
			endpoint.WithSummary("Delete an identity"),
			endpoint.WithDescription("Removes the identity and its face data. Deleting an unknown unique_id succeeds."),
			endpoint.WithParams(keyParam),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "204", "Identity deleted"),
			}),
			endpoint.WithErrors([]response.Response{errInternal, errStore}),
		),

		// GET /v1/stats
		endpoint.New(
			endpoint.GET,
			"/stats",
			endpoint.WithTags("Registry"),
			endpoint.WithSummary("Registry size"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(StatsResponse{}, "200", "Registry size"),
			}),
			endpoint.WithErrors([]response.Response{errInternal, errStore}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}

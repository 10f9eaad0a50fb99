package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
)

// DefaultMaxImageSize caps uploaded photos when no limit is configured
const DefaultMaxImageSize = 10 * 1024 * 1024 // 10MB

var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
	"image/bmp":  true,
}

// IdentityService interface for the service
type IdentityService interface {
	Enroll(ctx context.Context, key, displayName string, embedding domain.Embedding, fp domain.Fingerprint) (*domain.Identity, error)
	EnrollImage(ctx context.Context, key, displayName string, image []byte) (*domain.Identity, error)
	Authenticate(ctx context.Context, probe domain.Embedding) (*domain.MatchResult, error)
	AuthenticateImage(ctx context.Context, image []byte) (*domain.MatchResult, error)
	Get(ctx context.Context, key string) (*domain.Identity, error)
	Rename(ctx context.Context, key, displayName string) (*domain.Identity, error)
	Delete(ctx context.Context, key string) error
	Stats(ctx context.Context) (*domain.RegistryStats, error)
}

// IdentityHandler handles identity registry requests
type IdentityHandler struct {
	service      IdentityService
	maxImageSize int64
	logger       *slog.Logger
}

// NewIdentityHandler creates a new IdentityHandler instance
func NewIdentityHandler(service IdentityService, maxImageSize int64, logger *slog.Logger) *IdentityHandler {
	if maxImageSize <= 0 {
		maxImageSize = DefaultMaxImageSize
	}
	return &IdentityHandler{
		service:      service,
		maxImageSize: maxImageSize,
		logger:       logger,
	}
}

// EnrollRequest is the JSON body of POST /v1/identities. Exactly one of
// FaceImage or Embedding must be set.
type EnrollRequest struct {
	UniqueID    string    `json:"unique_id"`
	Name        string    `json:"name"`
	FaceImage   string    `json:"face_image,omitempty"`
	Embedding   []float64 `json:"embedding,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
}

// AuthenticateRequest is the JSON body of POST /v1/identities/authenticate
type AuthenticateRequest struct {
	FaceImage string    `json:"face_image,omitempty"`
	Embedding []float64 `json:"embedding,omitempty"`
}

// RenameRequest is the JSON body of PATCH /v1/identities/:unique_id
type RenameRequest struct {
	Name string `json:"name"`
}

// IdentityResponse never carries the embedding
type IdentityResponse struct {
	ID          string `json:"id"`
	UniqueID    string `json:"unique_id"`
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// AuthenticateResponse response for authenticate endpoint
type AuthenticateResponse struct {
	UniqueID string  `json:"unique_id"`
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
}

// Enroll POST /v1/identities - enroll a new identity from a photo or an embedding
func (h *IdentityHandler) Enroll(c *fiber.Ctx) error {
	var req EnrollRequest
	var image []byte

	if isMultipart(c) {
		req.UniqueID = c.FormValue("unique_id")
		req.Name = c.FormValue("name")

		imageBytes, err := h.extractAndValidateImage(c)
		if err != nil {
			return fmt.Errorf("enroll identity: %w", err)
		}
		image = imageBytes
	} else {
		if err := c.BodyParser(&req); err != nil {
			return domain.ErrBadRequest.WithError(err)
		}

		imageBytes, err := h.decodeImage(req.FaceImage)
		if err != nil {
			return fmt.Errorf("enroll identity: %w", err)
		}
		image = imageBytes
	}

	if err := exactlyOne(image, req.Embedding); err != nil {
		return err
	}

	var identity *domain.Identity
	var err error
	if image != nil {
		identity, err = h.service.EnrollImage(c.Context(), req.UniqueID, req.Name, image)
	} else {
		identity, err = h.service.Enroll(c.Context(), req.UniqueID, req.Name,
			domain.Embedding(req.Embedding), domain.Fingerprint(req.Fingerprint))
	}
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(toIdentityResponse(identity))
}

// Authenticate POST /v1/identities/authenticate - find the closest enrolled identity
func (h *IdentityHandler) Authenticate(c *fiber.Ctx) error {
	var req AuthenticateRequest
	var image []byte

	if isMultipart(c) {
		imageBytes, err := h.extractAndValidateImage(c)
		if err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
		image = imageBytes
	} else {
		if err := c.BodyParser(&req); err != nil {
			return domain.ErrBadRequest.WithError(err)
		}

		imageBytes, err := h.decodeImage(req.FaceImage)
		if err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
		image = imageBytes
	}

	if err := exactlyOne(image, req.Embedding); err != nil {
		return err
	}

	var match *domain.MatchResult
	var err error
	if image != nil {
		match, err = h.service.AuthenticateImage(c.Context(), image)
	} else {
		match, err = h.service.Authenticate(c.Context(), domain.Embedding(req.Embedding))
	}
	if err != nil {
		return err
	}
	if match == nil {
		return domain.ErrNoMatch
	}

	return c.JSON(AuthenticateResponse{
		UniqueID: match.IdentityKey,
		Name:     match.IdentityName,
		Distance: match.Distance,
	})
}

// Get GET /v1/identities/:unique_id
func (h *IdentityHandler) Get(c *fiber.Ctx) error {
	identity, err := h.service.Get(c.Context(), c.Params("unique_id"))
	if err != nil {
		return err
	}
	return c.JSON(toIdentityResponse(identity))
}

// Rename PATCH /v1/identities/:unique_id - change the display name only
func (h *IdentityHandler) Rename(c *fiber.Ctx) error {
	var req RenameRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	identity, err := h.service.Rename(c.Context(), c.Params("unique_id"), req.Name)
	if err != nil {
		return err
	}
	return c.JSON(toIdentityResponse(identity))
}

// Delete DELETE /v1/identities/:unique_id
func (h *IdentityHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.Context(), c.Params("unique_id")); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Stats GET /v1/stats
func (h *IdentityHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm)
}

func exactlyOne(image []byte, embedding []float64) error {
	switch {
	case image != nil && embedding != nil:
		return domain.ErrValidationFailed.WithError(errors.New("send either face_image or embedding, not both"))
	case image == nil && embedding == nil:
		return domain.ErrValidationFailed.WithError(errors.New("face_image or embedding is required"))
	}
	return nil
}

// decodeImage accepts plain base64 or a data URI. An empty field yields nil.
func (h *IdentityHandler) decodeImage(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	if i := strings.Index(encoded, ";base64,"); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len(";base64,"):]
	}

	if int64(base64.StdEncoding.DecodedLen(len(encoded))) > h.maxImageSize+2 {
		return nil, domain.ErrValidationFailed.WithError(errors.New("face_image exceeds the maximum size"))
	}

	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	if len(image) == 0 {
		return nil, domain.ErrInvalidImage.WithError(errors.New("empty image"))
	}
	return image, nil
}

// extractAndValidateImage extracts and validates the image from the form
func (h *IdentityHandler) extractAndValidateImage(c *fiber.Ctx) ([]byte, error) {
	file, err := c.FormFile("image")
	if err != nil {
		return nil, domain.ErrValidationFailed.WithError(err)
	}

	if file.Size > h.maxImageSize {
		return nil, domain.ErrValidationFailed.WithError(errors.New("image exceeds the maximum size"))
	}
	if file.Size == 0 {
		return nil, domain.ErrInvalidImage.WithError(errors.New("empty image"))
	}

	contentType := file.Header.Get("Content-Type")
	if !validImageTypes[contentType] {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("unsupported content type %q", contentType))
	}

	f, err := file.Open()
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	defer func() {
		_ = f.Close()
	}()

	imageBytes, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	return imageBytes, nil
}

func toIdentityResponse(identity *domain.Identity) IdentityResponse {
	resp := IdentityResponse{
		ID:        identity.ID.String(),
		UniqueID:  identity.Key,
		Name:      identity.DisplayName,
		CreatedAt: identity.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: identity.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if identity.HasFingerprint() {
		resp.Fingerprint = string(*identity.Fingerprint)
	}
	return resp
}

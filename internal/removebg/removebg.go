// Package removebg proxies photos to a remote segmentation service and returns
// the subject cut out on a transparent PNG.
package removebg

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const (
	DefaultEndpoint = "https://sdk.photoroom.com/v1/segment"
	DefaultMaxBytes = 10 * 1024 * 1024
)

type Category string

const (
	CategoryValidation    Category = "validation"
	CategoryConfiguration Category = "configuration"
	CategoryQuota         Category = "quota"
	CategoryRateLimited   Category = "rate_limited"
	CategoryProcessing    Category = "processing"
)

// Error is a user-facing failure of the removal call.
type Error struct {
	Category Category
	// Status is the remote HTTP status, 0 when no call was made.
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (remote status %d)", e.Message, e.Status)
	}
	return e.Message
}

// HTTPStatus is the status the proxy answers with for this failure.
func (e *Error) HTTPStatus() int {
	switch e.Category {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryConfiguration:
		if e.Status == 0 {
			// missing key on our side, not a rejected one
			return http.StatusInternalServerError
		}
		return http.StatusUnauthorized
	case CategoryQuota:
		return http.StatusPaymentRequired
	case CategoryRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Upload is the single image field sent for processing.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Client struct {
	Endpoint string
	APIKey   string
	MaxBytes int
	Timeout  time.Duration
}

func NewClient(apiKey string) *Client {
	return &Client{
		Endpoint: DefaultEndpoint,
		APIKey:   apiKey,
		MaxBytes: DefaultMaxBytes,
		Timeout:  60 * time.Second,
	}
}

// Validate checks an upload without touching the network.
func (c *Client) Validate(u Upload) error {
	if len(u.Data) == 0 {
		return &Error{Category: CategoryValidation, Message: "No se proporcionó imagen"}
	}
	if limit := c.maxBytes(); len(u.Data) > limit {
		return &Error{Category: CategoryValidation, Message: fmt.Sprintf("La imagen es demasiado grande (máximo %dMB)", limit/(1024*1024))}
	}
	if !strings.HasPrefix(u.ContentType, "image/") {
		return &Error{Category: CategoryValidation, Message: "El archivo debe ser una imagen"}
	}
	return nil
}

func (c *Client) maxBytes() int {
	if c.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return c.MaxBytes
}

// RemoveBackground sends u to the segmentation service and returns PNG bytes.
func (c *Client) RemoveBackground(ctx context.Context, u Upload) ([]byte, error) {
	if err := c.Validate(u); err != nil {
		return nil, err
	}
	if c.APIKey == "" {
		return nil, &Error{Category: CategoryConfiguration, Message: "Servicio no configurado"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filename := u.Filename
	if filename == "" {
		filename = "photo"
	}
	timeout := c.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout <= 0 || left < timeout {
			timeout = left
		}
	}

	agent := fiber.Post(c.Endpoint).
		Set("x-api-key", c.APIKey).
		FileData(&fiber.FormFile{Fieldname: "image_file", Name: filename, Content: u.Data}).
		MultipartForm(nil)
	if timeout > 0 {
		agent = agent.Timeout(timeout)
	}
	if err := agent.Parse(); err != nil {
		return nil, fmt.Errorf("failed to prepare request: %w", err)
	}

	start := time.Now()
	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		log.Ctx(ctx).Error().Err(errs[0]).Str("endpoint", c.Endpoint).Msg("segmentation call failed")
		return nil, &Error{Category: CategoryProcessing, Message: "Error interno del servidor"}
	}
	log.Ctx(ctx).Debug().
		Int("status", code).
		Int("bytes", len(body)).
		Dur("took", time.Since(start)).
		Msg("segmentation call finished")

	if code < 200 || code > 299 {
		return nil, classify(code)
	}
	if len(body) == 0 {
		return nil, &Error{Category: CategoryProcessing, Status: code, Message: "El servicio devolvió una imagen vacía"}
	}
	return body, nil
}

func classify(status int) *Error {
	switch status {
	case http.StatusUnauthorized:
		return &Error{Category: CategoryConfiguration, Status: status, Message: "API Key inválida"}
	case http.StatusPaymentRequired:
		return &Error{Category: CategoryQuota, Status: status, Message: "Créditos agotados"}
	case http.StatusTooManyRequests:
		return &Error{Category: CategoryRateLimited, Status: status, Message: "Demasiadas solicitudes. Intenta de nuevo."}
	default:
		return &Error{Category: CategoryProcessing, Status: status, Message: "Error al procesar imagen"}
	}
}

// IsCategory reports whether err is a removal Error of category c.
func IsCategory(err error, c Category) bool {
	var e *Error
	return errors.As(err, &e) && e.Category == c
}

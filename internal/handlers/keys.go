package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/keygate-io/keygate/internal/services"
	"github.com/keygate-io/keygate/internal/store"
	apperrors "github.com/keygate-io/keygate/pkg/errors"
	"github.com/keygate-io/keygate/pkg/response"
	"github.com/keygate-io/keygate/pkg/validator"
)

// KeyHandler exposes the credential pipeline over HTTP.
type KeyHandler struct {
	publisher *services.PublisherService
	validator *services.ValidatorService
	admin     *services.AdminService
}

// NewKeyHandler wires the pipeline services into a handler.
func NewKeyHandler(publisher *services.PublisherService, validatorSvc *services.ValidatorService, admin *services.AdminService) *KeyHandler {
	return &KeyHandler{
		publisher: publisher,
		validator: validatorSvc,
		admin:     admin,
	}
}

type publishRequest struct {
	ItemKey     string    `json:"item_key" validate:"required"`
	Permissions []string  `json:"permissions" validate:"required,min=1"`
	ExpiresAt   time.Time `json:"expires_at" validate:"required"`
	MaxUses     int64     `json:"max_uses" validate:"required,min=1"`
}

type validateRequest struct {
	Key string `json:"key" validate:"required"`
}

// bindAndValidate decodes the JSON body and applies struct-level rules,
// normalising failures to the validation error code.
func bindAndValidate(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperrors.NewValidation("body", "must be valid JSON")
	}
	if err := validator.ValidateStruct(dst); err != nil {
		return apperrors.NewValidation("body", err.Error())
	}
	return nil
}

// Publish mints a new opaque key. The plaintext secret appears exactly once,
// in this response.
func (h *KeyHandler) Publish(c *gin.Context) {
	var req publishRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.publisher.Publish(c.Request.Context(), services.PublishInput{
		ItemKey:     req.ItemKey,
		Permissions: req.Permissions,
		ExpiresAt:   req.ExpiresAt,
		MaxUses:     req.MaxUses,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, result)
}

// Validate checks a presented secret and consumes one use on success. The
// caller's IP is the rate-limiting identity.
func (h *KeyHandler) Validate(c *gin.Context) {
	var req validateRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.validator.Validate(c.Request.Context(), req.Key, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Revoke supersedes a key by record id or verifier.
func (h *KeyHandler) Revoke(c *gin.Context) {
	target := c.Param("id")
	if target == "" {
		response.Error(c, apperrors.NewValidation("id", "is required"))
		return
	}

	if err := h.admin.Revoke(c.Request.Context(), target); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": target})
}

// List pages the stored records, newest first.
func (h *KeyHandler) List(c *gin.Context) {
	opts := store.ListOptions{
		Limit:   queryInt(c, "limit", 0),
		Offset:  queryInt(c, "offset", 0),
		ItemKey: c.Query("item_key"),
	}

	page, err := h.admin.List(c.Request.Context(), opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, page)
}

// Stats summarises the collection for operators.
func (h *KeyHandler) Stats(c *gin.Context) {
	stats, err := h.admin.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, stats)
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

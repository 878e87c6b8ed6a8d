package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kvdb/kvdb/internal/api/validation"
	"github.com/kvdb/kvdb/internal/keystore"
)

// KeyStore is the set of key operations the handlers serve
type KeyStore interface {
	Create(ctx context.Context, key, value string, readOnly bool) (keystore.Metadata, error)
	Read(ctx context.Context, key string) (string, error)
	Update(ctx context.Context, key, value string) (keystore.Metadata, error)
	Delete(ctx context.Context, key string) error
	Stat(ctx context.Context, key string) (keystore.Metadata, error)
	Limits() keystore.Limits
}

// Response headers set by HEAD /key
const (
	HeaderReadOnly     = "X-Key-Read-Only"
	HeaderCreatedAt    = "X-Key-Created-At"
	HeaderLastActiveAt = "X-Key-Last-Active-At"
)

// KeyHandlers provides HTTP handlers for key operations
type KeyHandlers struct {
	store        KeyStore
	maxBodyBytes int64
}

// NewKeyHandlers creates key handlers. Request bodies are capped at a size
// that fits the largest key and value even when every byte is JSON-escaped.
func NewKeyHandlers(store KeyStore) *KeyHandlers {
	limits := store.Limits()
	return &KeyHandlers{
		store:        store,
		maxBodyBytes: 6*int64(limits.MaxKeyLength+limits.MaxValueLength) + 1024,
	}
}

// CreateKeyRequest is the body of POST /key
type CreateKeyRequest struct {
	Name     *string `json:"name,omitempty"`
	Value    string  `json:"value"`
	ReadOnly bool    `json:"read_only"`
}

// CreateKeyResponse is returned by POST /key
type CreateKeyResponse struct {
	keystore.Metadata
	Success bool `json:"success"`
}

// UpdateKeyRequest is the body of PATCH /key
type UpdateKeyRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// GetKeyResponse is returned by GET /key
type GetKeyResponse struct {
	Value   string `json:"value"`
	Success bool   `json:"success"`
}

// Create handles POST /key. Without a name a UUID is generated.
func (h *KeyHandlers) Create(c *gin.Context) {
	body, err := h.readBody(c)
	if err != nil {
		writeError(c, err)
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := validation.ValidateBody(validation.SchemaCreateKey, body); err != nil {
		writeError(c, err)
		return
	}

	var req CreateKeyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(c, validation.ValidationError{Reason: err.Error()})
		return
	}

	name := ""
	if req.Name != nil {
		if *req.Name == "" {
			writeError(c, keystore.InvalidKeyError{Key: "", Reason: "key cannot be empty"})
			return
		}
		name = *req.Name
	}

	meta, err := h.store.Create(c.Request.Context(), name, req.Value, req.ReadOnly)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, CreateKeyResponse{Metadata: meta, Success: true})
}

// Get handles GET /key?name=
func (h *KeyHandlers) Get(c *gin.Context) {
	name, ok := requireName(c)
	if !ok {
		return
	}

	value, err := h.store.Read(c.Request.Context(), name)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, GetKeyResponse{Value: value, Success: true})
}

// Update handles PATCH /key
func (h *KeyHandlers) Update(c *gin.Context) {
	body, err := h.readBody(c)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := validation.ValidateBody(validation.SchemaUpdateKey, body); err != nil {
		writeError(c, err)
		return
	}

	var req UpdateKeyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(c, validation.ValidationError{Reason: err.Error()})
		return
	}

	if _, err := h.store.Update(c.Request.Context(), req.Name, req.Value); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// Delete handles DELETE /key?name=
func (h *KeyHandlers) Delete(c *gin.Context) {
	name, ok := requireName(c)
	if !ok {
		return
	}

	if err := h.store.Delete(c.Request.Context(), name); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// Head handles HEAD /key?name=. It reports metadata in headers and does not
// count as activity.
func (h *KeyHandlers) Head(c *gin.Context) {
	name, present := c.GetQuery("name")
	if err := validation.RequireQuery("name", name, present); err != nil {
		c.AbortWithStatus(StatusFor(err))
		return
	}

	meta, err := h.store.Stat(c.Request.Context(), name)
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatus(StatusFor(err))
		return
	}

	c.Header(HeaderReadOnly, strconv.FormatBool(meta.ReadOnly))
	c.Header(HeaderCreatedAt, meta.CreatedAt.UTC().Format(time.RFC3339Nano))
	c.Header(HeaderLastActiveAt, meta.LastActiveAt.UTC().Format(time.RFC3339Nano))
	c.Status(http.StatusOK)
}

func (h *KeyHandlers) readBody(c *gin.Context) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
}

func requireName(c *gin.Context) (string, bool) {
	name, present := c.GetQuery("name")
	if err := validation.RequireQuery("name", name, present); err != nil {
		writeError(c, err)
		return "", false
	}
	return name, true
}

package api

import (
	stderrors "errors"
	"net/http"

	"grading-assistant-core/internal/config"
	"grading-assistant-core/internal/db"
	"grading-assistant-core/internal/logger"
	"grading-assistant-core/internal/model"
	"grading-assistant-core/internal/queue"
	"grading-assistant-core/internal/sync"
	"grading-assistant-core/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// HeaderReplayed is set on a batch-create response answered from an earlier
// call with the same idempotency key.
const HeaderReplayed = "Idempotent-Replayed"

var validate = validator.New()

type Handler struct {
	repo     db.Repository
	producer *queue.Producer
	cfg      *config.Config
	log      zerolog.Logger
}

// NewHandler builds the handler. producer may be nil when no trigger queue
// is configured.
func NewHandler(repo db.Repository, producer *queue.Producer, cfg *config.Config) *Handler {
	return &Handler{
		repo:     repo,
		producer: producer,
		cfg:      cfg,
		log:      logger.Component("api"),
	}
}

func (h *Handler) CreateRecords(c *gin.Context) {
	key := c.GetHeader(sync.HeaderIdempotencyKey)
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errors.ErrMissingIdempotent.Error()})
		return
	}

	var req model.BatchCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		respondValidation(c, err)
		return
	}

	id := identity(c)
	created, replayed, err := h.repo.CreateBatch(c.Request.Context(), id.Key(), key, req.Records)
	if err != nil {
		h.log.Error().Err(err).Str("device_id", id.DeviceID).Msg("Failed to create records")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if replayed {
		c.Header(HeaderReplayed, "true")
	}
	h.log.Info().
		Str("device_id", id.DeviceID).
		Str("idempotency_key", key).
		Int("batch_size", len(req.Records)).
		Int("created", created).
		Bool("replayed", replayed).
		Msg("Record batch applied")

	c.JSON(http.StatusOK, model.BatchCreateResponse{Created: created})
}

func (h *Handler) ListRecords(c *gin.Context) {
	var query model.RecordQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query"})
		return
	}
	query.Page, query.Limit = db.NormalizePage(query)

	records, total, err := h.repo.List(c.Request.Context(), identity(c).Key(), query)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list records")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, model.RecordPage{
		Records:    records,
		Total:      total,
		Page:       query.Page,
		Limit:      query.Limit,
		TotalPages: (total + query.Limit - 1) / query.Limit,
	})
}

func (h *Handler) DeleteRecords(c *gin.Context) {
	var filter model.QuestionFilter
	if err := c.ShouldBindQuery(&filter); err != nil || filter.IsEmpty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": errors.ErrMissingFilter.Error()})
		return
	}

	id := identity(c)
	deleted, err := h.repo.DeleteByFilter(c.Request.Context(), id.Key(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to delete records")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	h.log.Info().
		Str("device_id", id.DeviceID).
		Str("question_key", filter.QuestionKey).
		Str("question_no", filter.QuestionNo).
		Int("deleted", deleted).
		Msg("Records deleted")
	c.JSON(http.StatusOK, model.DeleteResponse{Deleted: deleted})
}

// LicenseStatus answers for any caller, entitled or not.
func (h *Handler) LicenseStatus(c *gin.Context) {
	id := identity(c)
	if id.DeviceID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing device id"})
		return
	}
	c.JSON(http.StatusOK, licenseStatus(h.cfg.License, id))
}

// TriggerSync queues a sync request for the caller's identity.
func (h *Handler) TriggerSync(c *gin.Context) {
	if h.producer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Sync queue is not configured"})
		return
	}

	var req struct {
		Reason string `json:"reason" validate:"omitempty,oneof=manual foreground import"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		respondValidation(c, err)
		return
	}

	id := identity(c)
	trigger := model.SyncTrigger{
		DeviceID:     id.DeviceID,
		ActivationID: id.ActivationID,
		Reason:       req.Reason,
	}
	if err := h.producer.EnqueueSyncTrigger(c.Request.Context(), trigger); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue sync trigger")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue sync"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Sync queued"})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.cfg.App.Name,
		"version": h.cfg.App.Version,
	})
}

func respondValidation(c *gin.Context, err error) {
	var ve validator.ValidationErrors
	if !stderrors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Namespace()] = fe.Tag()
	}
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"error":  errors.ErrSchemaValidation.Error(),
		"fields": fields,
	})
}

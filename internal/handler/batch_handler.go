package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/reelforge/clip-engine/internal/domain"
	"github.com/reelforge/clip-engine/internal/repository"
	"github.com/reelforge/clip-engine/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type BatchService interface {
	Create(ctx context.Context, name string, cfg domain.BatchConfig, maxParallel int) (*domain.Batch, error)
	Get(ctx context.Context, id string) (*domain.Batch, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.Batch, int64, error)
	AddItem(ctx context.Context, batchID, content string) (*domain.Batch, error)
	RemoveItem(ctx context.Context, batchID, itemID string) (*domain.Batch, error)
	UpdateConfig(ctx context.Context, batchID string, patch domain.ConfigPatch) (*domain.Batch, error)
	Lock(ctx context.Context, batchID string) (*domain.Batch, error)
	Unlock(ctx context.Context, batchID string) (*domain.Batch, error)
	StartAsync(ctx context.Context, batchID string) (*domain.Batch, error)
	RetryFailed(ctx context.Context, batchID string) (*domain.Batch, int, error)
	Cancel(ctx context.Context, batchID string) error
	Progress(ctx context.Context, batchID string) (*service.BatchProgress, error)
	FailedItems(ctx context.Context, batchID string) ([]domain.BatchItem, error)
}

type BatchHandler struct {
	service BatchService
}

func NewBatchHandler(service BatchService) (*BatchHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("batch service is required")
	}
	return &BatchHandler{service: service}, nil
}

func RegisterBatchRoutes(router fiber.Router, service BatchService) error {
	h, err := NewBatchHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/batches", h.CreateBatch)
	v1.Get("/batches", h.ListBatches)
	v1.Get("/batches/:id", h.GetBatch)
	v1.Post("/batches/:id/items", h.AddItem)
	v1.Delete("/batches/:id/items/:itemId", h.RemoveItem)
	v1.Patch("/batches/:id/config", h.UpdateConfig)
	v1.Post("/batches/:id/lock", h.LockBatch)
	v1.Post("/batches/:id/unlock", h.UnlockBatch)
	v1.Post("/batches/:id/start", h.StartBatch)
	v1.Post("/batches/:id/retry", h.RetryFailed)
	v1.Post("/batches/:id/cancel", h.CancelBatch)
	v1.Get("/batches/:id/progress", h.GetProgress)
	v1.Get("/batches/:id/failed-items", h.ListFailedItems)

	return nil
}

type batchConfigRequest struct {
	Platform          string  `json:"platform"`
	TargetDurationSec float64 `json:"targetDurationSec"`
	Voice             string  `json:"voice"`
	Genre             string  `json:"genre"`
	Language          string  `json:"language"`
	Audience          string  `json:"audience"`
}

type createBatchRequest struct {
	Name        string             `json:"name"`
	Config      batchConfigRequest `json:"config"`
	MaxParallel int                `json:"maxParallel"`
}

type addItemRequest struct {
	Content string `json:"content"`
}

type updateConfigRequest struct {
	Platform          *string  `json:"platform"`
	TargetDurationSec *float64 `json:"targetDurationSec"`
	Voice             *string  `json:"voice"`
	Genre             *string  `json:"genre"`
	Language          *string  `json:"language"`
	Audience          *string  `json:"audience"`
}

type batchItemResponse struct {
	ID          string     `json:"id"`
	Order       int        `json:"order"`
	Content     string     `json:"content"`
	Status      string     `json:"status"`
	UnitID      *string    `json:"unitId,omitempty"`
	OutputPath  *string    `json:"outputPath,omitempty"`
	LastError   *string    `json:"lastError,omitempty"`
	RetryCount  int        `json:"retryCount"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type batchConfigResponse struct {
	Platform          string  `json:"platform"`
	TargetDurationSec float64 `json:"targetDurationSec"`
	Voice             string  `json:"voice,omitempty"`
	Genre             string  `json:"genre,omitempty"`
	Language          string  `json:"language,omitempty"`
	Audience          string  `json:"audience,omitempty"`
}

type batchResponse struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Status      string              `json:"status"`
	Config      batchConfigResponse `json:"config"`
	MaxParallel int                 `json:"maxParallel"`
	Items       []batchItemResponse `json:"items"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
	LockedAt    *time.Time          `json:"lockedAt,omitempty"`
	StartedAt   *time.Time          `json:"startedAt,omitempty"`
	CompletedAt *time.Time          `json:"completedAt,omitempty"`
}

type listBatchesResponse struct {
	Data []batchResponse `json:"data"`
	Meta listMeta        `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type retryFailedResponse struct {
	BatchID    string `json:"batchId"`
	Status     string `json:"status"`
	ResetCount int    `json:"resetCount"`
}

type progressResponse struct {
	BatchID   string              `json:"batchId"`
	Name      string              `json:"name"`
	Status    string              `json:"status"`
	Total     int                 `json:"total"`
	Completed int                 `json:"completed"`
	Failed    int                 `json:"failed"`
	Items     []itemProgressEntry `json:"items"`
}

type itemProgressEntry struct {
	ItemID     string  `json:"itemId"`
	Order      int     `json:"order"`
	Status     string  `json:"status"`
	UnitID     *string `json:"unitId,omitempty"`
	OutputPath *string `json:"outputPath,omitempty"`
	LastError  *string `json:"lastError,omitempty"`
	RetryCount int     `json:"retryCount"`
}

func (h *BatchHandler) CreateBatch(c *fiber.Ctx) error {
	var req createBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	cfg, err := requestToBatchConfig(req.Config)
	if err != nil {
		return toHTTPError(err)
	}

	batch, err := h.service.Create(c.Context(), strings.TrimSpace(req.Name), cfg, req.MaxParallel)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) GetBatch(c *fiber.Ctx) error {
	batch, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) ListBatches(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	batches, total, err := h.service.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]batchResponse, 0, len(batches))
	for i := range batches {
		data = append(data, toBatchResponse(&batches[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listBatchesResponse{
		Data: data,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *BatchHandler) AddItem(c *fiber.Ctx) error {
	var req addItemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	batch, err := h.service.AddItem(c.Context(), c.Params("id"), req.Content)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) RemoveItem(c *fiber.Ctx) error {
	batch, err := h.service.RemoveItem(c.Context(), c.Params("id"), c.Params("itemId"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) UpdateConfig(c *fiber.Ctx) error {
	var req updateConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	patch, err := requestToConfigPatch(req)
	if err != nil {
		return toHTTPError(err)
	}

	batch, err := h.service.UpdateConfig(c.Context(), c.Params("id"), patch)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) LockBatch(c *fiber.Ctx) error {
	batch, err := h.service.Lock(c.Context(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) UnlockBatch(c *fiber.Ctx) error {
	batch, err := h.service.Unlock(c.Context(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) StartBatch(c *fiber.Ctx) error {
	batch, err := h.service.StartAsync(c.Context(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) RetryFailed(c *fiber.Ctx) error {
	batch, reset, err := h.service.RetryFailed(c.Context(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(retryFailedResponse{
		BatchID:    batch.ID,
		Status:     batch.Status.String(),
		ResetCount: reset,
	})
}

func (h *BatchHandler) CancelBatch(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Cancel(c.Context(), id); err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"batchId": id,
		"status":  domain.BatchStatusCancelled.String(),
	})
}

func (h *BatchHandler) GetProgress(c *fiber.Ctx) error {
	progress, err := h.service.Progress(c.Context(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]itemProgressEntry, 0, len(progress.Items))
	for _, item := range progress.Items {
		items = append(items, itemProgressEntry{
			ItemID:     item.ItemID,
			Order:      item.Order,
			Status:     item.Status.String(),
			UnitID:     item.UnitID,
			OutputPath: item.OutputPath,
			LastError:  item.LastError,
			RetryCount: item.RetryCount,
		})
	}

	return c.Status(fiber.StatusOK).JSON(progressResponse{
		BatchID:   progress.BatchID,
		Name:      progress.Name,
		Status:    progress.Status.String(),
		Total:     progress.Total,
		Completed: progress.Completed,
		Failed:    progress.Failed,
		Items:     items,
	})
}

func (h *BatchHandler) ListFailedItems(c *fiber.Ctx) error {
	items, err := h.service.FailedItems(c.Context(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]batchItemResponse, 0, len(items))
	for i := range items {
		responses = append(responses, toBatchItemResponse(items[i]))
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": responses,
	})
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseBatchStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	if rawPlatform := strings.TrimSpace(c.Query("platform")); rawPlatform != "" {
		platform, err := domain.ParsePlatformFromString(rawPlatform)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Platform = &platform
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func requestToBatchConfig(req batchConfigRequest) (domain.BatchConfig, error) {
	platform, err := domain.ParsePlatformFromString(req.Platform)
	if err != nil {
		return domain.BatchConfig{}, err
	}

	return domain.BatchConfig{
		Platform:          platform,
		TargetDurationSec: req.TargetDurationSec,
		Voice:             strings.TrimSpace(req.Voice),
		Genre:             strings.TrimSpace(req.Genre),
		Language:          strings.TrimSpace(req.Language),
		Audience:          strings.TrimSpace(req.Audience),
	}, nil
}

func requestToConfigPatch(req updateConfigRequest) (domain.ConfigPatch, error) {
	patch := domain.ConfigPatch{
		TargetDurationSec: req.TargetDurationSec,
		Voice:             req.Voice,
		Genre:             req.Genre,
		Language:          req.Language,
		Audience:          req.Audience,
	}

	if req.Platform != nil {
		platform, err := domain.ParsePlatformFromString(*req.Platform)
		if err != nil {
			return domain.ConfigPatch{}, err
		}
		patch.Platform = &platform
	}

	return patch, nil
}

func toBatchResponse(batch *domain.Batch) batchResponse {
	if batch == nil {
		return batchResponse{}
	}

	items := make([]batchItemResponse, 0, len(batch.Items))
	for i := range batch.Items {
		items = append(items, toBatchItemResponse(batch.Items[i]))
	}

	return batchResponse{
		ID:     batch.ID,
		Name:   batch.Name,
		Status: batch.Status.String(),
		Config: batchConfigResponse{
			Platform:          batch.Config.Platform.String(),
			TargetDurationSec: batch.Config.TargetDurationSec,
			Voice:             batch.Config.Voice,
			Genre:             batch.Config.Genre,
			Language:          batch.Config.Language,
			Audience:          batch.Config.Audience,
		},
		MaxParallel: batch.MaxParallel,
		Items:       items,
		CreatedAt:   batch.CreatedAt,
		UpdatedAt:   batch.UpdatedAt,
		LockedAt:    batch.LockedAt,
		StartedAt:   batch.StartedAt,
		CompletedAt: batch.CompletedAt,
	}
}

func toBatchItemResponse(item domain.BatchItem) batchItemResponse {
	return batchItemResponse{
		ID:          item.ID,
		Order:       item.Order,
		Content:     item.Content,
		Status:      item.Status.String(),
		UnitID:      item.UnitID,
		OutputPath:  item.OutputPath,
		LastError:   item.LastError,
		RetryCount:  item.RetryCount,
		CompletedAt: item.CompletedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrState):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}

package generation

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/angelmondragon/receipt-generator/internal/aggregator"
	"github.com/angelmondragon/receipt-generator/internal/status"
	"github.com/angelmondragon/receipt-generator/internal/templates"
	"github.com/angelmondragon/receipt-generator/pkg/bizevents"
	"github.com/angelmondragon/receipt-generator/pkg/db/models"
	"github.com/angelmondragon/receipt-generator/pkg/enums"
	pkgerrors "github.com/angelmondragon/receipt-generator/pkg/errors"
	"github.com/angelmondragon/receipt-generator/pkg/logger"
	"github.com/angelmondragon/receipt-generator/pkg/metrics"
	"github.com/angelmondragon/receipt-generator/pkg/pdfengine"
	"github.com/angelmondragon/receipt-generator/pkg/storage/gcs"
	"go.uber.org/multierr"
)

const (
	pdfContentType = "application/pdf"

	defaultMaxRetry         = 5
	defaultQueueMaxAttempts = 3
	defaultBlobPrefix       = "pagopa-ricevuta"
)

// Renderer turns a template into a PDF stream.
type Renderer interface {
	Generate(ctx context.Context, req pdfengine.Request) (io.ReadCloser, error)
}

// BlobStore persists rendered documents.
type BlobStore interface {
	Upload(ctx context.Context, name, contentType string, body io.Reader) (*gcs.UploadResult, error)
}

// RetryPublisher re-enqueues a unit for a later attempt.
type RetryPublisher interface {
	PublishRetry(ctx context.Context, receiptID string) error
}

// StatusStore is the status manager surface used by the orchestrator.
type StatusStore interface {
	Load(ctx context.Context, id string) (*models.Receipt, error)
	Update(ctx context.Context, id string, mutation status.Mutation) (*models.Receipt, error)
}

// Aggregator folds biz events into units of work.
type Aggregator interface {
	Aggregate(ctx context.Context, event bizevents.BizEvent) (aggregator.Unit, bool, error)
}

// ServiceParams configure the generation orchestrator.
type ServiceParams struct {
	Logger           *logger.Logger
	Store            StatusStore
	Aggregator       Aggregator
	Renderer         Renderer
	Blobs            BlobStore
	Retry            RetryPublisher
	Metrics          *metrics.GenerationMetrics
	TemplateID       string
	ApplySignature   bool
	BlobPrefix       string
	MaxRetry         int
	QueueMaxAttempts int
}

// Service drives a unit from INSERTED or RETRY to its next status.
type Service struct {
	logg             *logger.Logger
	store            StatusStore
	aggregator       Aggregator
	renderer         Renderer
	blobs            BlobStore
	retry            RetryPublisher
	metrics          *metrics.GenerationMetrics
	templateID       string
	applySignature   bool
	blobPrefix       string
	maxRetry         int
	queueMaxAttempts int
}

// NewService builds the orchestrator.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("status store required")
	}
	if params.Aggregator == nil {
		return nil, fmt.Errorf("aggregator required")
	}
	if params.Renderer == nil {
		return nil, fmt.Errorf("pdf renderer required")
	}
	if params.Blobs == nil {
		return nil, fmt.Errorf("blob store required")
	}
	if params.Retry == nil {
		return nil, fmt.Errorf("retry publisher required")
	}
	if params.TemplateID == "" {
		return nil, fmt.Errorf("template id required")
	}
	maxRetry := params.MaxRetry
	if maxRetry <= 0 {
		maxRetry = defaultMaxRetry
	}
	queueMax := params.QueueMaxAttempts
	if queueMax <= 0 {
		queueMax = defaultQueueMaxAttempts
	}
	prefix := params.BlobPrefix
	if prefix == "" {
		prefix = defaultBlobPrefix
	}
	return &Service{
		logg:             params.Logger,
		store:            params.Store,
		aggregator:       params.Aggregator,
		renderer:         params.Renderer,
		blobs:            params.Blobs,
		retry:            params.Retry,
		metrics:          params.Metrics,
		templateID:       params.TemplateID,
		applySignature:   params.ApplySignature,
		blobPrefix:       prefix,
		maxRetry:         maxRetry,
		queueMaxAttempts: queueMax,
	}, nil
}

// HandleBizEvent aggregates event and generates the unit it completes, if any.
func (s *Service) HandleBizEvent(ctx context.Context, event bizevents.BizEvent) error {
	ctx = s.logg.WithEventID(ctx, event.ID)
	unit, emitted, err := s.aggregator.Aggregate(ctx, event)
	if err != nil {
		return err
	}
	if !emitted {
		if unit.Pending {
			return s.resumeCart(ctx, unit.Receipt)
		}
		return nil
	}
	return s.Generate(ctx, unit.ID)
}

// resumeCart re-enqueues a cart whose completing delivery failed before a
// retry was scheduled. The cart itself is never emitted twice.
func (s *Service) resumeCart(ctx context.Context, rec *models.Receipt) error {
	ctx = s.logg.WithUnitID(ctx, rec.ID)
	if rec.Status == enums.ReceiptStatusRetry {
		_, err := s.enqueueRetry(ctx, rec)
		return err
	}
	if err := s.retry.PublishRetry(ctx, rec.ID); err != nil {
		s.metrics.IncRetryEnqueue("failed")
		return pkgerrors.Wrap(pkgerrors.CodeUnableToQueue, err, "publish retry for pending cart")
	}
	s.metrics.IncRetryEnqueue("ok")
	s.logg.Info(ctx, "pending cart re-enqueued")
	return nil
}

// slotResult is the outcome of one slot attempt, applied later in a single update.
type slotResult struct {
	document *models.Document
	failure  *Failure
}

// Generate runs one generation attempt for the unit id.
func (s *Service) Generate(ctx context.Context, id string) error {
	ctx = s.logg.WithUnitID(ctx, id)
	start := time.Now()

	rec, err := s.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if !rec.Status.IsGeneratable() {
		s.logg.Info(s.logg.WithField(ctx, "status", rec.Status), "unit not generatable, skipping")
		return nil
	}

	results := make(map[string]slotResult, len(rec.Slots))
	for _, slot := range rec.Slots {
		if !slot.State.NeedsGeneration() {
			continue
		}
		results[slot.Key] = s.attempt(ctx, rec, slot)
	}

	updated, err := s.store.Update(ctx, id, func(next *models.Receipt) error {
		return s.applyResults(next, results)
	})
	if err != nil {
		return err
	}
	s.observeSlots(updated, results)

	if updated.Status == enums.ReceiptStatusRetry && len(results) > 0 {
		updated, err = s.enqueueRetry(ctx, updated)
		if err != nil {
			s.metrics.ObserveUnit(string(enums.ReceiptStatusRetry), time.Since(start))
			return err
		}
	}

	if updated.Status != rec.Status && (updated.Status == enums.ReceiptStatusToReview || updated.Status == enums.ReceiptStatusUnableToSend) {
		s.metrics.IncDeadLetter()
	}
	s.metrics.ObserveUnit(string(updated.Status), time.Since(start))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"status":      updated.Status,
		"version":     updated.Version,
		"duration_ms": time.Since(start).Milliseconds(),
	}), "generation attempt complete")
	return nil
}

func (s *Service) attempt(ctx context.Context, rec *models.Receipt, slot models.Outcome) slotResult {
	slotCtx := s.logg.WithFields(ctx, map[string]any{"slot": slot.Key, "role": slot.Role})

	tmpl, err := templates.Build(rec.EventData, slot)
	if err != nil {
		return s.failed(slotCtx, StageTemplate, err)
	}

	stream, err := s.renderer.Generate(ctx, pdfengine.Request{
		TemplateID:     s.templateID,
		Data:           tmpl,
		ApplySignature: s.applySignature,
	})
	if err != nil {
		return s.failed(slotCtx, StageEngine, err)
	}
	defer func() { _ = stream.Close() }()

	uploaded, err := s.blobs.Upload(ctx, s.blobName(rec.ID, slot.Key), pdfContentType, stream)
	if err != nil {
		return s.failed(slotCtx, StageBlob, err)
	}

	s.logg.Debug(s.logg.WithField(slotCtx, "document", uploaded.DocumentName), "slot document stored")
	return slotResult{document: &models.Document{Name: uploaded.DocumentName, URL: uploaded.DocumentURL}}
}

func (s *Service) failed(ctx context.Context, stage Stage, err error) slotResult {
	failure := Classify(stage, err)
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"stage":     stage,
		"code":      failure.Code,
		"retryable": failure.Retryable,
		"error":     failure.Message,
	}), "slot attempt failed")
	return slotResult{failure: &failure}
}

// blobName is stable per unit and slot so a repeated upload overwrites.
func (s *Service) blobName(unitID, slotKey string) string {
	return fmt.Sprintf("%s-%s-%s.pdf", s.blobPrefix, unitID, slotKey)
}

// applyResults folds the attempt results into a fresh copy of the record.
// Slots that succeeded meanwhile are left untouched.
func (s *Service) applyResults(rec *models.Receipt, results map[string]slotResult) error {
	changed := false
	for i := range rec.Slots {
		slot := &rec.Slots[i]
		result, ok := results[slot.Key]
		if !ok || !slot.State.NeedsGeneration() {
			continue
		}
		changed = true

		if result.failure == nil {
			slot.State = enums.SlotStateGenerated
			if s.applySignature {
				slot.State = enums.SlotStateSigned
			}
			slot.Document = result.document
			slot.Reason = nil
			continue
		}

		slot.Reason = &models.Reason{Code: result.failure.Code, Message: result.failure.Message}
		if !result.failure.Retryable {
			slot.State = enums.SlotStateFailed
			continue
		}
		slot.NumRetry++
		slot.State = enums.SlotStateRetry
		if slot.NumRetry >= s.maxRetry {
			slot.State = enums.SlotStateFailed
		}
	}
	if !changed {
		return status.ErrNoChange
	}
	return nil
}

// enqueueRetry publishes the unit on the retry topic. Consecutive failed
// publishes are counted on the record and, once the attempts are exhausted,
// the unit moves to UNABLE_TO_SEND. A successful publish resets the count.
func (s *Service) enqueueRetry(ctx context.Context, rec *models.Receipt) (*models.Receipt, error) {
	publishErr := s.retry.PublishRetry(ctx, rec.ID)
	if publishErr == nil {
		s.metrics.IncRetryEnqueue("ok")
		s.logg.Info(ctx, "unit re-enqueued for retry")
		return s.resetQueueAttempts(ctx, rec), nil
	}

	failure := Classify(StageQueue, publishErr)
	s.metrics.IncRetryEnqueue("failed")
	s.logg.Error(s.logg.WithField(ctx, "code", failure.Code), "retry enqueue failed", publishErr)

	updated, err := s.store.Update(ctx, rec.ID, func(next *models.Receipt) error {
		if next.Status != enums.ReceiptStatusRetry {
			return status.ErrNoChange
		}
		next.QueueAttempts++
		if next.QueueAttempts >= s.queueMaxAttempts {
			next.Status = enums.ReceiptStatusUnableToSend
		}
		return nil
	})
	if err != nil {
		return nil, multierr.Combine(pkgerrors.Wrap(pkgerrors.CodeUnableToQueue, publishErr, "publish retry"), err)
	}
	if updated.Status == enums.ReceiptStatusUnableToSend {
		s.logg.Warn(s.logg.WithField(ctx, "queue_attempts", updated.QueueAttempts), "retry enqueue attempts exhausted")
		return updated, nil
	}
	if updated.Status != enums.ReceiptStatusRetry {
		return updated, nil
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeUnableToQueue, publishErr,
		fmt.Sprintf("publish retry (attempt %d of %d)", updated.QueueAttempts, s.queueMaxAttempts))
}

// resetQueueAttempts clears the failed-publish count. The retry is already on
// the topic, so a failed reset is only logged.
func (s *Service) resetQueueAttempts(ctx context.Context, rec *models.Receipt) *models.Receipt {
	if rec.QueueAttempts == 0 {
		return rec
	}
	updated, err := s.store.Update(ctx, rec.ID, func(next *models.Receipt) error {
		if next.QueueAttempts == 0 {
			return status.ErrNoChange
		}
		next.QueueAttempts = 0
		return nil
	})
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to reset queue attempts")
		return rec
	}
	return updated
}

func (s *Service) observeSlots(rec *models.Receipt, results map[string]slotResult) {
	for _, slot := range rec.Slots {
		if _, ok := results[slot.Key]; !ok {
			continue
		}
		s.metrics.ObserveSlot(string(slot.Role), string(slot.State))
	}
}

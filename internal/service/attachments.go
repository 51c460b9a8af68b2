package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"deskbridge/internal/errors"
	"deskbridge/internal/models"
	"deskbridge/pkg/blobrelay"

	"github.com/sirupsen/logrus"
)

// AttachmentSink is the destination-platform delivery leg for one attachment.
// A nil sink skips delivery and the outcome settles on the relay leg alone.
type AttachmentSink func(ctx context.Context, att *models.AttachmentRef) (*models.DeliveryResult, error)

// AttachmentPipeline fans attachments out under bounded parallelism. The two
// legs of each attachment (relay upload and platform delivery) run
// concurrently and fetch the source independently. Failures stay local to
// their attachment; siblings always run to completion.
type AttachmentPipeline struct {
	relay         blobrelay.Client
	maxConcurrent int
	maxSizeBytes  map[models.MediaCategory]int64
	uploadTimeout time.Duration
	logger        *logrus.Logger
}

func NewAttachmentPipeline(relay blobrelay.Client, maxConcurrent int, limits models.MediaSizeLimits, uploadTimeout time.Duration, logger *logrus.Logger) *AttachmentPipeline {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &AttachmentPipeline{
		relay:         relay,
		maxConcurrent: maxConcurrent,
		maxSizeBytes: map[models.MediaCategory]int64{
			models.MediaImage: int64(limits.Image) * 1024 * 1024,
			models.MediaVideo: int64(limits.Video) * 1024 * 1024,
			models.MediaFile:  int64(limits.File) * 1024 * 1024,
		},
		uploadTimeout: uploadTimeout,
		logger:        logger,
	}
}

// ProcessAttachments settles every attachment and returns outcomes in input
// order. The call blocks until all attachments have settled; context
// cancellation fails the remaining ones as transient so redelivery retries
// them.
func (p *AttachmentPipeline) ProcessAttachments(ctx context.Context, tenantID string, refs []*models.AttachmentRef, sink AttachmentSink) []models.AttachmentOutcome {
	outcomes := make([]models.AttachmentOutcome, len(refs))

	sem := make(chan struct{}, p.maxConcurrent)
	var wg sync.WaitGroup

	for i, ref := range refs {
		wg.Add(1)
		go func(i int, ref *models.AttachmentRef) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcomes[i] = p.processOne(ctx, tenantID, ref, sink)
		}(i, ref)
	}
	wg.Wait()

	return outcomes
}

func (p *AttachmentPipeline) processOne(ctx context.Context, tenantID string, ref *models.AttachmentRef, sink AttachmentSink) models.AttachmentOutcome {
	outcome := models.AttachmentOutcome{Ref: ref, State: models.UploadPending}

	if limit := p.maxSizeBytes[ref.Category]; limit > 0 && int64(len(ref.Inline)) > limit {
		outcome.State = models.UploadFailed
		outcome.Err = errors.New(errors.KindPermanent, "attachment exceeds size limit")
		outcome.Reason = fmt.Sprintf("%s exceeds %d byte limit for %s", ref.FileName, limit, ref.Category)
		return outcome
	}

	opCtx, cancel := context.WithTimeout(ctx, p.uploadTimeout)
	defer cancel()

	var (
		legWG    sync.WaitGroup
		relayURL string
		relayErr error
		sinkErr  error
	)

	legWG.Add(1)
	go func() {
		defer legWG.Done()
		relayURL, relayErr = p.relay.RelayURL(opCtx, ref)
	}()

	if sink != nil {
		legWG.Add(1)
		go func() {
			defer legWG.Done()
			_, sinkErr = sink(opCtx, ref)
		}()
	}
	legWG.Wait()

	outcome.RelayURL = relayURL

	// Delivery decides the outcome when a sink is present; the relay leg is
	// best effort for chat-side rendering.
	settled := sinkErr
	if sink == nil {
		settled = relayErr
	}
	if settled != nil {
		outcome.State = models.UploadFailed
		outcome.Err = settled
		outcome.Reason = settled.Error()
		p.logger.WithFields(logrus.Fields{
			"tenant_id":  tenantID,
			"content_id": ref.ContentID,
			"file_name":  ref.FileName,
			"kind":       errors.GetKind(settled),
		}).Warn("Attachment processing failed")
		return outcome
	}

	if relayErr != nil {
		// Delivery succeeded, relay did not. Keep the success but note it.
		p.logger.WithFields(logrus.Fields{
			"tenant_id":  tenantID,
			"content_id": ref.ContentID,
		}).WithError(relayErr).Debug("Relay leg failed after successful delivery")
	}

	outcome.State = models.UploadSucceeded
	return outcome
}

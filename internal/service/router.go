package service

import (
	"context"
	"fmt"
	"time"

	"deskbridge/internal/cache"
	"deskbridge/internal/errors"
	"deskbridge/internal/events"
	"deskbridge/internal/metrics"
	"deskbridge/internal/models"
	"deskbridge/internal/retry"
	"deskbridge/internal/tracing"
	"deskbridge/pkg/chat"
	"deskbridge/pkg/helpdesk"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// MappingStore is the durable conversation mapping and tenant state the
// router depends on. The sqlite database implements it.
type MappingStore interface {
	UpsertMapping(ctx context.Context, m *models.ConversationMapping) error
	GetMappingByChatID(ctx context.Context, tenantID, chatConvID string) (*models.ConversationMapping, error)
	GetMappingByHelpdeskID(ctx context.Context, tenantID, helpdeskConvID string) (*models.ConversationMapping, error)
	MarkResolved(ctx context.Context, tenantID, helpdeskConvID string, resolved bool) error
	MarkGreetingSent(ctx context.Context, tenantID, chatConvID string) error
	SetTenantActive(ctx context.Context, tenantID string, active bool) error
}

// AdapterProvider hands out tenant-bound helpdesk adapters.
type AdapterProvider interface {
	GetAdapter(ctx context.Context, tenantID string) (helpdesk.Client, error)
	Invalidate(tenantID string)
}

type processedKey struct {
	tenantID string
	eventID  string
}

// Router relays canonical messages between the chat platform and the
// helpdesk platforms. One Route call handles exactly one inbound event and
// runs to completion; there is no cross-event ordering guarantee.
type Router struct {
	store     MappingStore
	tenants   TenantResolver
	factory   AdapterProvider
	agents    *AgentDirectory
	pipeline  *AttachmentPipeline
	chat      chat.Client
	publisher events.Publisher
	retrier   *retry.Retrier
	processed *cache.Cache[processedKey, *models.RouteResult]
	metrics   *metrics.Registry
	logger    *logrus.Logger
}

type RouterOptions struct {
	Store        MappingStore
	Tenants      TenantResolver
	Factory      AdapterProvider
	Agents       *AgentDirectory
	Pipeline     *AttachmentPipeline
	Chat         chat.Client
	Publisher    events.Publisher
	RetryPolicy  retry.Policy
	ProcessedTTL time.Duration
	ProcessedMax int
	Metrics      *metrics.Registry
	Logger       *logrus.Logger
}

func NewRouter(opts RouterOptions) *Router {
	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	reg := opts.Metrics
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Router{
		store:     opts.Store,
		tenants:   opts.Tenants,
		factory:   opts.Factory,
		agents:    opts.Agents,
		pipeline:  opts.Pipeline,
		chat:      opts.Chat,
		publisher: publisher,
		retrier:   retry.New(opts.RetryPolicy),
		processed: cache.New[processedKey, *models.RouteResult](opts.ProcessedTTL, opts.ProcessedMax),
		metrics:   reg,
		logger:    opts.Logger,
	}
}

// RouteFromChat relays an end-user message into the tenant's helpdesk.
func (r *Router) RouteFromChat(ctx context.Context, msg *models.CanonicalMessage, ref chat.ConversationReference) (*models.RouteResult, error) {
	if msg == nil {
		return nil, errors.New(errors.KindInternal, "nil message")
	}
	ctx, span := tracing.StartSpan(ctx, "route.chat_inbound",
		attribute.String("tenant_id", msg.TenantID),
		attribute.String("event_id", msg.EventID),
	)
	defer span.End()

	start := time.Now()
	result, err := r.routeFromChat(ctx, msg, ref)
	r.settle(ctx, result, err, msg.TenantID, models.OriginChat, start)
	return result, err
}

func (r *Router) routeFromChat(ctx context.Context, msg *models.CanonicalMessage, ref chat.ConversationReference) (*models.RouteResult, error) {
	if err := validateMessage(msg); err != nil {
		return nil, err
	}

	key := processedKey{tenantID: msg.TenantID, eventID: msg.EventID}
	if prior, ok := r.processed.Get(key); ok {
		return replayOf(prior), nil
	}

	adapter, err := r.factory.GetAdapter(ctx, msg.TenantID)
	if err != nil {
		return nil, err
	}

	blocks := ExpandRichText(msg.Blocks)
	result := newRouteResult(msg)

	conv, seededText, created, err := r.resolveHelpdeskConversation(ctx, adapter, msg, ref)
	if err != nil {
		r.applyPermanentSignal(ctx, result, msg.TenantID, err)
		return r.failAllBlocks(result, blocks, err), err
	}

	text := textOf(blocks)
	textDelivered := seededText
	var textErr error
	if !seededText && text != "" {
		textErr = r.retrier.DoIf(ctx, func() error {
			_, sendErr := adapter.SendText(ctx, conv, text)
			return sendErr
		}, errors.IsRetryable)
		if !created && errors.IsKind(textErr, errors.KindPermanent) {
			// The helpdesk closed this conversation out-of-band; its mapping
			// is stale, not the tenant. Reroute through a fresh conversation.
			conv, textErr = r.recoverStaleConversation(ctx, adapter, msg, ref, conv.ConversationID)
		}
		textDelivered = textErr == nil
	}

	// An auth rejection means every further call would fail the same way;
	// stop touching the platform for this event.
	authAborted := errors.IsKind(textErr, errors.KindAuth)

	refs := attachmentRefs(blocks)
	var outcomes []models.AttachmentOutcome
	if authAborted {
		outcomes = failOutcomes(refs, textErr)
	} else {
		outcomes = r.pipeline.ProcessAttachments(ctx, msg.TenantID, refs, func(ctx context.Context, att *models.AttachmentRef) (*models.DeliveryResult, error) {
			var res *models.DeliveryResult
			sendErr := r.retrier.DoIf(ctx, func() error {
				var innerErr error
				res, innerErr = adapter.SendAttachment(ctx, conv, att)
				return innerErr
			}, errors.IsRetryable)
			return res, sendErr
		})
	}

	assembleBlocks(result, blocks, textDelivered, textErr, outcomes)
	result.TextDelivered = textDelivered

	r.applyPermanentSignal(ctx, result, msg.TenantID, textErr)
	r.acknowledge(ctx, adapter, msg, result)

	if result.Acknowledged {
		r.processed.Set(key, result)
	}
	if textErr != nil && !textDelivered {
		return result, textErr
	}
	return result, nil
}

// RouteFromHelpdesk relays an agent-side event back to the chat user.
func (r *Router) RouteFromHelpdesk(ctx context.Context, tenantID string, event *helpdesk.Event) (*models.RouteResult, error) {
	ctx, span := tracing.StartSpan(ctx, "route.helpdesk_inbound",
		attribute.String("tenant_id", tenantID),
		attribute.String("event_kind", string(event.Kind)),
	)
	defer span.End()

	start := time.Now()
	var (
		result *models.RouteResult
		err    error
	)
	switch event.Kind {
	case helpdesk.EventResolution:
		result, err = r.handleResolution(ctx, tenantID, event.ConversationID)
	case helpdesk.EventMessage:
		result, err = r.routeFromHelpdesk(ctx, tenantID, event.Message)
	default:
		err = errors.New(errors.KindInternal, "unknown event kind: "+string(event.Kind))
	}
	r.settle(ctx, result, err, tenantID, models.OriginHelpdesk, start)
	return result, err
}

func (r *Router) routeFromHelpdesk(ctx context.Context, tenantID string, msg *models.CanonicalMessage) (*models.RouteResult, error) {
	if err := validateMessage(msg); err != nil {
		return nil, err
	}

	key := processedKey{tenantID: tenantID, eventID: msg.EventID}
	if prior, ok := r.processed.Get(key); ok {
		return replayOf(prior), nil
	}

	mapping, err := r.store.GetMappingByHelpdeskID(ctx, tenantID, msg.ConversationID)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "mapping lookup failed")
	}
	if mapping == nil {
		// No chat counterpart; the conversation was opened outside the
		// bridge. Nothing to deliver.
		r.logger.WithFields(logrus.Fields{
			"tenant_id":        tenantID,
			"helpdesk_conv_id": msg.ConversationID,
		}).Debug("Dropping helpdesk event for unmapped conversation")
		return nil, nil
	}

	ref, err := chat.DecodeReference(mapping.ConversationRef)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "stored conversation reference is corrupt")
	}

	blocks := ExpandRichText(msg.Blocks)
	result := newRouteResult(msg)
	result.TenantID = tenantID

	text := textOf(blocks)
	if prefix := r.agentPrefix(ctx, tenantID, msg.AgentID); prefix != "" && text != "" {
		text = prefix + ": " + text
	}

	// Relay every attachment to a stable URL; no sink because the chat send
	// happens once, combined, below.
	refs := attachmentRefs(blocks)
	outcomes := r.pipeline.ProcessAttachments(ctx, tenantID, refs, nil)

	outbound := &chat.OutboundMessage{Text: text}
	for _, o := range outcomes {
		if o.State == models.UploadSucceeded && o.RelayURL != "" {
			outbound.Attachments = append(outbound.Attachments, chat.OutboundAttachment{
				URL:      o.RelayURL,
				Name:     o.Ref.FileName,
				MimeType: o.Ref.MimeType,
			})
		}
	}

	var sendErr error
	if outbound.Text != "" || len(outbound.Attachments) > 0 {
		sendErr = r.retrier.DoIf(ctx, func() error {
			_, innerErr := r.chat.SendMessage(ctx, ref, outbound)
			return innerErr
		}, errors.IsRetryable)
	}
	textDelivered := sendErr == nil && text != ""

	// The combined send settles every relayed attachment: an attachment is
	// delivered only when its relay succeeded and the send went out.
	if sendErr != nil {
		for i := range outcomes {
			if outcomes[i].State == models.UploadSucceeded {
				outcomes[i].State = models.UploadFailed
				outcomes[i].Err = sendErr
				outcomes[i].Reason = sendErr.Error()
			}
		}
	}

	assembleBlocks(result, blocks, textDelivered, sendErr, outcomes)
	result.TextDelivered = textDelivered

	r.applyPermanentSignal(ctx, result, tenantID, sendErr)

	if result.Delivered() {
		result.Acknowledged = true
		if adapter, adapterErr := r.factory.GetAdapter(ctx, tenantID); adapterErr == nil {
			if ackErr := adapter.AcknowledgeInbound(ctx, msg.EventID); ackErr != nil {
				r.logger.WithError(ackErr).Warn("Failed to acknowledge inbound event")
			}
		}
		r.processed.Set(key, result)
	}

	if sendErr != nil {
		return result, sendErr
	}
	return result, nil
}

func (r *Router) handleResolution(ctx context.Context, tenantID, helpdeskConvID string) (*models.RouteResult, error) {
	mapping, err := r.store.GetMappingByHelpdeskID(ctx, tenantID, helpdeskConvID)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "mapping lookup failed")
	}
	if mapping == nil {
		return nil, nil
	}
	if mapping.Resolved {
		// Redelivered resolution event; already handled.
		return nil, nil
	}

	if err := r.store.MarkResolved(ctx, tenantID, helpdeskConvID, true); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to mark mapping resolved")
	}

	result := &models.RouteResult{
		RouteID:      uuid.NewString(),
		EventID:      fmt.Sprintf("resolution-%s", helpdeskConvID),
		TenantID:     tenantID,
		Acknowledged: true,
	}

	ref, err := chat.DecodeReference(mapping.ConversationRef)
	if err != nil || ref.ConversationID == "" {
		return result, nil
	}

	notice := &chat.OutboundMessage{Text: "This conversation has been closed by the support team. Send a new message to start another one."}
	if _, sendErr := r.chat.SendMessage(ctx, ref, notice); sendErr != nil {
		// The mapping is already resolved; the notice is best effort.
		r.logger.WithFields(logrus.Fields{
			"tenant_id":        tenantID,
			"helpdesk_conv_id": helpdeskConvID,
		}).WithError(sendErr).Warn("Failed to deliver resolution notice")
	} else {
		result.TextDelivered = true
	}

	r.logger.WithFields(logrus.Fields{
		"tenant_id":        tenantID,
		"helpdesk_conv_id": helpdeskConvID,
	}).Info("Conversation resolved")

	return result, nil
}

// resolveHelpdeskConversation finds or creates the helpdesk conversation for
// a chat message. A resolved mapping means the previous ticket is closed; a
// new message starts a fresh one. created reports whether this call opened a
// new conversation.
func (r *Router) resolveHelpdeskConversation(ctx context.Context, adapter helpdesk.Client, msg *models.CanonicalMessage, ref chat.ConversationReference) (conv helpdesk.ConversationRef, seededText, created bool, err error) {
	mapping, err := r.store.GetMappingByChatID(ctx, msg.TenantID, msg.ConversationID)
	if err != nil {
		return helpdesk.ConversationRef{}, false, false, errors.Wrap(err, errors.KindInternal, "mapping lookup failed")
	}

	encodedRef, err := ref.Encode()
	if err != nil {
		return helpdesk.ConversationRef{}, false, false, errors.Wrap(err, errors.KindInternal, "failed to encode conversation reference")
	}

	if mapping != nil && !mapping.Resolved {
		if mapping.ConversationRef != encodedRef && encodedRef != "" {
			mapping.ConversationRef = encodedRef
			if upErr := r.store.UpsertMapping(ctx, mapping); upErr != nil {
				r.logger.WithError(upErr).Warn("Failed to refresh conversation reference")
			}
		}
		return helpdesk.ConversationRef{ConversationID: mapping.HelpdeskConvID, UserID: mapping.HelpdeskUserID}, false, false, nil
	}

	user := models.EndUser{ID: ref.UserID, Name: ref.UserName}
	if msg.User != nil {
		user = *msg.User
	}

	var opened *helpdesk.ConversationRef
	createErr := r.retrier.DoIf(ctx, func() error {
		var innerErr error
		opened, innerErr = adapter.CreateConversation(ctx, user, msg.Text())
		return innerErr
	}, errors.IsRetryable)
	if createErr != nil {
		return helpdesk.ConversationRef{}, false, false, createErr
	}

	newMapping := &models.ConversationMapping{
		TenantID:        msg.TenantID,
		ChatConvID:      msg.ConversationID,
		HelpdeskConvID:  opened.ConversationID,
		HelpdeskUserID:  opened.UserID,
		ConversationRef: encodedRef,
	}
	if err := r.store.UpsertMapping(ctx, newMapping); err != nil {
		return helpdesk.ConversationRef{}, false, false, errors.Wrap(err, errors.KindInternal, "failed to persist conversation mapping")
	}

	r.sendGreeting(ctx, newMapping, ref)

	// The opening message was seeded into the new conversation; the text leg
	// is already delivered.
	return *opened, msg.Text() != "", true, nil
}

// recoverStaleConversation handles a helpdesk conversation that stopped
// accepting messages because an agent closed it outside the bridge. The
// stale mapping is marked resolved and the message reroutes through a new
// conversation, the same path a post-resolution message takes.
func (r *Router) recoverStaleConversation(ctx context.Context, adapter helpdesk.Client, msg *models.CanonicalMessage, ref chat.ConversationReference, staleConvID string) (helpdesk.ConversationRef, error) {
	r.logger.WithFields(logrus.Fields{
		"tenant_id":        msg.TenantID,
		"helpdesk_conv_id": staleConvID,
	}).Info("Helpdesk conversation no longer accepts messages, starting a new one")

	if err := r.store.MarkResolved(ctx, msg.TenantID, staleConvID, true); err != nil {
		return helpdesk.ConversationRef{}, errors.Wrap(err, errors.KindInternal, "failed to resolve stale mapping")
	}
	conv, _, _, err := r.resolveHelpdeskConversation(ctx, adapter, msg, ref)
	return conv, err
}

// sendGreeting delivers the tenant's first-contact greeting at most once per
// mapping. Failures are logged and never fail the route.
func (r *Router) sendGreeting(ctx context.Context, mapping *models.ConversationMapping, ref chat.ConversationReference) {
	if mapping.GreetingSent {
		return
	}
	tenant, err := r.tenants.ResolveTenant(ctx, mapping.TenantID)
	if err != nil || tenant == nil || tenant.GreetingText == "" {
		return
	}
	if ref.ConversationID == "" {
		return
	}

	if _, err := r.chat.SendMessage(ctx, ref, &chat.OutboundMessage{Text: tenant.GreetingText}); err != nil {
		r.logger.WithFields(logrus.Fields{
			"tenant_id": mapping.TenantID,
		}).WithError(err).Warn("Failed to send greeting")
		return
	}
	if err := r.store.MarkGreetingSent(ctx, mapping.TenantID, mapping.ChatConvID); err != nil {
		r.logger.WithError(err).Warn("Failed to record greeting flag")
	}
}

func (r *Router) agentPrefix(ctx context.Context, tenantID, agentID string) string {
	if agentID == "" {
		return ""
	}
	adapter, err := r.factory.GetAdapter(ctx, tenantID)
	if err != nil {
		return ""
	}
	info, err := r.agents.Lookup(ctx, tenantID, agentID, adapter)
	if err != nil || info == nil {
		return ""
	}
	return info.Name
}

// applyPermanentSignal deactivates the tenant after a permanent send failure
// so further events stop immediately. Only failures that outlive conversation
// recovery reach here; attachment-scoped failures never deactivate a tenant.
func (r *Router) applyPermanentSignal(ctx context.Context, result *models.RouteResult, tenantID string, sendErr error) {
	if !errors.IsKind(sendErr, errors.KindPermanent) {
		return
	}

	result.DeactivateTenant = true
	if err := r.store.SetTenantActive(ctx, tenantID, false); err != nil {
		r.logger.WithError(err).Error("Failed to deactivate tenant after permanent delivery failure")
		return
	}
	r.factory.Invalidate(tenantID)
	r.logger.WithField("tenant_id", tenantID).Warn("Tenant deactivated after permanent delivery failure")
}

func (r *Router) acknowledge(ctx context.Context, adapter helpdesk.Client, msg *models.CanonicalMessage, result *models.RouteResult) {
	if !result.Delivered() {
		return
	}
	result.Acknowledged = true
	if err := adapter.AcknowledgeInbound(ctx, msg.EventID); err != nil {
		r.logger.WithError(err).Warn("Failed to acknowledge inbound event")
	}
}

func (r *Router) settle(ctx context.Context, result *models.RouteResult, err error, tenantID string, origin models.Origin, start time.Time) {
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	r.metrics.RecordRouteOutcome(tenantID, string(origin), err)
	r.metrics.RecordTimer("route_duration", time.Since(start), map[string]string{"origin": string(origin)})

	if result != nil {
		if pubErr := r.publisher.PublishReceipt(ctx, events.NewReceipt(result, origin)); pubErr != nil {
			r.logger.WithError(pubErr).Debug("Failed to publish delivery receipt")
		}
	}
}

func validateMessage(msg *models.CanonicalMessage) error {
	if msg == nil {
		return errors.New(errors.KindInternal, "nil message")
	}
	if msg.TenantID == "" {
		return errors.New(errors.KindConfig, "message has no tenant id")
	}
	if msg.ConversationID == "" {
		return errors.New(errors.KindInternal, "message has no conversation id")
	}
	if len(msg.Blocks) == 0 {
		return errors.New(errors.KindInternal, "message has no content blocks")
	}
	return nil
}

func newRouteResult(msg *models.CanonicalMessage) *models.RouteResult {
	return &models.RouteResult{
		RouteID:  uuid.NewString(),
		EventID:  msg.EventID,
		TenantID: msg.TenantID,
	}
}

func replayOf(prior *models.RouteResult) *models.RouteResult {
	dup := *prior
	dup.Replayed = true
	return &dup
}

func textOf(blocks []models.ContentBlock) string {
	var out string
	for _, b := range blocks {
		if b.Kind == models.BlockText && b.Text != "" {
			if out != "" {
				out += "\n"
			}
			out += b.Text
		}
	}
	return out
}

func attachmentRefs(blocks []models.ContentBlock) []*models.AttachmentRef {
	var refs []*models.AttachmentRef
	for _, b := range blocks {
		if b.Attachment != nil {
			refs = append(refs, b.Attachment)
		}
	}
	return refs
}

// failAllBlocks settles every block of the message as undelivered with the
// given cause. Used when conversation resolution fails before any send.
func (r *Router) failAllBlocks(result *models.RouteResult, blocks []models.ContentBlock, cause error) *models.RouteResult {
	for _, b := range blocks {
		result.Blocks = append(result.Blocks, models.BlockResult{
			Kind:   b.Kind,
			Reason: cause.Error(),
		})
	}
	return result
}

func failOutcomes(refs []*models.AttachmentRef, cause error) []models.AttachmentOutcome {
	outcomes := make([]models.AttachmentOutcome, len(refs))
	for i, ref := range refs {
		outcomes[i] = models.AttachmentOutcome{
			Ref:    ref,
			State:  models.UploadFailed,
			Err:    cause,
			Reason: "aborted after authentication failure",
		}
	}
	return outcomes
}

// assembleBlocks fills result.Blocks in the input block order, combining the
// text leg's outcome with per-attachment outcomes.
func assembleBlocks(result *models.RouteResult, blocks []models.ContentBlock, textDelivered bool, textErr error, outcomes []models.AttachmentOutcome) {
	byContent := make(map[string]*models.AttachmentOutcome, len(outcomes))
	for i := range outcomes {
		if outcomes[i].Ref != nil {
			byContent[outcomes[i].Ref.ContentID] = &outcomes[i]
		}
	}

	for _, b := range blocks {
		br := models.BlockResult{Kind: b.Kind}
		switch {
		case b.Attachment != nil:
			if o, ok := byContent[b.Attachment.ContentID]; ok {
				br.Delivered = o.State == models.UploadSucceeded
				br.Reason = o.Reason
			}
		default:
			br.Delivered = textDelivered
			if textErr != nil {
				br.Reason = textErr.Error()
			}
		}
		result.Blocks = append(result.Blocks, br)
	}
}

package telephony

import (
	"context"
	"errors"
	"strings"
	"time"

	"callbridge/internal/agents"
	"callbridge/internal/calllog"
	"callbridge/internal/config"
	"callbridge/internal/entity"
	"callbridge/internal/eventlog"
	"callbridge/internal/realtime"
	"callbridge/pkg/logger"
	"callbridge/pkg/utils"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/redis/go-redis/v9"
)

// InboundEvent names the three inbound webhook endpoints. The endpoint the
// provider posts to is itself the primary status signal for inbound calls.
type InboundEvent string

const (
	EventReceived  InboundEvent = "received"
	EventAnswered  InboundEvent = "answered"
	EventCompleted InboundEvent = "completed"
)

// rawStatus maps the endpoint kind onto the reconciler's raw-status input.
func (e InboundEvent) rawStatus() string {
	switch e {
	case EventReceived:
		return "ringing"
	case EventAnswered:
		return "answered"
	case EventCompleted:
		return "completed"
	default:
		return ""
	}
}

// Service is the reconciliation pipeline behind the webhook gateway and the
// click-to-call control endpoints.
type Service struct {
	cfg       config.TelephonyConfig
	store     calllog.Store
	entities  *entity.Resolver
	agents    agents.Directory
	publisher realtime.Publisher
	provider  Provider
	journal   *eventlog.Service
	rdb       *redis.Client

	clock func() time.Time
}

// Deps wires the service's collaborators. Entities, agents, journal and rdb
// are optional; the pipeline degrades gracefully without them.
type Deps struct {
	Config    config.TelephonyConfig
	Store     calllog.Store
	Entities  *entity.Resolver
	Agents    agents.Directory
	Publisher realtime.Publisher
	Provider  Provider
	Journal   *eventlog.Service
	Redis     *redis.Client
}

func NewService(d Deps) *Service {
	pub := d.Publisher
	if pub == nil {
		pub = realtime.NopPublisher{}
	}
	return &Service{
		cfg:       d.Config,
		store:     d.Store,
		entities:  d.Entities,
		agents:    d.Agents,
		publisher: pub,
		provider:  d.Provider,
		journal:   d.Journal,
		rdb:       d.Redis,
		clock:     time.Now,
	}
}

// SetClock overrides the clock for deterministic tests.
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

// WebhookResult is the structured outcome of one webhook delivery.
type WebhookResult struct {
	CallKey string
	CallID  string
	Record  calllog.CallRecord

	// Skipped means the delivery was acknowledged but applied no state
	// change (missing idempotency key, disabled integration).
	Skipped bool
	Reason  string
}

// resolveReference looks up the business entity for a customer number.
// Misses and resolver errors both yield an empty resolution: resolution is
// an enrichment, never a reason to drop a call event.
func (s *Service) resolveReference(ctx context.Context, number string) entity.Resolution {
	if s.entities == nil || number == "" {
		return entity.Resolution{}
	}
	res, err := s.entities.Resolve(ctx, number)
	if err != nil {
		logger.From(ctx).Warn("entity resolution failed", "number", number, "err", err)
		return entity.Resolution{}
	}
	return res
}

// mapReceiver maps an answering agent number to a CRM user, if a mapping
// exists.
func (s *Service) mapReceiver(ctx context.Context, agentNumber string) string {
	if s.agents == nil || agentNumber == "" {
		return ""
	}
	user, err := s.agents.UserForNumber(ctx, agentNumber)
	if err != nil {
		if !errors.Is(err, agents.ErrNotFound) {
			logger.From(ctx).Warn("agent mapping lookup failed", "agent_number", agentNumber, "err", err)
		}
		return ""
	}
	return user
}

// publish notifies subscribers after the record write has committed.
// Failure is logged and swallowed; it never rolls back the write.
func (s *Service) publish(ctx context.Context, rec calllog.CallRecord, callID, rawStatus string) {
	snap := realtime.Snapshot{
		RefID:        rec.CallKey,
		CallID:       callID,
		Status:       rec.Status,
		Duration:     rec.DurationSeconds,
		RecordingURL: rec.RecordingURL,
		RawStatus:    rawStatus,
	}
	if err := s.publisher.Publish(ctx, snap); err != nil {
		logger.From(ctx).Warn("realtime publish failed", "call_key", rec.CallKey, "err", err)
	}
}

// ProcessInbound reconciles one inbound webhook delivery.
func (s *Service) ProcessInbound(ctx context.Context, event InboundEvent, p calllog.Payload) (WebhookResult, error) {
	now := s.clock().UTC()
	callKey := calllog.ResolveCallKey(p)

	customer := p.CustomerNumber()
	did := p.DIDNumber()
	agentNo := p.AnsweredAgentNumber()
	receiver := s.mapReceiver(ctx, agentNo)

	sig := calllog.SignalsFrom(p)
	// The endpoint kind is authoritative for inbound calls; the payload's
	// own status string is often absent there.
	sig.RawStatus = event.rawStatus()
	status := calllog.MapStatus(sig)

	rec, err := s.store.Get(ctx, callKey)
	created := false
	if errors.Is(err, calllog.ErrNotFound) {
		ref := s.resolveReference(ctx, customer)
		start := now
		if t := p.StartTime(); t != nil {
			start = *t
		}
		rec, created, err = s.store.FindOrCreate(ctx, callKey, calllog.CreateParams{
			Direction:     calllog.DirectionInbound,
			FromNumber:    customer,
			ToNumber:      did,
			Status:        status,
			StartTime:     start,
			Receiver:      receiver,
			ReferenceType: ref.Type,
			ReferenceID:   ref.ID,
		})
	}
	if err != nil {
		return WebhookResult{CallKey: callKey}, err
	}

	upd := calllog.Update{
		FromNumber: customer,
		ToNumber:   did,
		Receiver:   receiver,
		StartTime:  p.StartTime(),
	}
	if !created {
		upd.Status = &status
		// Backfill the entity reference exactly once, when a resolvable
		// number appears on a record that still lacks one.
		if rec.ReferenceType == calllog.EntityNone {
			ref := s.resolveReference(ctx, customer)
			upd.ReferenceType = ref.Type
			upd.ReferenceID = ref.ID
		}
	}
	s.deriveTerminalFields(&upd, status, p, now)

	rec, err = s.store.Apply(ctx, callKey, upd)
	if err != nil {
		return WebhookResult{CallKey: callKey}, err
	}

	s.publish(ctx, rec, p.CallID(), string(event))
	return WebhookResult{CallKey: callKey, CallID: p.CallID(), Record: rec}, nil
}

// deriveTerminalFields fills the status-dependent fields: end time on any
// terminal status, duration only on completed/no-answer, recording only on
// completed.
func (s *Service) deriveTerminalFields(upd *calllog.Update, status calllog.CallStatus, p calllog.Payload, now time.Time) {
	if !status.IsTerminal() {
		return
	}
	end := p.EndTime()
	if end == nil {
		end = &now
	}
	upd.EndTime = end

	if status == calllog.StatusCompleted || status == calllog.StatusNoAnswer {
		if d := p.DurationSeconds(); d >= 0 {
			upd.DurationSeconds = &d
		}
	}
	if status == calllog.StatusCompleted {
		upd.RecordingURL = p.RecordingURL()
	}
}

// ProcessOutbound reconciles one delivery on the combined outbound webhook.
func (s *Service) ProcessOutbound(ctx context.Context, p calllog.Payload) (WebhookResult, error) {
	now := s.clock().UTC()

	refID := p.RefID()
	if refID == "" {
		// Likely an inbound call or a provider test delivery; acknowledge
		// without processing so the provider does not retry-storm.
		return WebhookResult{Skipped: true, Reason: "ref_id missing"}, nil
	}
	refID = calllog.Truncate(refID)

	agentNo := calllog.LastTenDigits(p.AnsweredAgentNumber())
	customerNo := calllog.LastTenDigits(p.CustomerNumber())

	rec, err := s.store.Get(ctx, refID)
	if errors.Is(err, calllog.ErrNotFound) {
		ref := s.resolveReference(ctx, customerNo)
		rec, _, err = s.store.FindOrCreate(ctx, refID, calllog.CreateParams{
			Direction:     calllog.DirectionOutbound,
			FromNumber:    agentNo,
			ToNumber:      customerNo,
			StartTime:     now,
			ReferenceType: ref.Type,
			ReferenceID:   ref.ID,
		})
	}
	if err != nil {
		return WebhookResult{CallKey: refID}, err
	}

	sig := calllog.SignalsFrom(p)
	status := calllog.MapStatus(sig)

	upd := calllog.Update{
		Status:     &status,
		FromNumber: agentNo,
		ToNumber:   customerNo,
		StartTime:  p.StartTime(),
		Receiver:   s.mapReceiver(ctx, p.AnsweredAgentNumber()),
		Note:       outboundNote(p),
	}
	if rec.ReferenceType == calllog.EntityNone && customerNo != "" {
		ref := s.resolveReference(ctx, customerNo)
		upd.ReferenceType = ref.Type
		upd.ReferenceID = ref.ID
	}
	s.deriveTerminalFields(&upd, status, p, now)

	rec, err = s.store.Apply(ctx, refID, upd)
	if err != nil {
		return WebhookResult{CallKey: refID}, err
	}

	if rec.Status.IsTerminal() {
		s.releaseDialSlot(ctx, rec.FromNumber, rec.CallKey)
	}

	s.publish(ctx, rec, p.CallID(), sig.RawStatus)
	return WebhookResult{CallKey: refID, CallID: p.CallID(), Record: rec}, nil
}

// outboundNote packs provider scraps that have no dedicated column into the
// bounded note field.
func outboundNote(p calllog.Payload) string {
	var parts []string
	if callID := p.CallID(); callID != "" {
		parts = append(parts, "call_id="+callID)
	}
	if cause := p.HangupCause(); cause != "" {
		if len(cause) > 50 {
			cause = cause[:50]
		}
		parts = append(parts, "hangup="+cause)
	}
	if agent := p.AnsweredAgent(); agent != "" {
		if len(agent) > 30 {
			agent = agent[:30]
		}
		parts = append(parts, "agent="+agent)
	}
	if missed := p.MissedAgent(); missed != "" {
		if len(missed) > 30 {
			missed = missed[:30]
		}
		parts = append(parts, "missed="+missed)
	}
	return calllog.Truncate(strings.Join(parts, ", "))
}

// DialResult is returned to the agent desktop that initiated a call.
type DialResult struct {
	RefID       string `json:"ref_id"`
	CallID      string `json:"call_id,omitempty"`
	AgentNumber string `json:"agent_number"`
	CallerID    string `json:"caller_id"`
}

var (
	ErrDisabled        = errors.New("telephony: integration not enabled")
	ErrInvalidInput    = errors.New("telephony: invalid input")
	ErrTooManyDials    = errors.New("telephony: concurrent dial limit reached")
	errDialUnavailable = errors.New("telephony: provider not configured")
)

const dialSlotTTL = 2 * time.Minute

func dialCapKey(agentNumber string) string {
	return "dial_cap:" + calllog.LastTenDigits(agentNumber)
}

func (s *Service) acquireDialSlot(ctx context.Context, agentNumber, refID string) (bool, error) {
	if s.rdb == nil {
		return true, nil
	}
	return utils.AcquireConcurrencyCap(ctx, s.rdb, dialCapKey(agentNumber), refID, s.cfg.MaxConcurrentDials, dialSlotTTL)
}

// releaseDialSlot frees the slot acquired for one dialed call. The release
// is keyed by ref id, so replayed terminal webhooks and a hangup racing the
// wire free the slot exactly once, and calls that never went through Dial
// do not touch the counter.
func (s *Service) releaseDialSlot(ctx context.Context, agentNumber, refID string) {
	if s.rdb == nil || agentNumber == "" || refID == "" {
		return
	}
	if _, err := utils.ReleaseConcurrencyCap(ctx, s.rdb, dialCapKey(agentNumber), refID); err != nil {
		logger.From(ctx).Warn("dial slot release failed", "agent_number", agentNumber, "call_key", refID, "err", err)
	}
}

// dialNumber formats the destination for the provider request: E.164 when
// the number parses for the configured region, the normalized raw digits
// otherwise.
func dialNumber(raw, region string) string {
	trimmed := strings.TrimSpace(raw)
	num, err := phonenumbers.Parse(trimmed, region)
	if err == nil && phonenumbers.IsValidNumber(num) {
		return phonenumbers.Format(num, phonenumbers.E164)
	}
	return calllog.NormalizeNumber(trimmed)
}

// Dial implements click-to-call: the record is created before the provider
// request so the first webhook, however fast, finds it by ref id.
func (s *Service) Dial(ctx context.Context, user, toNumber, fromNumber string) (DialResult, error) {
	if !s.cfg.Enabled {
		return DialResult{}, ErrDisabled
	}
	if strings.TrimSpace(toNumber) == "" {
		return DialResult{}, ErrInvalidInput
	}
	if s.provider == nil {
		return DialResult{}, errDialUnavailable
	}

	agentNumber := s.cfg.AgentNumber
	callerID := s.cfg.CallerID
	if callerID == "" {
		callerID = agentNumber
	}
	if s.agents != nil && user != "" {
		if m, err := s.agents.MappingForUser(ctx, user); err == nil {
			if m.AgentNumber != "" {
				agentNumber = m.AgentNumber
			}
			if m.CallerID != "" {
				callerID = m.CallerID
			}
		}
	}
	if fromNumber != "" {
		agentNumber = fromNumber
	}

	refID := uuid.NewString()

	ok, err := s.acquireDialSlot(ctx, agentNumber, refID)
	if err != nil {
		logger.From(ctx).Warn("dial slot acquire failed", "err", err)
	} else if !ok {
		return DialResult{}, ErrTooManyDials
	}

	ref := s.resolveReference(ctx, toNumber)
	if _, _, err := s.store.FindOrCreate(ctx, refID, calllog.CreateParams{
		Direction:     calllog.DirectionOutbound,
		FromNumber:    calllog.LastTenDigits(agentNumber),
		ToNumber:      calllog.LastTenDigits(toNumber),
		StartTime:     s.clock().UTC(),
		ReferenceType: ref.Type,
		ReferenceID:   ref.ID,
	}); err != nil {
		s.releaseDialSlot(ctx, agentNumber, refID)
		return DialResult{}, err
	}

	res, err := s.provider.Originate(ctx, OriginateRequest{
		AgentNumber:       agentNumber,
		DestinationNumber: dialNumber(toNumber, s.cfg.Region),
		CallerID:          callerID,
		RefID:             refID,
	})
	if err != nil {
		s.releaseDialSlot(ctx, agentNumber, refID)
		failed := calllog.StatusFailed
		now := s.clock().UTC()
		if rec, applyErr := s.store.Apply(ctx, refID, calllog.Update{Status: &failed, EndTime: &now}); applyErr != nil {
			logger.From(ctx).Error("failed-dial record update failed", "call_key", refID, "err", applyErr)
		} else {
			s.publish(ctx, rec, "", "originate_failed")
		}
		return DialResult{}, err
	}

	if res.CallID != "" {
		if _, err := s.store.Apply(ctx, refID, calllog.Update{Note: "call_id=" + res.CallID}); err != nil {
			logger.From(ctx).Warn("call id note update failed", "call_key", refID, "err", err)
		}
	}

	if rec, err := s.store.Get(ctx, refID); err == nil {
		s.publish(ctx, rec, res.CallID, "originated")
	}

	return DialResult{
		RefID:       refID,
		CallID:      res.CallID,
		AgentNumber: agentNumber,
		CallerID:    callerID,
	}, nil
}

// Hangup tears down an ongoing call. The explicit local instruction forces a
// Cancelled write, which the store only honors while no unambiguous terminal
// status has already landed from the wire.
func (s *Service) Hangup(ctx context.Context, callID, refID string) (calllog.CallRecord, error) {
	if !s.cfg.Enabled {
		return calllog.CallRecord{}, ErrDisabled
	}
	if strings.TrimSpace(callID) == "" {
		return calllog.CallRecord{}, ErrInvalidInput
	}
	if s.provider == nil {
		return calllog.CallRecord{}, errDialUnavailable
	}

	if err := s.provider.Hangup(ctx, callID); err != nil {
		return calllog.CallRecord{}, err
	}

	if refID == "" {
		return calllog.CallRecord{}, nil
	}

	rec, err := s.store.Cancel(ctx, refID, s.clock().UTC())
	if errors.Is(err, calllog.ErrNotFound) {
		return calllog.CallRecord{}, nil
	}
	if err != nil {
		return calllog.CallRecord{}, err
	}
	if rec.Direction == calllog.DirectionOutbound {
		s.releaseDialSlot(ctx, rec.FromNumber, rec.CallKey)
	}
	s.publish(ctx, rec, callID, "hangup")
	return rec, nil
}

// Journal records a webhook delivery outcome; best-effort.
func (s *Service) Journal(ctx context.Context, d eventlog.Delivery) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(ctx, d); err != nil {
		logger.From(ctx).Warn("delivery journal append failed", "err", err)
	}
}

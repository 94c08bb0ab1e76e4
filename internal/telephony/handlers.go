package telephony

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"callbridge/internal/auth"
	"callbridge/internal/calllog"
	"callbridge/internal/eventlog"
	"callbridge/pkg/logger"

	"github.com/gin-gonic/gin"
)

// maxBodyBytes bounds webhook bodies; provider payloads are small JSON or
// form documents.
const maxBodyBytes = 1 << 20

// Handlers is the HTTP edge of the webhook gateway and the click-to-call
// control surface. No reconciliation logic lives here.
type Handlers struct {
	svc     *Service
	auth    WebhookAuth
	enabled bool
}

func NewHandlers(svc *Service, auth WebhookAuth, enabled bool) *Handlers {
	return &Handlers{svc: svc, auth: auth, enabled: enabled}
}

// parsePayload reads the delivery body with provider-tolerant parsing:
// query parameters first, then form fields, then a JSON object, later
// sources overriding earlier ones. A body that parses as none of these
// yields whatever the query carried; the gateway never rejects on shape.
func parsePayload(r *http.Request) (calllog.Payload, string) {
	p := calllog.Payload{}
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			p[k] = vs[0]
		}
	}

	raw, _ := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	body := strings.TrimSpace(string(raw))
	if body == "" {
		return p, body
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		for k, v := range obj {
			p[k] = v
		}
		return p, body
	}

	if vals, err := url.ParseQuery(body); err == nil {
		for k, vs := range vals {
			if len(vs) > 0 {
				p[k] = vs[0]
			}
		}
	}
	return p, body
}

func (h *Handlers) journal(c *gin.Context, kind eventlog.Kind, outcome eventlog.Outcome, callKey, detail, payload string) {
	h.svc.Journal(c.Request.Context(), eventlog.Delivery{
		Kind:     kind,
		CallKey:  callKey,
		Outcome:  outcome,
		RemoteIP: c.ClientIP(),
		Detail:   detail,
		Payload:  payload,
	})
}

func inboundKind(event InboundEvent) eventlog.Kind {
	switch event {
	case EventAnswered:
		return eventlog.KindInboundAnswered
	case EventCompleted:
		return eventlog.KindInboundCompleted
	default:
		return eventlog.KindInboundReceived
	}
}

// Inbound returns the handler for one inbound webhook endpoint.
//
// The provider treats any non-2xx as a delivery failure and retries, so the
// gateway acknowledges everything it could authenticate, even events it
// chose to ignore.
func (h *Handlers) Inbound(event InboundEvent) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromGin(c)

		if !h.enabled {
			c.JSON(http.StatusOK, gin.H{"success": true, "event": string(event), "message": "telephony disabled"})
			return
		}
		if !h.auth.ValidateInbound(c.Request.Header) {
			h.journal(c, inboundKind(event), eventlog.OutcomeUnauthorized, "", "inbound token mismatch", "")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
			return
		}

		payload, raw := parsePayload(c.Request)
		res, err := h.svc.ProcessInbound(c.Request.Context(), event, payload)
		if err != nil {
			log.Error("inbound webhook processing failed", "event", string(event), "call_key", res.CallKey, "err", err)
			h.journal(c, inboundKind(event), eventlog.OutcomeFailed, res.CallKey, err.Error(), raw)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
			return
		}

		h.journal(c, inboundKind(event), eventlog.OutcomeApplied, res.CallKey, string(res.Record.Status), raw)
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"event":    string(event),
			"call_log": res.CallKey,
			"call_id":  res.CallID,
			"status":   res.Record.Status,
		})
	}
}

// Outbound handles the combined outbound-call webhook; a single endpoint
// receives every lifecycle event keyed by the ref id echoed from dialing.
func (h *Handlers) Outbound(c *gin.Context) {
	log := logger.FromGin(c)

	if !h.enabled {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "telephony disabled"})
		return
	}
	if !h.auth.ValidateOutbound(c.Request.Header) {
		h.journal(c, eventlog.KindOutbound, eventlog.OutcomeUnauthorized, "", "outbound token mismatch", "")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}

	payload, raw := parsePayload(c.Request)
	res, err := h.svc.ProcessOutbound(c.Request.Context(), payload)
	if err != nil {
		log.Error("outbound webhook processing failed", "call_key", res.CallKey, "err", err)
		h.journal(c, eventlog.KindOutbound, eventlog.OutcomeFailed, res.CallKey, err.Error(), raw)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}
	if res.Skipped {
		h.journal(c, eventlog.KindOutbound, eventlog.OutcomeSkipped, "", res.Reason, raw)
		c.JSON(http.StatusOK, gin.H{"success": true, "message": res.Reason})
		return
	}

	h.journal(c, eventlog.KindOutbound, eventlog.OutcomeApplied, res.CallKey, string(res.Record.Status), raw)
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"ref_id":        res.CallKey,
		"status":        res.Record.Status,
		"duration":      res.Record.DurationSeconds,
		"recording_url": res.Record.RecordingURL,
	})
}

type dialRequest struct {
	ToNumber   string `json:"to_number" binding:"required"`
	FromNumber string `json:"from_number"`
}

// Dial is the authenticated click-to-call endpoint.
func (h *Handlers) Dial(c *gin.Context) {
	log := logger.FromGin(c)

	var req dialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to_number is required"})
		return
	}

	user, _ := auth.UserID(c.Request.Context())
	res, err := h.svc.Dial(c.Request.Context(), user, req.ToNumber, req.FromNumber)
	switch {
	case errors.Is(err, ErrDisabled):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "telephony disabled"})
	case errors.Is(err, ErrInvalidInput):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to_number is required"})
	case errors.Is(err, ErrTooManyDials):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "concurrent dial limit reached"})
	case errors.Is(err, ErrProvider):
		// The provider's message is the one thing the agent can act on.
		log.Warn("dial rejected by provider", "user", user, "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case err != nil:
		log.Error("dial failed", "user", user, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		c.JSON(http.StatusOK, res)
	}
}

type hangupRequest struct {
	CallID string `json:"call_id" binding:"required"`
	RefID  string `json:"ref_id"`
}

// Hangup is the authenticated teardown endpoint.
func (h *Handlers) Hangup(c *gin.Context) {
	log := logger.FromGin(c)

	var req hangupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id is required"})
		return
	}

	rec, err := h.svc.Hangup(c.Request.Context(), req.CallID, req.RefID)
	switch {
	case errors.Is(err, ErrDisabled):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "telephony disabled"})
	case errors.Is(err, ErrInvalidInput):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id is required"})
	case errors.Is(err, ErrProvider):
		log.Warn("hangup rejected by provider", "call_id", req.CallID, "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case err != nil:
		log.Error("hangup failed", "call_id", req.CallID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		// Without a correlatable record the provider-side teardown is all
		// that happened; report it as cancelled.
		status := rec.Status
		if status == "" {
			status = calllog.StatusCancelled
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "ref_id": req.RefID, "status": status})
	}
}

package telephony

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// WebhookAuth validates the shared-secret token the provider sends with
// every webhook delivery.
//
// An empty configured token disables the check entirely ("open" mode); the
// config layer refuses that combination in production.
type WebhookAuth struct {
	token string
}

func NewWebhookAuth(token string) WebhookAuth {
	return WebhookAuth{token: strings.TrimSpace(token)}
}

// Open reports whether authentication is bypassed.
func (a WebhookAuth) Open() bool { return a.token == "" }

func (a WebhookAuth) equal(got string) bool {
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(a.token)) == 1
}

// ValidateInbound checks the inbound-endpoint contract:
//
//	Authorization: token <api_key>:<api_secret>
func (a WebhookAuth) ValidateInbound(h http.Header) bool {
	if a.Open() {
		return true
	}
	auth := strings.TrimSpace(h.Get("Authorization"))
	if auth == "" {
		return false
	}
	if !strings.HasPrefix(strings.ToLower(auth), "token ") {
		return false
	}
	return a.equal(auth[len("token "):])
}

// ValidateOutbound accepts the laxer formats the provider uses on the
// outbound webhook: the token may arrive bare, or with a "Bearer "/"token "
// prefix, in Authorization, X-Auth-Token or X-Webhook-Token.
func (a WebhookAuth) ValidateOutbound(h http.Header) bool {
	if a.Open() {
		return true
	}
	got := strings.TrimSpace(h.Get("Authorization"))
	if got == "" {
		got = strings.TrimSpace(h.Get("X-Auth-Token"))
	}
	if got == "" {
		got = strings.TrimSpace(h.Get("X-Webhook-Token"))
	}
	if got == "" {
		return false
	}
	lower := strings.ToLower(got)
	if strings.HasPrefix(lower, "bearer ") {
		got = got[len("bearer "):]
	} else if strings.HasPrefix(lower, "token ") {
		got = got[len("token "):]
	}
	return a.equal(got)
}

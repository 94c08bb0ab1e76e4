package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"callbridge/internal/calllog"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, env *testEnv, token string, enabled bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHandlers(env.svc, NewWebhookAuth(token), enabled)

	r := gin.New()
	r.POST("/webhooks/telephony/inbound/received", h.Inbound(EventReceived))
	r.POST("/webhooks/telephony/inbound/answered", h.Inbound(EventAnswered))
	r.POST("/webhooks/telephony/inbound/completed", h.Inbound(EventCompleted))
	r.POST("/webhooks/telephony/outbound", h.Outbound)
	r.POST("/telephony/dial", h.Dial)
	r.POST("/telephony/hangup", h.Hangup)
	return r
}

func postJSON(r *gin.Engine, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestInboundWebhookRejectsBadToken(t *testing.T) {
	env := newTestEnv(t, enabledConfig(), nil)
	r := newTestRouter(t, env, "key:secret", true)

	w := postJSON(r, "/webhooks/telephony/inbound/received", gin.H{"call_id": "CALL-1"}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(r, "/webhooks/telephony/inbound/received", gin.H{"call_id": "CALL-1"},
		map[string]string{"Authorization": "token wrong:secret"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// No record may exist after rejected deliveries.
	_, err := env.store.Get(context.Background(), "CALL-1")
	require.ErrorIs(t, err, calllog.ErrNotFound)
}

func TestInboundWebhookAppliesEvent(t *testing.T) {
	env := newTestEnv(t, enabledConfig(), nil)
	r := newTestRouter(t, env, "key:secret", true)

	w := postJSON(r, "/webhooks/telephony/inbound/received", gin.H{
		"call_id":                 "CALL-1",
		"customer_no_with_prefix": "+919876543210",
	}, map[string]string{"Authorization": "token key:secret"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, true, resp["success"])
	require.Equal(t, "CALL-1", resp["call_log"])

	rec, err := env.store.Get(context.Background(), "CALL-1")
	require.NoError(t, err)
	require.Equal(t, calllog.StatusRinging, rec.Status)
}

func TestInboundWebhookDisabledIsNoOp(t *testing.T) {
	env := newTestEnv(t, enabledConfig(), nil)
	r := newTestRouter(t, env, "key:secret", false)

	w := postJSON(r, "/webhooks/telephony/inbound/received", gin.H{"call_id": "CALL-1"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, err := env.store.Get(context.Background(), "CALL-1")
	require.ErrorIs(t, err, calllog.ErrNotFound)
}

func TestOutboundWebhookDisabled(t *testing.T) {
	env := newTestEnv(t, enabledConfig(), nil)
	r := newTestRouter(t, env, "key:secret", false)

	w := postJSON(r, "/webhooks/telephony/outbound", gin.H{"ref_id": "REF-1"}, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestOutboundWebhookAcceptsFormBody(t *testing.T) {
	env := newTestEnv(t, enabledConfig(), nil)
	r := newTestRouter(t, env, "secret", true)

	body := "ref_id=REF-1&call_status=ringing&agent_number=%2B918030000000"
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telephony/outbound", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Auth-Token", "secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	rec, err := env.store.Get(context.Background(), "REF-1")
	require.NoError(t, err)
	require.Equal(t, calllog.StatusRinging, rec.Status)
}

func TestOutboundWebhookBearerToken(t *testing.T) {
	env := newTestEnv(t, enabledConfig(), nil)
	r := newTestRouter(t, env, "secret", true)

	w := postJSON(r, "/webhooks/telephony/outbound", gin.H{"ref_id": "REF-2", "call_status": "ringing"},
		map[string]string{"Authorization": "Bearer secret"})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestOutboundWebhookMissingRefIDStillAcked(t *testing.T) {
	env := newTestEnv(t, enabledConfig(), nil)
	r := newTestRouter(t, env, "secret", true)

	w := postJSON(r, "/webhooks/telephony/outbound", gin.H{"call_status": "completed"},
		map[string]string{"X-Webhook-Token": "secret"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, true, resp["success"])
}

func TestDialEndpoint(t *testing.T) {
	env := newTestEnv(t, enabledConfig(), nil)
	r := newTestRouter(t, env, "", true)

	w := postJSON(r, "/telephony/dial", gin.H{}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(r, "/telephony/dial", gin.H{"to_number": "+919876543210"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var res DialResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.NotEmpty(t, res.RefID)
	require.Equal(t, "CID-1", res.CallID)
}

func TestHangupEndpoint(t *testing.T) {
	env := newTestEnv(t, enabledConfig(), nil)
	r := newTestRouter(t, env, "", true)

	w := postJSON(r, "/telephony/hangup", gin.H{}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	dial, err := env.svc.Dial(context.Background(), "", "+919876543210", "")
	require.NoError(t, err)

	w = postJSON(r, "/telephony/hangup", gin.H{"call_id": "CID-1", "ref_id": dial.RefID}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	rec, err := env.store.Get(context.Background(), dial.RefID)
	require.NoError(t, err)
	require.Equal(t, calllog.StatusCancelled, rec.Status)
}

package calllog

import (
	"strconv"
	"strings"
	"time"
)

// Payload is a decoded webhook body. The provider's payload shape differs by
// event kind and call direction, so every logical field is pulled through a
// priority-ordered alias list. Alias order is part of the contract.
type Payload map[string]any

// Pick returns the first alias whose value is non-empty.
func (p Payload) Pick(aliases ...string) string {
	if p == nil {
		return ""
	}
	for _, k := range aliases {
		v, ok := p[k]
		if !ok || v == nil {
			continue
		}
		s := stringify(v)
		if s != "" {
			return s
		}
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// ParseFlexibleTime accepts the provider's "2006-01-02 15:04:05" stamp,
// RFC3339, and unix-seconds variants. A malformed timestamp must never abort
// event processing, so failures yield nil.
func ParseFlexibleTime(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	layouts := []string{
		"2006-01-02 15:04:05",
		time.RFC3339,
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return &t
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
		t := time.Unix(secs, 0).UTC()
		return &t
	}
	return nil
}

// Some provider webhook templates were configured with a trailing space in
// the key name; those aliases are intentional, not typos.

// CustomerNumber is the customer-side number: who called (inbound) or who was
// dialed (outbound).
func (p Payload) CustomerNumber() string {
	return NormalizeNumber(p.Pick(
		"customer_no_with_prefix",
		"customer_no_with_prefix ",
		"customer_number_with_prefix",
		"customer_number_with_prefix ",
		"customer_no",
		"customer_number",
		"call_to_number",
		"destination_number",
		"from",
		"caller",
		"caller_number",
		"from_number",
	))
}

// DIDNumber is the virtual number the customer dialed.
func (p Payload) DIDNumber() string {
	return NormalizeNumber(p.Pick(
		"call_to_number",
		"did_number",
		"virtual_number",
		"to",
	))
}

// AnsweredAgentNumber differs between the "answered" and "completed"
// payloads, hence both spellings.
func (p Payload) AnsweredAgentNumber() string {
	return NormalizeNumber(p.Pick(
		"answer_agent_number",
		"answered_agent_number",
		"answered_agent",
		"caller_id_number",
		"agent_number",
	))
}

// AnsweredAgent returns the answering agent label. The provider sometimes
// sends a nested object with name/agent_number, sometimes a plain string.
func (p Payload) AnsweredAgent() string {
	if m, ok := p["answered_agent"].(map[string]any); ok {
		if s := stringify(m["name"]); s != "" {
			return s
		}
		return stringify(m["agent_number"])
	}
	return p.Pick("answered_agent", "answered_agent_name")
}

// MissedAgent returns the agent label that missed the call, if any.
func (p Payload) MissedAgent() string {
	return p.Pick("missed_agent")
}

// RawStatus returns the provider's own status string, lowercased.
func (p Payload) RawStatus() string {
	return strings.ToLower(p.Pick("call_status", "status"))
}

// HangupCause returns the hangup cause/reason text.
func (p Payload) HangupCause() string {
	return p.Pick(
		"hangup_cause_description",
		"hangupcause_desc",
		"reason_key",
		"hangup_cause_key",
	)
}

// CallConnected reports the provider's connected flag; nil when absent.
func (p Payload) CallConnected() *bool {
	v, ok := p["call_connected"]
	if !ok || v == nil {
		return nil
	}
	var out bool
	switch t := v.(type) {
	case bool:
		out = t
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		out = s == "1" || s == "true" || s == "yes"
	case float64:
		out = t != 0
	default:
		return nil
	}
	return &out
}

// BillSec returns provider-billed talk seconds, 0 when absent or malformed.
func (p Payload) BillSec() int {
	return toSeconds(p.Pick("billsec"))
}

// DurationSeconds prefers billed seconds over the generic duration field.
// Returns -1 when neither is present so callers can distinguish "absent"
// from a genuine zero.
func (p Payload) DurationSeconds() int {
	v := p.Pick("billsec", "duration", "call_duration", "duration_seconds")
	if v == "" {
		return -1
	}
	return toSeconds(v)
}

func toSeconds(v string) int {
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 {
		return 0
	}
	return int(f)
}

// RecordingURL is truncated to the persisted column width.
func (p Payload) RecordingURL() string {
	v := p.Pick("recording_url", "recordingUrl")
	if v == "" {
		return ""
	}
	return Truncate(v)
}

func (p Payload) StartTime() *time.Time {
	return ParseFlexibleTime(p.Pick("start_stamp", "start_time", "start"))
}

func (p Payload) AnswerTime() *time.Time {
	return ParseFlexibleTime(p.Pick("answer_stamp"))
}

func (p Payload) EndTime() *time.Time {
	return ParseFlexibleTime(p.Pick("end_stamp", "end_time", "end"))
}

func (p Payload) RefID() string {
	return p.Pick("ref_id", "refId", "refID")
}

func (p Payload) CallID() string {
	return p.Pick("call_id", "callId", "callid")
}

package calllog

import (
	"strings"
	"time"
)

// Signals is the input set the status reconciler decides on. The provider
// routinely omits, duplicates, or reorders fields, so no single signal is
// trusted on its own.
type Signals struct {
	RawStatus     string
	AnsweredAgent string
	MissedAgent   string
	CallConnected *bool
	HangupCause   string
	AnswerTime    *time.Time
	EndTime       *time.Time
	BillSec       int
	Duration      int
}

// SignalsFrom extracts the reconciler's input set from a webhook payload.
func SignalsFrom(p Payload) Signals {
	agent := p.AnsweredAgent()
	if agent == "" {
		agent = p.AnsweredAgentNumber()
	}
	dur := p.Pick("duration")
	return Signals{
		RawStatus:     p.RawStatus(),
		AnsweredAgent: agent,
		MissedAgent:   p.MissedAgent(),
		CallConnected: p.CallConnected(),
		HangupCause:   p.HangupCause(),
		AnswerTime:    p.AnswerTime(),
		EndTime:       p.EndTime(),
		BillSec:       p.BillSec(),
		Duration:      toSeconds(dur),
	}
}

func (s Signals) connected() bool {
	return s.CallConnected != nil && *s.CallConnected
}

func (s Signals) answerEvidence() bool {
	return s.AnswerTime != nil || s.connected() || s.BillSec > 0
}

// MapStatus maps a raw event plus accumulated signals to the canonical
// status. Pure and total; rules are priority-ordered, first match wins.
// Write-time ordering guards (terminal monotonicity) live in the store, not
// here: this computes the candidate from the incoming payload alone.
func MapStatus(s Signals) CallStatus {
	switch s.RawStatus {
	case "ringing", "agent_ringing":
		return StatusRinging
	case "answered", "connected", "in_progress", "active":
		return StatusInProgress
	case "completed", "hangup", "ended", "disconnected":
		if s.AnsweredAgent != "" && s.answerEvidence() {
			return StatusCompleted
		}
		// Ended without evidence of answer, whether or not a missed agent
		// was reported.
		return StatusNoAnswer
	case "no_answer", "missed", "not_answered":
		return StatusNoAnswer
	case "failed":
		return StatusFailed
	case "busy":
		return StatusBusy
	case "cancelled", "canceled":
		return StatusCancelled
	}

	// Unrecognized or absent status string. If the call has ended, fall back
	// to heuristics over hangup cause and talk-time evidence.
	if s.EndTime != nil {
		cause := strings.ToLower(s.HangupCause)
		if cause != "" {
			switch {
			case strings.Contains(cause, "cancel") || strings.Contains(cause, "user"):
				return StatusCancelled
			case strings.Contains(cause, "busy"):
				return StatusBusy
			case strings.Contains(cause, "no answer") || strings.Contains(cause, "missed") || strings.Contains(cause, "timeout"):
				return StatusNoAnswer
			}
		}
		if s.AnsweredAgent != "" && (s.answerEvidence() || s.Duration > 0) {
			return StatusCompleted
		}
		if s.MissedAgent != "" {
			return StatusNoAnswer
		}
		// Positive duration with no answered-agent signal still counts as
		// completed. Likely a workaround for incomplete provider payloads;
		// kept for compatibility with observed webhook behavior.
		if s.BillSec > 0 || s.Duration > 0 {
			return StatusCompleted
		}
		return StatusNoAnswer
	}

	if s.AnsweredAgent != "" {
		return StatusInProgress
	}

	return StatusInitiated
}

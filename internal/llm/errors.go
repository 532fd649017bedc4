package llm

import (
	"errors"
	"net"
	"strings"

	"github.com/quiplabs/quip/internal/chat"
)

// classify wraps a provider error in a typed capability error. This is the
// single place where provider failures are inspected; everything above the
// adapters branches on the structured kind.
func classify(op string, err error) error {
	return &chat.CapabilityError{Kind: kindOf(err), Op: op, Err: err}
}

func kindOf(err error) chat.CapabilityKind {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return chat.CapabilityTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "429", "rate limit", "rate_limit", "quota", "resource_exhausted", "too many requests"):
		return chat.CapabilityQuota
	case containsAny(msg, "401", "403", "api key", "unauthorized", "unauthenticated", "permission denied", "invalid authentication"):
		return chat.CapabilityAuth
	case containsAny(msg, "500", "502", "503", "504", "timeout", "deadline exceeded", "connection refused", "connection reset", "no such host", "unavailable", "eof", "overloaded"):
		return chat.CapabilityTransient
	default:
		return chat.CapabilityUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

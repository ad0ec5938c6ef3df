// Package event normalizes the repeater's flat key/value callbacks into
// typed [domain.Event] values.
//
// The repeater is an untrusted, loosely-typed source: fields may be missing,
// empty, or garbled. Parsing never fails; every field has an explicit
// default (numeric fields fall back to 0, slot indexes to -1, addresses to
// the empty string) so malformed records degrade instead of erroring.
package event

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"relayboard/internal/domain"
)

// kindByCode maps the repeater's EvNum wire codes to event kinds.
var kindByCode = map[string]domain.EventKind{
	"0": domain.KindViewerConnect,
	"1": domain.KindViewerDisconnect,
	"2": domain.KindServerConnect,
	"3": domain.KindServerDisconnect,
	"4": domain.KindSessionStart,
	"5": domain.KindSessionEnd,
	"6": domain.KindRepeaterStartup,
	"7": domain.KindRepeaterShutdown,
	"8": domain.KindRepeaterHeartbeat,
}

// Parse decodes one inbound key/value record into an Event. Unknown EvNum
// codes yield [domain.KindUnknown]; such events are still processed and
// audited downstream. A missing Time field defaults to now.
//
// Address extraction depends on the kind: connect/disconnect events carry a
// single Ip field for the role they concern, while session start/end events
// carry distinct VwrIp and SvrIp fields.
func Parse(values url.Values, now time.Time) domain.Event {
	kind, ok := kindByCode[strings.TrimSpace(values.Get("EvNum"))]
	if !ok {
		kind = domain.KindUnknown
	}

	ev := domain.Event{
		Kind:        kind,
		Timestamp:   parseTimestamp(values.Get("Time"), now),
		RepeaterPID: intOr(values.Get("Pid"), 0),
		Code:        intOr(values.Get("Code"), 0),
		Mode:        intOr(values.Get("Mode"), 0),
		ViewerSlot:  intOr(firstNonEmpty(values.Get("VwrTblInd"), values.Get("TblInd")), -1),
		ServerSlot:  intOr(values.Get("SvrTblInd"), -1),
		MaxSessions: intOr(values.Get("MaxSessions"), 0),
	}

	switch kind {
	case domain.KindViewerConnect, domain.KindViewerDisconnect:
		ev.ViewerAddr = FormatAddr(values.Get("Ip"))
	case domain.KindServerConnect, domain.KindServerDisconnect:
		ev.ServerAddr = FormatAddr(values.Get("Ip"))
	case domain.KindSessionStart, domain.KindSessionEnd:
		ev.ViewerAddr = FormatAddr(values.Get("VwrIp"))
		ev.ServerAddr = FormatAddr(values.Get("SvrIp"))
	}

	return ev
}

// FormatAddr normalizes a repeater-reported address. Dotted-decimal strings
// pass through unchanged. A pure-digit string is the repeater's legacy
// single-octet encoding and is rewritten as "0.0.0.<digits>". Any other
// non-empty value passes through; empty input yields the empty string.
func FormatAddr(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if strings.Contains(v, ".") {
		return v
	}
	if isDigits(v) {
		return "0.0.0." + v
	}
	return v
}

func parseTimestamp(v string, now time.Time) time.Time {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n <= 0 {
		return now
	}
	return time.Unix(n, 0)
}

func intOr(v string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func isDigits(v string) bool {
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(v) > 0
}

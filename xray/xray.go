// Package xray models the core's diagnostic-tracing collaborator as a
// trait/interface with a single Append method. The collector that consumes
// these lines lives outside the core; production builds may wire in the
// no-op implementation.
package xray

import jsoniter "github.com/json-iterator/go"

// Appender receives structured diagnostic lines from match functions.
// Implementations must not block the caller for long - match functions are
// on the hot path.
type Appender interface {
	Append(line Line)
}

// Line is one structured diagnostic record.
type Line struct {
	Op     string      `json:"op"`
	OrgID  uint32      `json:"org_id,omitempty"`
	Key    string      `json:"key,omitempty"`
	Hit    bool        `json:"hit"`
	Detail interface{} `json:"detail,omitempty"`
}

// NoOp discards every line; it is the default when no collector is wired.
type NoOp struct{}

func (NoOp) Append(Line) {}

// JSONAppender encodes each line with jsoniter and hands it to Sink.
type JSONAppender struct {
	Sink func([]byte)
}

func (a JSONAppender) Append(l Line) {
	if a.Sink == nil {
		return
	}
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(l)
	if err != nil {
		return
	}
	a.Sink(b)
}

package xray

import (
	"strings"
	"testing"
)

func TestNoOpDiscardsLines(t *testing.T) {
	var a Appender = NoOp{}
	a.Append(Line{Op: "domain_match", Hit: true})
}

func TestJSONAppenderEncodesLine(t *testing.T) {
	var got []byte
	a := JSONAppender{Sink: func(b []byte) { got = b }}
	a.Append(Line{Op: "cidr_match", OrgID: 7, Key: "1.2.3.4", Hit: true})

	if len(got) == 0 {
		t.Fatalf("expected sink to receive encoded bytes")
	}
	want := `"op":"cidr_match"`
	if !strings.Contains(string(got), want) {
		t.Fatalf("expected encoded line to contain %q, got %s", want, got)
	}
}

func TestJSONAppenderNilSinkIsNoOp(t *testing.T) {
	a := JSONAppender{}
	a.Append(Line{Op: "x"}) // must not panic
}

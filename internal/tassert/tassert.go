// Package tassert provides small test-assertion helpers shared by this
// module's package-level tests, in the spirit of the teacher's own
// devtools/tassert helper used from its cmn/tests package.
package tassert

import "testing"

func Fatalf(tb testing.TB, cond bool, f string, a ...interface{}) {
	tb.Helper()
	if !cond {
		tb.Fatalf(f, a...)
	}
}

func Errorf(tb testing.TB, cond bool, f string, a ...interface{}) {
	tb.Helper()
	if !cond {
		tb.Errorf(f, a...)
	}
}

func CheckFatal(tb testing.TB, err error) {
	tb.Helper()
	if err != nil {
		tb.Fatalf("unexpected error: %v", err)
	}
}

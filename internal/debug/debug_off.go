//go:build !debug

// Package debug provides build-tag-gated assertions. This is the no-op
// build: every call compiles down to nothing so release builds pay zero
// cost for assertions left in the hot path.
package debug

import "sync"

func Assert(cond bool, a ...interface{})              {}
func Assertf(cond bool, f string, a ...interface{})   {}
func AssertMsg(cond bool, msg string)                 {}
func AssertNoErr(err error)                           {}
func AssertFunc(f func() bool, a ...interface{})      {}
func AssertMutexLocked(m *sync.Mutex)                 {}

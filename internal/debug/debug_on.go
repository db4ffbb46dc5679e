//go:build debug

// Package debug provides build-tag-gated assertions used on paths that must
// never fire in a correct build but are worth the cost while developing.
package debug

import (
	"bytes"
	"fmt"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/polistore/uup/internal/log"
)

var smodules = map[string]log.Subsystem{
	"objhash":        log.SmoduleObjHash,
	"lists":          log.SmoduleLists,
	"fileprefs":      log.SmoduleFilePrefs,
	"pref":           log.SmodulePref,
	"confset":        log.SmoduleConfSet,
	"categorization": log.SmoduleCategorization,
	"loader":         log.SmoduleLoader,
}

func init() {
	loadLogLevel()
}

func Assert(cond bool, a ...interface{}) {
	if !cond {
		_panic(a...)
	}
}

func Assertf(cond bool, f string, a ...interface{}) {
	if !cond {
		_panic(fmt.Sprintf(f, a...))
	}
}

func AssertMsg(cond bool, msg string) {
	if !cond {
		_panic(msg)
	}
}

func AssertNoErr(err error) {
	if err != nil {
		_panic(err)
	}
}

func AssertFunc(f func() bool, a ...interface{}) {
	if !f() {
		_panic(a...)
	}
}

func AssertMutexLocked(m *sync.Mutex) {
	state := reflect.ValueOf(m).Elem().FieldByName("state")
	AssertMsg(state.Int()&1 == 1, "mutex not locked")
}

func _panic(a ...interface{}) {
	msg := "DEBUG PANIC: "
	if len(a) > 0 {
		msg += fmt.Sprint(a...)
	}
	buffer := bytes.NewBuffer(make([]byte, 0, 1024))
	fmt.Fprint(buffer, msg)
	for i := 2; i < 9; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if !strings.Contains(file, "polistore") {
			break
		}
		if buffer.Len() > len(msg) {
			buffer.WriteString(" <- ")
		}
		fmt.Fprintf(buffer, "%s:%d", file, line)
	}
	log.Errorf("%s", buffer.Bytes())
	panic(msg)
}

// loadLogLevel reads UUP_DEBUG=module=level,... (same shape as GODEBUG) to
// set per-subsystem verbosity before any assertions run.
func loadLogLevel() {
	val := getenv("UUP_DEBUG")
	if val == "" {
		return
	}
	for _, ele := range strings.Split(val, ",") {
		pair := strings.SplitN(ele, "=", 2)
		if len(pair) != 2 {
			continue
		}
		module, level := pair[0], pair[1]
		sub, ok := smodules[module]
		if !ok {
			continue
		}
		lvl, err := strconv.Atoi(level)
		if err != nil {
			continue
		}
		log.SetV(sub, lvl)
	}
}

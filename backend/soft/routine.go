package soft

import (
	"strings"
	"sync"
)

// Routine computes the outputs of one element. It is the CPU
// counterpart of a kernel body's fn main().
type Routine func(inv *Invocation)

var (
	routinesMu sync.RWMutex
	routines   = make(map[string]Routine)
)

// Register associates a kernel body with the routine that executes it.
// Bodies that differ only in whitespace share a routine. Registering the
// same body again replaces the routine.
func Register(body string, r Routine) {
	routinesMu.Lock()
	defer routinesMu.Unlock()
	routines[routineKey(body)] = r
}

// Unregister removes the routine of body.
func Unregister(body string) {
	routinesMu.Lock()
	defer routinesMu.Unlock()
	delete(routines, routineKey(body))
}

func lookupRoutine(body string) (Routine, bool) {
	routinesMu.RLock()
	defer routinesMu.RUnlock()
	r, ok := routines[routineKey(body)]
	return r, ok
}

func routineKey(body string) string {
	return strings.Join(strings.Fields(body), " ")
}

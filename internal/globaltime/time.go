// Package globaltime is the process clock. Tests freeze or step it instead of
// sleeping.
package globaltime

import (
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	nowFunc = time.Now
	frozen  *time.Time
)

func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	if frozen != nil {
		return *frozen
	}
	return nowFunc()
}

func UTC() time.Time {
	return Now().UTC()
}

// Since is time.Since against the process clock.
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}

func SetMockTime(t time.Time) {
	mu.Lock()
	defer mu.Unlock()
	value := t
	frozen = &value
}

// Advance moves a frozen clock forward. It is a no-op on the real clock.
func Advance(d time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	if frozen == nil {
		return
	}
	next := frozen.Add(d)
	frozen = &next
}

func ResetTime() {
	mu.Lock()
	defer mu.Unlock()
	frozen = nil
	nowFunc = time.Now
}

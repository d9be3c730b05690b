package devnum

import (
	"errors"
	"sync"
)

// Dynamic major pool. Majors are handed out from DynamicMajorMax down to
// DynamicMajorMin, mirroring how operating systems assign majors to
// drivers that do not claim a fixed number.
const (
	DynamicMajorMin = 234
	DynamicMajorMax = 254
)

// Allocator errors.
var (
	// ErrExhausted indicates no free major numbers remain.
	ErrExhausted = errors.New("device number space exhausted")

	// ErrBadRange indicates an invalid minor range request.
	ErrBadRange = errors.New("invalid minor range")
)

// Allocator hands out device identity regions from the dynamic major pool.
// It is safe for concurrent use.
type Allocator struct {
	mu sync.Mutex

	// inUse maps allocated majors to the name they were tagged with.
	inUse map[uint32]string

	// reserved pins name->major assignments restored from a previous
	// run. A reserved major is skipped by the dynamic scan and handed
	// out only to the matching name.
	reserved map[string]uint32
}

// NewAllocator creates an empty allocator.
func NewAllocator() *Allocator {
	return &Allocator{
		inUse:    make(map[uint32]string),
		reserved: make(map[string]uint32),
	}
}

// Allocate requests a free major and the minor range [firstMinor,
// firstMinor+count) tagged with name. It fails with ErrExhausted when the
// pool has no free majors; the caller surfaces that immediately rather
// than retrying. A name with a restored assignment receives the same
// major it held before, if still free.
func (a *Allocator) Allocate(name string, firstMinor, count uint32) (Region, error) {
	if count == 0 || firstMinor > MaxMinor || count-1 > MaxMinor-firstMinor {
		return Region{}, ErrBadRange
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if major, ok := a.reserved[name]; ok {
		if _, taken := a.inUse[major]; !taken {
			a.inUse[major] = name
			return Region{Major: major, FirstMinor: firstMinor, Count: count, Name: name}, nil
		}
		// Reservation lost to another driver; fall through to the scan.
	}

	for major := uint32(DynamicMajorMax); major >= DynamicMajorMin; major-- {
		if _, taken := a.inUse[major]; taken {
			continue
		}
		if a.reservedForOther(major, name) {
			continue
		}
		a.inUse[major] = name
		a.reserved[name] = major
		return Region{Major: major, FirstMinor: firstMinor, Count: count, Name: name}, nil
	}

	return Region{}, ErrExhausted
}

// reservedForOther reports whether major is pinned to a different name.
func (a *Allocator) reservedForOther(major uint32, name string) bool {
	for n, m := range a.reserved {
		if m == major && n != name {
			return true
		}
	}
	return false
}

// Release returns the region's major to the pool. The name->major
// reservation survives so a later Allocate for the same name gets the
// same major back. Releasing a region that was never allocated, or
// releasing twice, is a caller bug.
func (a *Allocator) Release(r Region) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inUse, r.Major)
}

// Allocated returns the number of majors currently in use.
func (a *Allocator) Allocated() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inUse)
}

// Assignments returns a copy of the name->major assignment table,
// including reservations from released regions. Suitable for persisting
// so numbering stays stable across restarts.
func (a *Allocator) Assignments() map[string]uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]uint32, len(a.reserved))
	for name, major := range a.reserved {
		out[name] = major
	}
	return out
}

// Restore pins name->major assignments from a previous run. Entries
// outside the dynamic pool are ignored. Restore must be called before
// the first Allocate.
func (a *Allocator) Restore(assignments map[string]uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for name, major := range assignments {
		if major < DynamicMajorMin || major > DynamicMajorMax {
			continue
		}
		a.reserved[name] = major
	}
}

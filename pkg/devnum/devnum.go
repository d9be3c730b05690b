package devnum

import "fmt"

// Bit layout of a packed DevNum: 12 bits of major, 20 bits of minor.
const (
	minorBits = 20
	minorMask = (1 << minorBits) - 1

	// MaxMajor is the largest representable major number.
	MaxMajor = (1 << 12) - 1

	// MaxMinor is the largest representable minor number.
	MaxMinor = minorMask
)

// DevNum is a packed (major, minor) device identity.
type DevNum uint32

// Mkdev packs a major and minor number into a DevNum.
// Values outside the representable range are truncated to it.
func Mkdev(major, minor uint32) DevNum {
	return DevNum((major&MaxMajor)<<minorBits | minor&minorMask)
}

// Major returns the major component.
func (d DevNum) Major() uint32 {
	return uint32(d) >> minorBits
}

// Minor returns the minor component.
func (d DevNum) Minor() uint32 {
	return uint32(d) & minorMask
}

// String renders the identity in the conventional "major:minor" form.
func (d DevNum) String() string {
	return fmt.Sprintf("%d:%d", d.Major(), d.Minor())
}

// Region is a contiguous range of minors under one major, tagged with the
// requesting driver's name for introspection. A Region is handed out by an
// Allocator and stays immutable until released.
type Region struct {
	// Major is the allocated major number.
	Major uint32

	// FirstMinor is the first minor in the range.
	FirstMinor uint32

	// Count is the number of minors in the range.
	Count uint32

	// Name is the human-readable tag supplied at allocation.
	Name string
}

// First returns the identity of the region's first device.
func (r Region) First() DevNum {
	return Mkdev(r.Major, r.FirstMinor)
}

// Contains reports whether the identity falls inside the region.
func (r Region) Contains(d DevNum) bool {
	if d.Major() != r.Major {
		return false
	}
	m := d.Minor()
	return m >= r.FirstMinor && m < r.FirstMinor+r.Count
}

// IsZero reports whether the region is the zero value (never allocated).
func (r Region) IsZero() bool {
	return r.Major == 0 && r.Count == 0
}

// String renders the region as "name major:first+count".
func (r Region) String() string {
	return fmt.Sprintf("%s %d:%d+%d", r.Name, r.Major, r.FirstMinor, r.Count)
}

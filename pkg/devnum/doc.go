// Package devnum manages numeric device identities.
//
// A device identity is a (major, minor) pair packed into a DevNum. The
// major number selects the driver; minors distinguish the individual
// nodes a driver serves. Drivers request a contiguous minor range tagged
// with a human-readable name, and the Allocator hands out a free major
// from a fixed dynamic pool, highest first.
//
// Identities are unique while allocated, immutable after allocation, and
// must be released exactly once. Releasing a region twice is a caller
// bug and is not defended against.
package devnum

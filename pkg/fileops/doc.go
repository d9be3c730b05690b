// Package fileops defines the dispatch contract between a device host
// and a driver.
//
// FileOperations is the fixed callback table the host invokes on every
// system-call-shaped operation against a device node: open, release,
// ioctl, read, write. A driver registers one implementation per device;
// a future protocol layer is a second implementation of the same
// interface composed underneath, not a subclass.
//
// The package also defines the errno surface. Inside the host, failures
// travel as ordinary Go errors; at the user-space boundary they collapse
// to POSIX-style categories via ErrnoOf, preserving the convention that
// negative means error, zero means success or no data, and positive
// means bytes transferred.
package fileops

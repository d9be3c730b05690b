// Package registry hosts devices in-process.
//
// Registry is the reference host.Host implementation. It owns the device
// number allocator, the major-to-dispatch routing table, the class
// namespace, and the node namespace that user-facing surfaces browse.
//
// It also provides the user-space half of the contract: Open resolves a
// node path and returns a File whose Read, Write, Ioctl and Close calls
// land in the driver's bound FileOperations. Failures carry POSIX errno
// categories: ENODEV for a path with no node, ENXIO for a node whose
// device number has no bound driver, EBADF for any operation after
// Close. Operations on one File are serialized in program order;
// operations on different Files are not ordered relative to each other.
//
// Acquire methods return errors and leave the registry unchanged on
// failure. Release methods never fail but panic on misuse (double
// release, foreign handles, destroying a class that still has nodes),
// since those are driver bugs that must not go unnoticed.
package registry

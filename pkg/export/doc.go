// Package export publishes registered device nodes on the filesystem as
// unix domain sockets.
//
// Each node gets a socket at <base>/<node path>.sock, so the node
// "modbus_class/modbus_dev0" appears as
// <base>/modbus_class/modbus_dev0.sock. Every accepted connection opens
// the node, which allocates one device session per peer. The exporter
// streams the device's readable data to the peer, half-closes its side,
// then forwards peer writes into the device until the peer disconnects.
// Closing the connection releases the session.
//
// Ioctl has no stream representation and stays an in-process API.
package export

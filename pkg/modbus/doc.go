// Package modbus is the placeholder Modbus protocol layer.
//
// Handler implements the full dispatch contract with real session
// bookkeeping but stubbed data paths: reads report end of data, writes
// accept nothing, and every ioctl command is acknowledged. A Modbus
// transport drops in behind the same five entry points by replacing
// the stubs; nothing in the hosting stack changes when it does.
package modbus

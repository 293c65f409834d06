package transport

import (
	"context"
	"errors"
	"io"
)

// ErrNoAddress is returned by Open when no address was supplied and
// discovery found no device.
var ErrNoAddress = errors.New("no device address resolvable")

// Conn is an open byte-stream link to the device. Read blocks until bytes
// arrive or the link fails; closing the connection unblocks a pending Read.
type Conn interface {
	io.ReadWriteCloser
}

// Transport acquires byte-stream links to a BioHarness serial bridge. An
// empty address triggers discovery.
type Transport interface {
	Open(ctx context.Context, address string) (Conn, error)
}

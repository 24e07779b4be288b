//go:build !linux

package symresolve

import "fmt"

// library is the non-Linux stub: dynamic loading of the adhoc resolution
// library is only implemented for Linux hosts.
type library struct{}

func openLibrary(path string) (*library, error) {
	return nil, fmt.Errorf("symresolve: dynamic library loading is not implemented on this platform (tried %s)", path)
}

func (l *library) CallUint16(symbol string) (uint16, error) {
	return 0, fmt.Errorf("symresolve: dynamic library loading is not implemented on this platform (symbol %s)", symbol)
}

func (l *library) Close() error {
	return nil
}

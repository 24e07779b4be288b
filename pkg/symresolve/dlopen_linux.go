//go:build linux

package symresolve

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>

typedef unsigned short (*irq_fn)(void);

static unsigned short call_irq_fn(void *fn) {
	return ((irq_fn)fn)();
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// library wraps a dlopen'd shared object. No pure-Go dlopen binding
// appears anywhere in the corpus, so this one corner is built on cgo
// directly rather than forced onto a library that doesn't exist.
type library struct {
	handle unsafe.Pointer
}

// openLibrary dlopens path.
func openLibrary(path string) (*library, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	handle := C.dlopen(cPath, C.RTLD_NOW)
	if handle == nil {
		return nil, fmt.Errorf("dlopen %s: %s", path, C.GoString(C.dlerror()))
	}

	return &library{handle: handle}, nil
}

// CallUint16 looks up symbol and invokes it as a `extern "C" fn() -> u16`.
func (l *library) CallUint16(symbol string) (uint16, error) {
	cSymbol := C.CString(symbol)
	defer C.free(unsafe.Pointer(cSymbol))

	C.dlerror() // clear any prior error

	fn := C.dlsym(l.handle, cSymbol)
	if errMsg := C.dlerror(); errMsg != nil {
		return 0, fmt.Errorf("dlsym %s: %s", symbol, C.GoString(errMsg))
	}

	if fn == nil {
		return 0, fmt.Errorf("dlsym %s: symbol resolved to nil", symbol)
	}

	return uint16(C.call_irq_fn(fn)), nil
}

// Close dlcloses the library.
func (l *library) Close() error {
	if C.dlclose(l.handle) != 0 {
		return fmt.Errorf("dlclose: %s", C.GoString(C.dlerror()))
	}

	return nil
}

//go:build !v8

package quickjs

import (
	"encoding/hex"
	"fmt"
	"unsafe"

	"github.com/cryguy/qjs/internal/core"
	lib "modernc.org/libquickjs"
)

// btChunkSize is the raw byte chunk size for the fallback hex transfer path.
const btChunkSize = 131072 // 128 KB raw, 256 KB hex

// WriteBinaryToJS stores a copy of data as an ArrayBuffer at
// globalThis[globalName] with a single memcpy (JS_NewArrayBufferCopy).
func (r *Runtime) WriteBinaryToJS(globalName string, data []byte) error {
	if len(data) == 0 {
		return r.Eval(fmt.Sprintf("globalThis[%s] = new ArrayBuffer(0);", core.Quote(globalName)))
	}
	if r.useFallback {
		return r.writeBinaryFallback(globalName, data)
	}
	jsVal := lib.XJS_NewArrayBufferCopy(r.tls, r.ctx, uintptr(unsafe.Pointer(&data[0])), lib.Tsize_t(len(data)))
	if jsVal.Ftag == tagException {
		return r.stashException()
	}
	return r.storeGlobal(globalName, jsVal)
}

// ReadBinaryFromJS copies the ArrayBuffer (or SharedArrayBuffer) at
// globalThis[globalName] into Go memory and deletes the global.
func (r *Runtime) ReadBinaryFromJS(globalName string) ([]byte, error) {
	if r.useFallback {
		return r.readBinaryFallback(globalName)
	}
	defer func() { _ = r.Eval(fmt.Sprintf("delete globalThis[%s];", core.Quote(globalName))) }()

	cName, err := r.cString(globalName)
	if err != nil {
		return nil, err
	}
	glob := lib.XJS_GetGlobalObject(r.tls, r.ctx)
	jsVal := lib.XJS_GetPropertyStr(r.tls, r.ctx, glob, cName)
	lib.XFreeValue(r.tls, r.ctx, glob)
	r.freeCString(cName)
	defer lib.XFreeValue(r.tls, r.ctx, jsVal)

	psize := r.tls.Alloc(int(unsafe.Sizeof(lib.Tsize_t(0))))
	defer r.tls.Free(int(unsafe.Sizeof(lib.Tsize_t(0))))

	dataPtr := lib.XJS_GetArrayBuffer(r.tls, r.ctx, psize, jsVal)
	size := *(*lib.Tsize_t)(unsafe.Pointer(psize))
	if dataPtr == 0 {
		// A non-buffer value leaves a TypeError pending; swallow it.
		lib.XFreeValue(r.tls, r.ctx, lib.XJS_GetException(r.tls, r.ctx))
		return nil, fmt.Errorf("global %q is not an ArrayBuffer", globalName)
	}
	if size == 0 {
		return []byte{}, nil
	}
	result := make([]byte, size)
	copy(result, unsafe.Slice((*byte)(unsafe.Pointer(dataPtr)), size))
	return result, nil
}

// --- Fallback: chunked hex transfer (used if C API extraction fails) ---

// initFallbackTransfer registers Go callbacks for chunked transfer. Hex is
// used because plain QuickJS has no atob/btoa.
func (r *Runtime) initFallbackTransfer() error {
	if err := r.RegisterFunc("__qjs_bt_chunk", func(offset int) (string, error) {
		if r.pendingBinary == nil {
			return "", fmt.Errorf("no pending binary data")
		}
		end := min(offset+btChunkSize, len(r.pendingBinary))
		return hex.EncodeToString(r.pendingBinary[offset:end]), nil
	}); err != nil {
		return fmt.Errorf("registering __qjs_bt_chunk: %w", err)
	}

	if err := r.RegisterFunc("__qjs_bt_recv", func(chunk string) (string, error) {
		decoded, err := hex.DecodeString(chunk)
		if err != nil {
			return "", fmt.Errorf("decoding binary chunk: %w", err)
		}
		r.pendingResult = append(r.pendingResult, decoded...)
		return "", nil
	}); err != nil {
		return fmt.Errorf("registering __qjs_bt_recv: %w", err)
	}
	return nil
}

func (r *Runtime) writeBinaryFallback(globalName string, data []byte) error {
	r.pendingBinary = data
	defer func() { r.pendingBinary = nil }()

	return r.Eval(fmt.Sprintf(`(function() {
		var sz = %d;
		var view = new Uint8Array(sz);
		var off = 0;
		while (off < sz) {
			var h = __qjs_bt_chunk(off);
			for (var i = 0; i < h.length; i += 2) {
				view[off + i / 2] = parseInt(h.substr(i, 2), 16);
			}
			off += h.length / 2;
		}
		globalThis[%s] = view.buffer;
	})()`, len(data), core.Quote(globalName)))
}

func (r *Runtime) readBinaryFallback(globalName string) ([]byte, error) {
	r.pendingResult = make([]byte, 0)
	defer func() { r.pendingResult = nil }()

	if err := r.Eval(fmt.Sprintf(`(function() {
		var buf = globalThis[%[1]s];
		delete globalThis[%[1]s];
		var view = new Uint8Array(buf);
		var cs = %[2]d;
		var hx = '0123456789abcdef';
		for (var off = 0; off < view.length; off += cs) {
			var end = Math.min(off + cs, view.length);
			var parts = [];
			for (var i = off; i < end; i++) {
				parts.push(hx[view[i] >> 4] + hx[view[i] & 15]);
			}
			__qjs_bt_recv(parts.join(''));
		}
	})()`, core.Quote(globalName), btChunkSize)); err != nil {
		return nil, fmt.Errorf("reading binary from JS: %w", err)
	}
	return r.pendingResult, nil
}

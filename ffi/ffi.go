// C ABI for the transport core, built as a c-shared library:
//
//	go build -buildmode=c-shared -o librmwp2p.so ./ffi
//
// Handles are opaque uintptr values backed by cgo.Handle. Passing 0 is a
// defined failure (functions return an error status or do nothing);
// passing a freed or foreign handle is a contract violation and crashes
// loudly. Codec reads return -1 instead of panicking on short or
// malformed input.
package main

/*
#include <stdbool.h>
#include <stdlib.h>
#include <string.h>
#include "bridge.h"
*/
import "C"

import (
	"fmt"
	"runtime/cgo"
	"unsafe"

	"github.com/petervdpas/rmwp2p/internal/cdr"
	"github.com/petervdpas/rmwp2p/internal/node"
	"github.com/petervdpas/rmwp2p/internal/wire"
)

func main() {}

var cSerializationFormat = C.CString(wire.SerializationFormat)

//export rmw_p2p_get_serialization_format
func rmw_p2p_get_serialization_format() *C.char {
	return cSerializationFormat
}

// lookup resolves a non-zero handle to its Go value. An invalid handle
// makes cgo.Handle.Value panic, which is the intended loud failure.
func lookup[T any](h C.uintptr_t) (T, bool) {
	var zero T
	if h == 0 {
		return zero, false
	}
	v, ok := cgo.Handle(h).Value().(T)
	return v, ok
}

/* ── Node ───────────────────────────────────────────────────────────── */

//export rmw_p2p_node_new
func rmw_p2p_node_new(mdnsTag *C.char, listenPort C.int, identityKeyFile *C.char) C.uintptr_t {
	cfg := node.Config{}
	if mdnsTag != nil {
		cfg.MdnsTag = C.GoString(mdnsTag)
	}
	if listenPort > 0 {
		cfg.ListenAddrs = []string{fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", int(listenPort))}
	}
	if identityKeyFile != nil {
		cfg.IdentityKeyFile = C.GoString(identityKeyFile)
	}
	n, err := node.New(cfg)
	if err != nil {
		return 0
	}
	return C.uintptr_t(cgo.NewHandle(n))
}

//export rmw_p2p_node_trigger_shutdown
func rmw_p2p_node_trigger_shutdown(h C.uintptr_t) {
	if n, ok := lookup[*node.Node](h); ok {
		n.TriggerShutdown()
	}
}

// rmw_p2p_node_free shuts the node down and blocks until its event loop
// has drained, bounded by the drain timeout.
//
//export rmw_p2p_node_free
func rmw_p2p_node_free(h C.uintptr_t) {
	n, ok := lookup[*node.Node](h)
	if !ok {
		return
	}
	_ = n.Close()
	cgo.Handle(h).Delete()
}

/* ── Publisher ──────────────────────────────────────────────────────── */

//export rmw_p2p_publisher_new
func rmw_p2p_publisher_new(nodeHandle C.uintptr_t, topic *C.char) C.uintptr_t {
	n, ok := lookup[*node.Node](nodeHandle)
	if !ok || topic == nil {
		return 0
	}
	p := node.NewPublisher(n, C.GoString(topic))
	return C.uintptr_t(cgo.NewHandle(p))
}

//export rmw_p2p_publisher_free
func rmw_p2p_publisher_free(h C.uintptr_t) {
	if _, ok := lookup[*node.Publisher](h); ok {
		cgo.Handle(h).Delete()
	}
}

// rmw_p2p_publisher_publish frames the write cursor's bytes and enqueues
// them. Returns 0 on success, -1 on a null handle. The cursor remains
// owned by the caller.
//
//export rmw_p2p_publisher_publish
func rmw_p2p_publisher_publish(pubHandle, bufHandle C.uintptr_t) C.int {
	p, ok := lookup[*node.Publisher](pubHandle)
	if !ok {
		return -1
	}
	w, ok := lookup[*cdr.Writer](bufHandle)
	if !ok {
		return -1
	}
	p.Publish(w.Bytes())
	return 0
}

// rmw_p2p_publisher_get_gid copies the 16-byte GID into out and returns
// the number of bytes written.
//
//export rmw_p2p_publisher_get_gid
func rmw_p2p_publisher_get_gid(h C.uintptr_t, out *C.uint8_t) C.int {
	p, ok := lookup[*node.Publisher](h)
	if !ok || out == nil {
		return 0
	}
	gid := p.GID()
	C.memcpy(unsafe.Pointer(out), unsafe.Pointer(&gid[0]), C.size_t(len(gid)))
	return C.int(len(gid))
}

//export rmw_p2p_publisher_get_sequence_number
func rmw_p2p_publisher_get_sequence_number(h C.uintptr_t) C.uint64_t {
	p, ok := lookup[*node.Publisher](h)
	if !ok {
		return 0
	}
	return C.uint64_t(p.SequenceNumber())
}

/* ── Subscription ───────────────────────────────────────────────────── */

//export rmw_p2p_subscription_new
func rmw_p2p_subscription_new(nodeHandle C.uintptr_t, topic *C.char, opaque unsafe.Pointer, cb C.rmw_p2p_message_callback_t) C.uintptr_t {
	n, ok := lookup[*node.Node](nodeHandle)
	if !ok || topic == nil || cb == nil {
		return 0
	}
	deliver := func(data []byte) {
		var buf unsafe.Pointer
		if len(data) > 0 {
			buf = C.malloc(C.size_t(len(data)))
			C.memcpy(buf, unsafe.Pointer(&data[0]), C.size_t(len(data)))
		}
		C.rmw_p2p_invoke_callback(cb, opaque, (*C.uint8_t)(buf), C.size_t(len(data)))
	}
	s := node.NewSubscription(n, C.GoString(topic), deliver)
	return C.uintptr_t(cgo.NewHandle(s))
}

// rmw_p2p_subscription_free releases the handle. The topic binding stays
// active until the node shuts down; there is no unregister.
//
//export rmw_p2p_subscription_free
func rmw_p2p_subscription_free(h C.uintptr_t) {
	if _, ok := lookup[*node.Subscription](h); ok {
		cgo.Handle(h).Delete()
	}
}

//export rmw_p2p_subscription_get_gid
func rmw_p2p_subscription_get_gid(h C.uintptr_t, out *C.uint8_t) C.int {
	s, ok := lookup[*node.Subscription](h)
	if !ok || out == nil {
		return 0
	}
	gid := s.GID()
	C.memcpy(unsafe.Pointer(out), unsafe.Pointer(&gid[0]), C.size_t(len(gid)))
	return C.int(len(gid))
}

// rmw_p2p_free_buffer releases a payload buffer delivered to a message
// callback.
//
//export rmw_p2p_free_buffer
func rmw_p2p_free_buffer(p *C.uint8_t) {
	C.free(unsafe.Pointer(p))
}

/* ── CDR write cursor ───────────────────────────────────────────────── */

//export rmw_p2p_cdr_buffer_write_new
func rmw_p2p_cdr_buffer_write_new() C.uintptr_t {
	return C.uintptr_t(cgo.NewHandle(cdr.NewWriter()))
}

//export rmw_p2p_cdr_buffer_write_free
func rmw_p2p_cdr_buffer_write_free(h C.uintptr_t) {
	if _, ok := lookup[*cdr.Writer](h); ok {
		cgo.Handle(h).Delete()
	}
}

//export rmw_p2p_cdr_buffer_write_uint8
func rmw_p2p_cdr_buffer_write_uint8(h C.uintptr_t, v C.uint8_t) {
	if w, ok := lookup[*cdr.Writer](h); ok {
		w.WriteUint8(uint8(v))
	}
}

//export rmw_p2p_cdr_buffer_write_uint16
func rmw_p2p_cdr_buffer_write_uint16(h C.uintptr_t, v C.uint16_t) {
	if w, ok := lookup[*cdr.Writer](h); ok {
		w.WriteUint16(uint16(v))
	}
}

//export rmw_p2p_cdr_buffer_write_uint32
func rmw_p2p_cdr_buffer_write_uint32(h C.uintptr_t, v C.uint32_t) {
	if w, ok := lookup[*cdr.Writer](h); ok {
		w.WriteUint32(uint32(v))
	}
}

//export rmw_p2p_cdr_buffer_write_uint64
func rmw_p2p_cdr_buffer_write_uint64(h C.uintptr_t, v C.uint64_t) {
	if w, ok := lookup[*cdr.Writer](h); ok {
		w.WriteUint64(uint64(v))
	}
}

//export rmw_p2p_cdr_buffer_write_int8
func rmw_p2p_cdr_buffer_write_int8(h C.uintptr_t, v C.int8_t) {
	if w, ok := lookup[*cdr.Writer](h); ok {
		w.WriteInt8(int8(v))
	}
}

//export rmw_p2p_cdr_buffer_write_int16
func rmw_p2p_cdr_buffer_write_int16(h C.uintptr_t, v C.int16_t) {
	if w, ok := lookup[*cdr.Writer](h); ok {
		w.WriteInt16(int16(v))
	}
}

//export rmw_p2p_cdr_buffer_write_int32
func rmw_p2p_cdr_buffer_write_int32(h C.uintptr_t, v C.int32_t) {
	if w, ok := lookup[*cdr.Writer](h); ok {
		w.WriteInt32(int32(v))
	}
}

//export rmw_p2p_cdr_buffer_write_int64
func rmw_p2p_cdr_buffer_write_int64(h C.uintptr_t, v C.int64_t) {
	if w, ok := lookup[*cdr.Writer](h); ok {
		w.WriteInt64(int64(v))
	}
}

//export rmw_p2p_cdr_buffer_write_float32
func rmw_p2p_cdr_buffer_write_float32(h C.uintptr_t, v C.float) {
	if w, ok := lookup[*cdr.Writer](h); ok {
		w.WriteFloat32(float32(v))
	}
}

//export rmw_p2p_cdr_buffer_write_float64
func rmw_p2p_cdr_buffer_write_float64(h C.uintptr_t, v C.double) {
	if w, ok := lookup[*cdr.Writer](h); ok {
		w.WriteFloat64(float64(v))
	}
}

//export rmw_p2p_cdr_buffer_write_bool
func rmw_p2p_cdr_buffer_write_bool(h C.uintptr_t, v C.bool) {
	if w, ok := lookup[*cdr.Writer](h); ok {
		w.WriteBool(bool(v))
	}
}

//export rmw_p2p_cdr_buffer_write_char
func rmw_p2p_cdr_buffer_write_char(h C.uintptr_t, v C.char) {
	if w, ok := lookup[*cdr.Writer](h); ok {
		w.WriteChar(byte(v))
	}
}

//export rmw_p2p_cdr_buffer_write_char16
func rmw_p2p_cdr_buffer_write_char16(h C.uintptr_t, v C.uint16_t) {
	if w, ok := lookup[*cdr.Writer](h); ok {
		w.WriteChar16(uint16(v))
	}
}

//export rmw_p2p_cdr_buffer_write_string
func rmw_p2p_cdr_buffer_write_string(h C.uintptr_t, s *C.char) {
	w, ok := lookup[*cdr.Writer](h)
	if !ok {
		return
	}
	if s == nil {
		w.WriteString(nil)
		return
	}
	w.WriteString([]byte(C.GoString(s)))
}

//export rmw_p2p_cdr_buffer_write_u16string
func rmw_p2p_cdr_buffer_write_u16string(h C.uintptr_t, s *C.uint16_t, count C.size_t) {
	w, ok := lookup[*cdr.Writer](h)
	if !ok {
		return
	}
	if s == nil || count == 0 {
		w.WriteU16String(nil)
		return
	}
	units := unsafe.Slice((*uint16)(unsafe.Pointer(s)), int(count))
	w.WriteU16String(units)
}

/* ── CDR read cursor ────────────────────────────────────────────────── */

//export rmw_p2p_cdr_buffer_read_new
func rmw_p2p_cdr_buffer_read_new(data *C.uint8_t, length C.size_t) C.uintptr_t {
	var b []byte
	if data != nil && length > 0 {
		b = C.GoBytes(unsafe.Pointer(data), C.int(length))
	}
	return C.uintptr_t(cgo.NewHandle(cdr.NewReader(b)))
}

//export rmw_p2p_cdr_buffer_read_free
func rmw_p2p_cdr_buffer_read_free(h C.uintptr_t) {
	if _, ok := lookup[*cdr.Reader](h); ok {
		cgo.Handle(h).Delete()
	}
}

//export rmw_p2p_cdr_buffer_read_uint8
func rmw_p2p_cdr_buffer_read_uint8(h C.uintptr_t, out *C.uint8_t) C.int {
	r, ok := lookup[*cdr.Reader](h)
	if !ok || out == nil {
		return -1
	}
	v, err := r.ReadUint8()
	if err != nil {
		return -1
	}
	*out = C.uint8_t(v)
	return 0
}

//export rmw_p2p_cdr_buffer_read_uint16
func rmw_p2p_cdr_buffer_read_uint16(h C.uintptr_t, out *C.uint16_t) C.int {
	r, ok := lookup[*cdr.Reader](h)
	if !ok || out == nil {
		return -1
	}
	v, err := r.ReadUint16()
	if err != nil {
		return -1
	}
	*out = C.uint16_t(v)
	return 0
}

//export rmw_p2p_cdr_buffer_read_uint32
func rmw_p2p_cdr_buffer_read_uint32(h C.uintptr_t, out *C.uint32_t) C.int {
	r, ok := lookup[*cdr.Reader](h)
	if !ok || out == nil {
		return -1
	}
	v, err := r.ReadUint32()
	if err != nil {
		return -1
	}
	*out = C.uint32_t(v)
	return 0
}

//export rmw_p2p_cdr_buffer_read_uint64
func rmw_p2p_cdr_buffer_read_uint64(h C.uintptr_t, out *C.uint64_t) C.int {
	r, ok := lookup[*cdr.Reader](h)
	if !ok || out == nil {
		return -1
	}
	v, err := r.ReadUint64()
	if err != nil {
		return -1
	}
	*out = C.uint64_t(v)
	return 0
}

//export rmw_p2p_cdr_buffer_read_int8
func rmw_p2p_cdr_buffer_read_int8(h C.uintptr_t, out *C.int8_t) C.int {
	r, ok := lookup[*cdr.Reader](h)
	if !ok || out == nil {
		return -1
	}
	v, err := r.ReadInt8()
	if err != nil {
		return -1
	}
	*out = C.int8_t(v)
	return 0
}

//export rmw_p2p_cdr_buffer_read_int16
func rmw_p2p_cdr_buffer_read_int16(h C.uintptr_t, out *C.int16_t) C.int {
	r, ok := lookup[*cdr.Reader](h)
	if !ok || out == nil {
		return -1
	}
	v, err := r.ReadInt16()
	if err != nil {
		return -1
	}
	*out = C.int16_t(v)
	return 0
}

//export rmw_p2p_cdr_buffer_read_int32
func rmw_p2p_cdr_buffer_read_int32(h C.uintptr_t, out *C.int32_t) C.int {
	r, ok := lookup[*cdr.Reader](h)
	if !ok || out == nil {
		return -1
	}
	v, err := r.ReadInt32()
	if err != nil {
		return -1
	}
	*out = C.int32_t(v)
	return 0
}

//export rmw_p2p_cdr_buffer_read_int64
func rmw_p2p_cdr_buffer_read_int64(h C.uintptr_t, out *C.int64_t) C.int {
	r, ok := lookup[*cdr.Reader](h)
	if !ok || out == nil {
		return -1
	}
	v, err := r.ReadInt64()
	if err != nil {
		return -1
	}
	*out = C.int64_t(v)
	return 0
}

//export rmw_p2p_cdr_buffer_read_float32
func rmw_p2p_cdr_buffer_read_float32(h C.uintptr_t, out *C.float) C.int {
	r, ok := lookup[*cdr.Reader](h)
	if !ok || out == nil {
		return -1
	}
	v, err := r.ReadFloat32()
	if err != nil {
		return -1
	}
	*out = C.float(v)
	return 0
}

//export rmw_p2p_cdr_buffer_read_float64
func rmw_p2p_cdr_buffer_read_float64(h C.uintptr_t, out *C.double) C.int {
	r, ok := lookup[*cdr.Reader](h)
	if !ok || out == nil {
		return -1
	}
	v, err := r.ReadFloat64()
	if err != nil {
		return -1
	}
	*out = C.double(v)
	return 0
}

//export rmw_p2p_cdr_buffer_read_bool
func rmw_p2p_cdr_buffer_read_bool(h C.uintptr_t, out *C.bool) C.int {
	r, ok := lookup[*cdr.Reader](h)
	if !ok || out == nil {
		return -1
	}
	v, err := r.ReadBool()
	if err != nil {
		return -1
	}
	*out = C.bool(v)
	return 0
}

//export rmw_p2p_cdr_buffer_read_char
func rmw_p2p_cdr_buffer_read_char(h C.uintptr_t, out *C.char) C.int {
	r, ok := lookup[*cdr.Reader](h)
	if !ok || out == nil {
		return -1
	}
	v, err := r.ReadChar()
	if err != nil {
		return -1
	}
	*out = C.char(v)
	return 0
}

//export rmw_p2p_cdr_buffer_read_char16
func rmw_p2p_cdr_buffer_read_char16(h C.uintptr_t, out *C.uint16_t) C.int {
	r, ok := lookup[*cdr.Reader](h)
	if !ok || out == nil {
		return -1
	}
	v, err := r.ReadChar16()
	if err != nil {
		return -1
	}
	*out = C.uint16_t(v)
	return 0
}

// rmw_p2p_cdr_buffer_read_string returns a malloc'd, NUL-terminated copy
// of the string and its length (excluding the NUL). Release with
// rmw_p2p_cdr_buffer_free_string.
//
//export rmw_p2p_cdr_buffer_read_string
func rmw_p2p_cdr_buffer_read_string(h C.uintptr_t, out **C.char, length *C.size_t) C.int {
	r, ok := lookup[*cdr.Reader](h)
	if !ok || out == nil || length == nil {
		return -1
	}
	b, err := r.ReadString()
	if err != nil {
		return -1
	}
	*out = C.CString(string(b))
	*length = C.size_t(len(b))
	return 0
}

//export rmw_p2p_cdr_buffer_free_string
func rmw_p2p_cdr_buffer_free_string(s *C.char) {
	C.free(unsafe.Pointer(s))
}

// rmw_p2p_cdr_buffer_read_u16string returns a malloc'd array of UTF-16
// code units and its count (no terminator). Release with
// rmw_p2p_cdr_buffer_free_u16string. An empty string yields a NULL
// pointer with count 0.
//
//export rmw_p2p_cdr_buffer_read_u16string
func rmw_p2p_cdr_buffer_read_u16string(h C.uintptr_t, out **C.uint16_t, count *C.size_t) C.int {
	r, ok := lookup[*cdr.Reader](h)
	if !ok || out == nil || count == nil {
		return -1
	}
	units, err := r.ReadU16String()
	if err != nil {
		return -1
	}
	if len(units) == 0 {
		*out = nil
		*count = 0
		return 0
	}
	buf := C.malloc(C.size_t(len(units) * 2))
	dst := unsafe.Slice((*uint16)(buf), len(units))
	copy(dst, units)
	*out = (*C.uint16_t)(buf)
	*count = C.size_t(len(units))
	return 0
}

//export rmw_p2p_cdr_buffer_free_u16string
func rmw_p2p_cdr_buffer_free_u16string(s *C.uint16_t) {
	C.free(unsafe.Pointer(s))
}

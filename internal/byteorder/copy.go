// Package byteorder implements the width-tagged copy kernel that moves
// values between host memory and openSAFETY wire buffers, swapping byte
// order only where the host's native order requires it.
package byteorder

import (
	"encoding/binary"
	"errors"
)

// ErrUnsupportedType is returned when the caller names a type outside the
// fixed enumeration this kernel understands.
var ErrUnsupportedType = errors.New("byteorder: unsupported type")

// ErrLength is returned when the destination or source buffer is shorter
// than the width the named type requires.
var ErrLength = errors.New("byteorder: buffer too short for type")

// Type tags the width (and, implicitly, the byte-order sensitivity) of a
// value being copied between host memory and a wire buffer.
type Type uint8

const (
	Bool Type = iota
	I8
	U8
	I16
	U16
	I32
	U32
	F32
	I64
	U64
	F64
	// VisibleString, Domain and OctetString are always copied byte for
	// byte, regardless of host endianness - they carry no numeric value to
	// reorder.
	VisibleString
	Domain
	OctetString
)

// widths of the fixed-size numeric types; string/domain/octet types are
// variable-length and handled separately in Copy.
var widths = map[Type]int{
	Bool: 1,
	I8:   1,
	U8:   1,
	I16:  2,
	U16:  2,
	I32:  4,
	U32:  4,
	F32:  4,
	I64:  8,
	U64:  8,
	F64:  8,
}

// nativeIsLittleEndian is resolved once at init using the host's native
// byte order, without resorting to unsafe pointer tricks.
var nativeIsLittleEndian = func() bool {
	var buf [2]byte
	binary.NativeEndian.PutUint16(buf[:], 0x0102)
	return buf[0] == 0x02
}()

// Copy moves length bytes from src to dst, reordering bytes for typ's width
// if (and only if) the host is big-endian and typ names a multi-byte
// numeric type. Domain, visible-string and octet-string values are always
// copied verbatim. The kernel operates purely on byte slices: it makes no
// alignment assumptions about dst or src.
func Copy(dst, src []byte, length int, typ Type) error {
	switch typ {
	case VisibleString, Domain, OctetString:
		return copyVerbatim(dst, src, length)
	case Bool, I8, U8:
		return copyVerbatim(dst, src, length)
	case I16, U16, I32, U32, F32, I64, U64, F64:
		return copyWidth(dst, src, length, widths[typ])
	default:
		return ErrUnsupportedType
	}
}

func copyVerbatim(dst, src []byte, length int) error {
	if len(dst) < length || len(src) < length {
		return ErrLength
	}
	copy(dst[:length], src[:length])
	return nil
}

// copyWidth copies length bytes in units of width, reversing the byte
// order of each unit when the host is big-endian. length is expected to be
// a multiple of width (the caller copies one or more consecutive values of
// the same type); a short trailing remainder, if any, is copied verbatim.
func copyWidth(dst, src []byte, length, width int) error {
	if len(dst) < length || len(src) < length {
		return ErrLength
	}
	if nativeIsLittleEndian || width == 1 {
		copy(dst[:length], src[:length])
		return nil
	}
	n := length / width
	for i := 0; i < n; i++ {
		off := i * width
		for b := 0; b < width; b++ {
			dst[off+b] = src[off+width-1-b]
		}
	}
	rem := length - n*width
	if rem > 0 {
		copy(dst[n*width:length], src[n*width:length])
	}
	return nil
}

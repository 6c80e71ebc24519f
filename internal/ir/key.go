package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// DomainPK separates primary-key identities from any other hashed content.
// The version suffix allows a future change of the encoding.
const DomainPK = "logsync/pk/v1"

// Type tags for the structural key encoding.
const (
	tagNull byte = iota
	tagString
	tagInt
	tagBool
	tagArray
	tagObject
)

// PKKey is the structural identity of a primary-key value.
//
// Two pk values produce the same PKKey iff they are structurally equal:
// same types, same scalar values, same tuple arity and element order.
// Strings compare by their exact bytes; no Unicode normalization is applied.
// Object components compare independently of key order. PKKey is
// comparable and therefore usable as a map key.
type PKKey [sha256.Size]byte

// String returns the hex form of the key.
func (k PKKey) String() string {
	return hex.EncodeToString(k[:])
}

// KeyOf computes the PKKey of a primary-key value.
//
// The digest covers a type-tagged, length-prefixed encoding of every
// component, so no two distinct values share an encoding. KeyOf never fails;
// validating that a pk is usable (non-null) is the caller's job.
func KeyOf(pk IRValue) PKKey {
	h := sha256.New()
	h.Write([]byte(DomainPK))
	h.Write([]byte{0x00})

	var buf []byte
	buf = appendKey(buf, pk)
	h.Write(buf)

	var k PKKey
	copy(k[:], h.Sum(nil))
	return k
}

func appendKey(buf []byte, v IRValue) []byte {
	switch val := v.(type) {
	case IRString:
		buf = append(buf, tagString)
		return appendBytes(buf, string(val))
	case IRInt:
		buf = append(buf, tagInt)
		return binary.BigEndian.AppendUint64(buf, uint64(val))
	case IRBool:
		buf = append(buf, tagBool)
		if val {
			return append(buf, 1)
		}
		return append(buf, 0)
	case IRArray:
		buf = append(buf, tagArray)
		buf = binary.AppendUvarint(buf, uint64(len(val)))
		for _, elem := range val {
			buf = appendKey(buf, elem)
		}
		return buf
	case IRObject:
		buf = append(buf, tagObject)
		buf = binary.AppendUvarint(buf, uint64(len(val)))
		for _, k := range val.SortedKeys() {
			buf = appendBytes(buf, k)
			buf = appendKey(buf, val[k])
		}
		return buf
	default:
		return append(buf, tagNull)
	}
}

func appendBytes(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

// FormatPK renders a pk for human-facing messages, e.g. `"list-one"` or
// `["list-one",3]`.
func FormatPK(pk IRValue) string {
	data, err := MarshalIRValue(pk)
	if err != nil {
		return fmt.Sprintf("%v", pk)
	}
	return string(data)
}

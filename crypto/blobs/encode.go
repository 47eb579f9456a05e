package blobs

import (
	"errors"
	"fmt"

	goethkzg "github.com/crate-crypto/go-eth-kzg"
)

const (
	// FieldElements is the number of 32-byte field elements per blob.
	FieldElements = 4096
	// fieldElementSize is the serialized width of a single field element.
	fieldElementSize = 32
	// BytesPerBlob is the total size of an encoded blob.
	BytesPerBlob = FieldElements * fieldElementSize // 131072
	// bytesPerFieldElement is the usable payload width of one field
	// element: byte 0 must stay zero for BLS12-381 scalar validity.
	bytesPerFieldElement = fieldElementSize - 1 // 31
	// headerSize is the 4-byte length header prepended before striping.
	headerSize = 4
	// MaxPayloadSize is the largest payload encodeBlob accepts.
	MaxPayloadSize = FieldElements*bytesPerFieldElement - headerSize // 126,972
)

// ErrPayloadEmpty is returned by EncodeBlob for a zero-length payload.
var ErrPayloadEmpty = errors.New("payload is empty")

// ErrPayloadTooLarge is returned by EncodeBlob when the payload exceeds
// MaxPayloadSize.
var ErrPayloadTooLarge = fmt.Errorf("payload exceeds maximum size of %d bytes", MaxPayloadSize)

// ErrBlobSizeInvalid is returned by DecodeBlob when the input isn't exactly
// BytesPerBlob bytes.
var ErrBlobSizeInvalid = fmt.Errorf("blob must be exactly %d bytes", BytesPerBlob)

// EncodeBlob stripes a payload across 4096 BLS12-381 field elements,
// prefixed with a 4-byte big-endian length header (byte 3 reserved zero).
// The first byte of every field element is always zero, satisfying the
// scalar-field validity constraint.
func EncodeBlob(payload []byte) (*goethkzg.Blob, error) {
	n := len(payload)
	if n == 0 {
		return nil, ErrPayloadEmpty
	}
	if n > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	header := [headerSize]byte{
		byte(n >> 16), byte(n >> 8), byte(n),
		0,
	}

	var combined []byte
	combined = append(combined, header[:]...)
	combined = append(combined, payload...)

	var blob goethkzg.Blob
	for i := 0; i < FieldElements; i++ {
		start := i * bytesPerFieldElement
		elem := blob[i*fieldElementSize : (i+1)*fieldElementSize]
		elem[0] = 0
		if start >= len(combined) {
			continue // remainder stays zero-padded
		}
		end := start + bytesPerFieldElement
		if end > len(combined) {
			end = len(combined)
		}
		copy(elem[1:], combined[start:end])
	}
	return &blob, nil
}

// DecodeBlob is the inverse of EncodeBlob: it reads the 24-bit length from
// the first field element's trailing bytes, then reassembles exactly that
// many payload bytes from the remaining elements, skipping the always-zero
// leading byte of every element.
func DecodeBlob(blob *goethkzg.Blob) ([]byte, error) {
	if blob == nil || len(blob) != BytesPerBlob {
		return nil, ErrBlobSizeInvalid
	}

	length := int(blob[1])<<16 | int(blob[2])<<8 | int(blob[3])
	if length > MaxPayloadSize {
		return nil, fmt.Errorf("%w: decoded length %d exceeds maximum", ErrBlobSizeInvalid, length)
	}

	var combined []byte
	for i := 0; i < FieldElements; i++ {
		elem := blob[i*fieldElementSize : (i+1)*fieldElementSize]
		combined = append(combined, elem[1:]...)
		if len(combined) >= headerSize+length {
			break
		}
	}

	if len(combined) < headerSize+length {
		return nil, fmt.Errorf("%w: truncated payload", ErrBlobSizeInvalid)
	}
	return combined[headerSize : headerSize+length], nil
}

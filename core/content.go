package core

import (
	"bytes"
	"fmt"
)

// ContentType enumerates the payload kinds a link can carry.
type ContentType uint8

const (
	// ContentString is UTF-8 text.
	ContentString ContentType = iota + 1
	// ContentInt is a signed 64-bit integer.
	ContentInt
	// ContentFloat is a 64-bit float.
	ContentFloat
	// ContentBinary is an opaque byte sequence.
	ContentBinary
)

// String returns the lowercase name of the content type.
func (c ContentType) String() string {
	switch c {
	case ContentString:
		return "string"
	case ContentInt:
		return "int"
	case ContentFloat:
		return "float"
	case ContentBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Content is the typed payload of a link. Exactly one value field is
// meaningful, selected by Type.
type Content struct {
	Type   ContentType `cbor:"1,keyasint"`
	Int    int64       `cbor:"2,keyasint,omitempty"`
	Float  float64     `cbor:"3,keyasint,omitempty"`
	String string      `cbor:"4,keyasint,omitempty"`
	Binary []byte      `cbor:"5,keyasint,omitempty"`
}

// IntContent builds integer content.
func IntContent(v int64) Content { return Content{Type: ContentInt, Int: v} }

// FloatContent builds float content.
func FloatContent(v float64) Content { return Content{Type: ContentFloat, Float: v} }

// StringContent builds string content.
func StringContent(v string) Content { return Content{Type: ContentString, String: v} }

// BinaryContent builds binary content. The slice is copied.
func BinaryContent(v []byte) Content {
	cp := make([]byte, len(v))
	copy(cp, v)
	return Content{Type: ContentBinary, Binary: cp}
}

// Value returns the payload as an untyped value.
func (c Content) Value() any {
	switch c.Type {
	case ContentInt:
		return c.Int
	case ContentFloat:
		return c.Float
	case ContentString:
		return c.String
	case ContentBinary:
		return c.Binary
	default:
		return nil
	}
}

// AsInt returns the integer payload and whether the content is an integer.
func (c Content) AsInt() (int64, bool) { return c.Int, c.Type == ContentInt }

// AsString returns the string payload and whether the content is a string.
func (c Content) AsString() (string, bool) { return c.String, c.Type == ContentString }

// Equal reports whether both contents carry the same type and value.
func (c Content) Equal(o Content) bool {
	if c.Type != o.Type {
		return false
	}
	switch c.Type {
	case ContentInt:
		return c.Int == o.Int
	case ContentFloat:
		return c.Float == o.Float
	case ContentString:
		return c.String == o.String
	case ContentBinary:
		return bytes.Equal(c.Binary, o.Binary)
	default:
		return true
	}
}

// Validate returns ErrInvalidType when the content type is unknown.
func (c Content) Validate() error {
	if c.Type < ContentString || c.Type > ContentBinary {
		return fmt.Errorf("%w: unknown content type %d", ErrInvalidType, c.Type)
	}
	return nil
}

// Clone returns a deep copy of the content.
func (c Content) Clone() Content {
	if c.Binary != nil {
		c.Binary = append([]byte(nil), c.Binary...)
	}
	return c
}

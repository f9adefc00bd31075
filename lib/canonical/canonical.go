// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

// Package canonical provides the single deterministic byte
// serialization used for all hashing and durable storage of truth
// artifacts: UTF-8 JSON with lexicographically sorted object keys,
// compact separators, and one trailing newline. Encoding the same
// logical value always yields identical bytes, across processes and
// hosts; the encoder depends on no locale, map iteration order, or
// environment state.
//
// Floating-point values are rejected outright. Monetary and quantity
// values must travel as exact decimal text (string or json.Number);
// a float anywhere in the input is a producer bug, and accepting one
// would make repeated encodings of the same logical value diverge.
// Strings must be valid UTF-8; invalid byte sequences are rejected,
// never silently replaced.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"unicode/utf8"
)

// ErrFloatForbidden is wrapped by errors returned for any float32 or
// float64 encountered in the value being encoded.
var ErrFloatForbidden = errors.New("floating-point values are forbidden in canonical encoding")

// ErrInvalidUTF8 is wrapped by errors returned for any string in the
// value that is not valid UTF-8. Replacing bad bytes with U+FFFD would
// let distinct inputs collide on one canonical encoding.
var ErrInvalidUTF8 = errors.New("string is not valid UTF-8")

// numberPattern is the JSON number grammar. json.Number values are
// written verbatim, so they must be validated before being trusted as
// canonical output.
var numberPattern = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

// Encode returns the canonical byte serialization of v. The output is
// newline-terminated and is the only permitted input to artifact
// hashing and durable writes.
//
// Supported values: nil, bool, string, integer kinds, json.Number,
// types implementing encoding.TextMarshaler, []byte (base64), maps
// with string keys, slices, arrays, structs (encoding/json tag rules,
// fields sorted by encoded name), and pointers to any of these.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, reflect.ValueOf(v), "$"); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Hash returns the lowercase SHA-256 hex digest of the canonical
// encoding of v.
func Hash(v any) (string, error) {
	data, err := Encode(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func encodeValue(buf *bytes.Buffer, rv reflect.Value, path string) error {
	if !rv.IsValid() {
		buf.WriteString("null")
		return nil
	}

	// Nil pointers and interfaces before the marshaler checks: a typed
	// nil would otherwise satisfy TextMarshaler and panic inside it.
	if (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) && rv.IsNil() {
		buf.WriteString("null")
		return nil
	}

	// json.Number before the kind switch: it is a string kind but must
	// be written verbatim as a number, not quoted.
	if number, ok := rv.Interface().(json.Number); ok {
		if !numberPattern.MatchString(string(number)) {
			return fmt.Errorf("canonical: %s: invalid number literal %q", path, string(number))
		}
		buf.WriteString(string(number))
		return nil
	}

	if marshaler, ok := rv.Interface().(encoding.TextMarshaler); ok {
		text, err := marshaler.MarshalText()
		if err != nil {
			return fmt.Errorf("canonical: %s: marshaling text: %w", path, err)
		}
		return encodeString(buf, string(text), path)
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		return encodeValue(buf, rv.Elem(), path)

	case reflect.Bool:
		if rv.Bool() {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil

	case reflect.String:
		return encodeString(buf, rv.String(), path)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf.WriteString(strconv.FormatInt(rv.Int(), 10))
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		buf.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return nil

	case reflect.Float32, reflect.Float64:
		return fmt.Errorf("canonical: %s (value %v): %w", path, rv.Float(), ErrFloatForbidden)

	case reflect.Map:
		return encodeMap(buf, rv, path)

	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return encodeString(buf, base64.StdEncoding.EncodeToString(rv.Bytes()), path)
		}
		return encodeList(buf, rv, path)

	case reflect.Array:
		return encodeList(buf, rv, path)

	case reflect.Struct:
		return encodeStruct(buf, rv, path)

	default:
		return fmt.Errorf("canonical: %s: unsupported type %s", path, rv.Type())
	}
}

func encodeMap(buf *bytes.Buffer, rv reflect.Value, path string) error {
	if rv.Type().Key().Kind() != reflect.String {
		return fmt.Errorf("canonical: %s: map key type %s is not a string", path, rv.Type().Key())
	}
	if rv.IsNil() {
		buf.WriteString("null")
		return nil
	}

	keys := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		keys = append(keys, iter.Key().String())
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for index, key := range keys {
		if index > 0 {
			buf.WriteByte(',')
		}
		if err := encodeString(buf, key, path+"."+key); err != nil {
			return err
		}
		buf.WriteByte(':')
		value := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if err := encodeValue(buf, value, path+"."+key); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeList(buf *bytes.Buffer, rv reflect.Value, path string) error {
	buf.WriteByte('[')
	for index := 0; index < rv.Len(); index++ {
		if index > 0 {
			buf.WriteByte(',')
		}
		if err := encodeValue(buf, rv.Index(index), fmt.Sprintf("%s[%d]", path, index)); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

// structField is one encodable struct field, resolved through
// encoding/json tag rules.
type structField struct {
	name      string
	index     []int
	omitEmpty bool
}

func encodeStruct(buf *bytes.Buffer, rv reflect.Value, path string) error {
	fields := collectFields(rv.Type(), nil)
	sort.Slice(fields, func(i, j int) bool { return fields[i].name < fields[j].name })

	buf.WriteByte('{')
	written := 0
	for _, field := range fields {
		value := rv.FieldByIndex(field.index)
		if field.omitEmpty && isEmptyValue(value) {
			continue
		}
		if written > 0 {
			buf.WriteByte(',')
		}
		if err := encodeString(buf, field.name, path+"."+field.name); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := encodeValue(buf, value, path+"."+field.name); err != nil {
			return err
		}
		written++
	}
	buf.WriteByte('}')
	return nil
}

func collectFields(t reflect.Type, index []int) []structField {
	var fields []structField
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		fieldIndex := append(append([]int(nil), index...), i)

		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, options, _ := cutTag(tag)

		// Anonymous embedded structs without an explicit tag name are
		// flattened, matching encoding/json.
		if field.Anonymous && name == "" && field.Type.Kind() == reflect.Struct {
			fields = append(fields, collectFields(field.Type, fieldIndex)...)
			continue
		}

		if name == "" {
			name = field.Name
		}
		fields = append(fields, structField{
			name:      name,
			index:     fieldIndex,
			omitEmpty: options == "omitempty",
		})
	}
	return fields
}

func cutTag(tag string) (name, options string, found bool) {
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			return tag[:i], tag[i+1:], true
		}
	}
	return tag, "", false
}

func isEmptyValue(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String:
		return rv.Len() == 0
	case reflect.Bool:
		return !rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// encodeString writes s as a JSON string without HTML escaping. Only
// the characters the JSON grammar requires escaping are escaped, so
// the output does not depend on any encoder's safety defaults.
//
// Invalid UTF-8 is rejected rather than replaced: substituting U+FFFD
// would give two distinct byte strings the same canonical encoding,
// and therefore the same hash.
func encodeString(buf *bytes.Buffer, s, path string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("canonical: %s: %w", path, ErrInvalidUTF8)
	}
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
	return nil
}

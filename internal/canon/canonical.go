package canon

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// maxDepth bounds nesting so that self-referencing structures the visited
// set cannot see (e.g. values behind interfaces rebuilt on each access)
// still terminate.
const maxDepth = 512

// Error reports a value that has no canonical JSON form.
type Error struct {
	// Path locates the offending value, e.g. "$.payload.items[2]".
	Path string

	// Reason describes why the value was rejected.
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("canonicalize %s: %s", e.Path, e.Reason)
}

// IsError returns true if err is (or wraps) a canonicalization error.
func IsError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// Marshal produces RFC 8785 canonical JSON for v.
// CRITICAL: This is the ONLY serialization that may be signed or hashed.
//
// Accepted inputs are the JSON tree types (nil, bool, string, all Go
// integer and float kinds, *big.Int, json.Number, json.RawMessage, []any,
// map[string]any). Any other value is first rendered through its
// encoding/json form and then canonicalized, so structs with json tags
// work as expected.
func Marshal(v any) ([]byte, error) {
	e := &encoder{seen: make(map[uintptr]struct{})}
	if err := e.encode(v, "$", 0); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// MustMarshal is like Marshal but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustMarshal(v any) []byte {
	b, err := Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Equal reports whether a and b have identical canonical encodings.
func Equal(a, b any) (bool, error) {
	ab, err := Marshal(a)
	if err != nil {
		return false, err
	}
	bb, err := Marshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}

// Parse decodes JSON into the tree types Marshal accepts, keeping numbers
// as json.Number so integer precision survives a round trip.
func Parse(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}

type encoder struct {
	buf  bytes.Buffer
	seen map[uintptr]struct{}
}

func (e *encoder) encode(v any, path string, depth int) error {
	if depth > maxDepth {
		return &Error{Path: path, Reason: "nesting too deep (cyclic value?)"}
	}

	switch val := v.(type) {
	case nil:
		e.buf.WriteString("null")
	case bool:
		if val {
			e.buf.WriteString("true")
		} else {
			e.buf.WriteString("false")
		}
	case string:
		return e.writeString(val, path)
	case int:
		e.buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int8:
		e.buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int16:
		e.buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		e.buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		e.buf.WriteString(strconv.FormatInt(val, 10))
	case uint:
		e.buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint8:
		e.buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint16:
		e.buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint32:
		e.buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint64:
		e.buf.WriteString(strconv.FormatUint(val, 10))
	case float32:
		// Round-trip through the shortest float32 text so 0.1f renders as
		// 0.1 rather than its widened float64 expansion.
		f, _ := strconv.ParseFloat(strconv.FormatFloat(float64(val), 'g', -1, 32), 64)
		return e.writeFloat(f, path)
	case float64:
		return e.writeFloat(val, path)
	case json.Number:
		return e.writeNumber(val, path)
	case *big.Int:
		if val == nil {
			e.buf.WriteString("null")
		} else {
			e.buf.WriteString(val.String())
		}
	case json.RawMessage:
		parsed, err := Parse(val)
		if err != nil {
			return &Error{Path: path, Reason: fmt.Sprintf("invalid raw JSON: %v", err)}
		}
		return e.encode(parsed, path, depth)
	case []any:
		return e.writeArray(val, path, depth)
	case map[string]any:
		return e.writeObject(val, path, depth)
	default:
		return e.encodeReflected(v, path, depth)
	}
	return nil
}

// encodeReflected renders values outside the JSON tree through
// encoding/json and canonicalizes the result. Channels, funcs, complex
// numbers and pointer cycles fail inside json.Marshal.
func (e *encoder) encodeReflected(v any, path string, depth int) error {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return &Error{Path: path, Reason: fmt.Sprintf("unsupported type %T", v)}
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return &Error{Path: path, Reason: err.Error()}
	}
	parsed, err := Parse(raw)
	if err != nil {
		return &Error{Path: path, Reason: err.Error()}
	}
	return e.encode(parsed, path, depth+1)
}

func (e *encoder) enter(ptr uintptr, path string) error {
	if ptr == 0 {
		return nil
	}
	if _, ok := e.seen[ptr]; ok {
		return &Error{Path: path, Reason: "cyclic reference"}
	}
	e.seen[ptr] = struct{}{}
	return nil
}

func (e *encoder) leave(ptr uintptr) {
	delete(e.seen, ptr)
}

func (e *encoder) writeArray(arr []any, path string, depth int) error {
	var ptr uintptr
	if cap(arr) > 0 {
		ptr = uintptr(reflect.ValueOf(arr).UnsafePointer())
	}
	if err := e.enter(ptr, path); err != nil {
		return err
	}
	defer e.leave(ptr)

	e.buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.encode(elem, fmt.Sprintf("%s[%d]", path, i), depth+1); err != nil {
			return err
		}
	}
	e.buf.WriteByte(']')
	return nil
}

func (e *encoder) writeObject(obj map[string]any, path string, depth int) error {
	ptr := uintptr(reflect.ValueOf(obj).UnsafePointer())
	if err := e.enter(ptr, path); err != nil {
		return err
	}
	defer e.leave(ptr)

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, CompareKeys)

	e.buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.writeString(k, path); err != nil {
			return err
		}
		e.buf.WriteByte(':')
		if err := e.encode(obj[k], path+"."+k, depth+1); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')
	return nil
}

const hexDigits = "0123456789abcdef"

// writeString escapes per RFC 8785: quote, backslash and U+0000-U+001F
// only. U+2028/U+2029 and HTML characters pass through literally.
func (e *encoder) writeString(s, path string) error {
	if !utf8.ValidString(s) {
		return &Error{Path: path, Reason: fmt.Sprintf("invalid UTF-8 in string %q", s)}
	}

	e.buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			e.buf.WriteString(`\"`)
		case '\\':
			e.buf.WriteString(`\\`)
		case '\b':
			e.buf.WriteString(`\b`)
		case '\f':
			e.buf.WriteString(`\f`)
		case '\n':
			e.buf.WriteString(`\n`)
		case '\r':
			e.buf.WriteString(`\r`)
		case '\t':
			e.buf.WriteString(`\t`)
		default:
			if c < 0x20 {
				e.buf.WriteString(`\u00`)
				e.buf.WriteByte(hexDigits[c>>4])
				e.buf.WriteByte(hexDigits[c&0xF])
			} else {
				e.buf.WriteByte(c)
			}
		}
	}
	e.buf.WriteByte('"')
	return nil
}

func (e *encoder) writeFloat(f float64, path string) error {
	s, err := FormatFloat(f)
	if err != nil {
		return &Error{Path: path, Reason: err.Error()}
	}
	e.buf.WriteString(s)
	return nil
}

func (e *encoder) writeNumber(n json.Number, path string) error {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		// Integer literals are written exactly at any magnitude; big.Int
		// normalizes leading zeros and -0.
		i, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return &Error{Path: path, Reason: fmt.Sprintf("invalid number %q", s)}
		}
		e.buf.WriteString(i.String())
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return &Error{Path: path, Reason: fmt.Sprintf("invalid number %q", s)}
	}
	return e.writeFloat(f, path)
}

// FormatFloat renders f the way ECMAScript Number.prototype.toString does,
// which is what RFC 8785 mandates for numbers.
func FormatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("non-finite number %v", f)
	}
	if f == 0 {
		// Covers -0 as well.
		return "0", nil
	}

	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
		return mant + "e" + sign + digits, nil
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// CompareKeys orders strings by UTF-16 code units as RFC 8785 requires.
// CRITICAL: Go's native string comparison is UTF-8 byte order, which
// differs for characters above U+FFFF versus U+E000-U+FFFF.
func CompareKeys(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

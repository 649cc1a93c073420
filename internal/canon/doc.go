// Package canon produces RFC 8785 canonical JSON.
//
// Canonical bytes are the input to every signature and content hash in
// fiberclient. Two co-signers that build the same logical payload
// independently must arrive at byte-identical output, so the encoding is
// fixed:
//   - Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//   - No insignificant whitespace
//   - No HTML escaping; only quote, backslash and C0 controls are escaped
//   - Integers rendered exactly, floats in ECMAScript shortest form
//   - NaN, ±Inf, cycles, invalid UTF-8 and non-JSON types are errors
//
// canon imports nothing internal.
package canon

// Package codec implements the two text encodings carried inside Synel frames.
//
// # Numeric fields
//
// Fixed-width numeric fields are ordinary zero-padded decimal strings, except
// that the leading character may overflow past '9' into the following ASCII
// characters. The leading character is chr(0x30 + value/10^(width-1)) and the
// remaining width-1 characters are the decimal digits of value%10^(width-1):
//
//	EncodeNumber(100, 2)  == ":0"
//	EncodeNumber(200, 2)  == "D0"
//	EncodeNumber(7899, 3) == "~99"
//
// The largest encodable value for a width is therefore 79*10^(width-1) - 1
// (leading character '~').
//
// # Binary payloads
//
// Binary data (fingerprint templates) is sent as two characters per byte: the
// high nibble as chr(0x60 + n) and the low nibble as chr(0x30 + n).
package codec

// Package crc implements the 16-bit frame checksum of the Synel protocol.
//
// The register starts at zero and every input byte is folded in with a fixed
// shift/XOR recurrence. The final value is rendered as four characters, one per
// nibble from most to least significant, each as chr(0x30 + nibble):
//
//	String("")     == "0000"
//	String("1234") == "=789"
//	String("A4")   == "482:"
package crc

// Size is the number of characters of a rendered checksum.
const Size = 4

// update folds one byte into the register.
func update(reg uint16, b byte) uint16 {
	x := reg>>8 ^ uint16(b)
	x ^= x >> 4
	x &= 0xFF

	return reg<<8 ^ x<<12 ^ x<<5 ^ x
}

// Checksum returns the raw 16-bit register value for data.
func Checksum(data []byte) uint16 {
	var reg uint16
	for _, b := range data {
		reg = update(reg, b)
	}

	return reg
}

func checksumString(s string) uint16 {
	var reg uint16
	for i := 0; i < len(s); i++ {
		reg = update(reg, s[i])
	}

	return reg
}

// Render converts a register value into its four character form.
func Render(reg uint16) [Size]byte {
	return [Size]byte{
		byte(0x30 + reg>>12&0x0F),
		byte(0x30 + reg>>8&0x0F),
		byte(0x30 + reg>>4&0x0F),
		byte(0x30 + reg&0x0F),
	}
}

// Compute returns the four checksum characters for data.
func Compute(data []byte) [Size]byte {
	return Render(Checksum(data))
}

// String returns the checksum of s as a four character string.
func String(s string) string {
	r := Render(checksumString(s))
	return string(r[:])
}

// Append appends the four checksum characters of data to dst.
func Append(dst []byte, data []byte) []byte {
	r := Compute(data)
	return append(dst, r[:]...)
}

// Verify reports whether sum is the checksum of data. It is false for any
// sum whose length is not Size.
func Verify(data []byte, sum []byte) bool {
	if len(sum) != Size {
		return false
	}
	r := Compute(data)

	return r[0] == sum[0] && r[1] == sum[1] && r[2] == sum[2] && r[3] == sum[3]
}

// VerifyString is Verify for frame text.
func VerifyString(data string, sum string) bool {
	if len(sum) != Size {
		return false
	}
	r := Render(checksumString(data))

	return string(r[:]) == sum
}

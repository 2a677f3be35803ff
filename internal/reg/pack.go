package reg

import "encoding/binary"

// Pack16 packs two 16-bit slot values into one register word:
// lo in bits 0-15, hi in bits 16-31.
func Pack16(lo, hi uint16) uint32 {
	return uint32(lo) | uint32(hi)<<16
}

// Unpack16 is the inverse of Pack16.
func Unpack16(v uint32) (lo, hi uint16) {
	return uint16(v), uint16(v >> 16)
}

// Dup16 places v in both slots of a word.
func Dup16(v uint16) uint32 {
	return Pack16(v, v)
}

// PutWords encodes words as consecutive little-endian registers.
func PutWords(words ...uint32) []byte {
	b := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[4*i:], w)
	}
	return b
}

// Words decodes consecutive little-endian registers. Trailing bytes that do
// not fill a word are ignored.
func Words(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[4*i:])
	}
	return out
}

// Version is the layout of the TcVersion register:
// minor in bits 0-7, major in 8-11, build in 12-14, the extended-version
// flag in bit 15, chip in 16-23 and protocol in 24-27.
type Version struct {
	Minor    uint8
	Major    uint8
	Build    uint8
	Ext      bool
	Chip     uint8
	Protocol uint8
}

// ParseVersion decodes a TcVersion word.
func ParseVersion(v uint32) Version {
	return Version{
		Minor:    uint8(v),
		Major:    uint8(v>>8) & 0x0F,
		Build:    uint8(v>>12) & 0x07,
		Ext:      v&(1<<15) != 0,
		Chip:     uint8(v >> 16),
		Protocol: uint8(v>>24) & 0x0F,
	}
}

// Raw re-encodes the version word.
func (v Version) Raw() uint32 {
	r := uint32(v.Minor) | uint32(v.Major&0x0F)<<8 | uint32(v.Build&0x07)<<12
	if v.Ext {
		r |= 1 << 15
	}
	return r | uint32(v.Chip)<<16 | uint32(v.Protocol&0x0F)<<24
}

// ExtMajor and ExtMinor split the packed 16-bit extended version.
func ExtMajor(ext uint32) uint32 { return ext >> 8 }
func ExtMinor(ext uint32) uint32 { return ext & 0xFF }

// CString trims a fixed-length NUL-padded ASCII field.
func CString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

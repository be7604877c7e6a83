// Package keycodec packs the fixed-width integer keys and values the
// graph schema uses into the byte slices the KV façade stores, the way
// the reference implementation packs them with struct.pack('=Q', ...):
// native-width, unsigned, fixed at 8 bytes per field, no padding.
package keycodec

import "encoding/binary"

// Q packs a single uint64.
func Q(a uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, a)
	return b
}

// QQ packs two uint64s back to back.
func QQ(a, b uint64) []byte {
	out := make([]byte, 16)
	binary.LittleEndian.PutUint64(out[0:8], a)
	binary.LittleEndian.PutUint64(out[8:16], b)
	return out
}

// QQQ packs three uint64s back to back.
func QQQ(a, b, c uint64) []byte {
	out := make([]byte, 24)
	binary.LittleEndian.PutUint64(out[0:8], a)
	binary.LittleEndian.PutUint64(out[8:16], b)
	binary.LittleEndian.PutUint64(out[16:24], c)
	return out
}

// QQQQ packs four uint64s back to back.
func QQQQ(a, b, c, d uint64) []byte {
	out := make([]byte, 32)
	binary.LittleEndian.PutUint64(out[0:8], a)
	binary.LittleEndian.PutUint64(out[8:16], b)
	binary.LittleEndian.PutUint64(out[16:24], c)
	binary.LittleEndian.PutUint64(out[24:32], d)
	return out
}

// UnQ unpacks a single uint64. Panics (via slice bounds) on a short
// buffer; the KV layer does not check value lengths, so callers rely on
// reading keys/values this package packed.
func UnQ(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b[0:8])
}

// UnQQ unpacks two uint64s.
func UnQQ(b []byte) (uint64, uint64) {
	return binary.LittleEndian.Uint64(b[0:8]), binary.LittleEndian.Uint64(b[8:16])
}

// UnQQQ unpacks three uint64s.
func UnQQQ(b []byte) (uint64, uint64, uint64) {
	return binary.LittleEndian.Uint64(b[0:8]), binary.LittleEndian.Uint64(b[8:16]), binary.LittleEndian.Uint64(b[16:24])
}

// UnQQQQ unpacks four uint64s.
func UnQQQQ(b []byte) (uint64, uint64, uint64, uint64) {
	return binary.LittleEndian.Uint64(b[0:8]), binary.LittleEndian.Uint64(b[8:16]),
		binary.LittleEndian.Uint64(b[16:24]), binary.LittleEndian.Uint64(b[24:32])
}

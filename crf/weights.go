package crf

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/VictoriaMetrics/fastcache"
)

// Weight keys. Labels are stored as indices so renaming a label in the
// config does not invalidate a snapshot, but reordering does.
const (
	emissionPrefix   = "U|"
	transitionPrefix = "T|"
	startPrefix      = "S|"
	endPrefix        = "E|"
)

func emissionKey(dst []byte, feature string, label int) []byte {
	dst = append(dst[:0], emissionPrefix...)
	dst = append(dst, feature...)
	dst = append(dst, '|')
	return strconv.AppendInt(dst, int64(label), 10)
}

func transitionKey(dst []byte, prev, cur int) []byte {
	dst = append(dst[:0], transitionPrefix...)
	dst = strconv.AppendInt(dst, int64(prev), 10)
	dst = append(dst, '|')
	return strconv.AppendInt(dst, int64(cur), 10)
}

func startKey(dst []byte, label int) []byte {
	return strconv.AppendInt(append(dst[:0], startPrefix...), int64(label), 10)
}

func endKey(dst []byte, label int) []byte {
	return strconv.AppendInt(append(dst[:0], endPrefix...), int64(label), 10)
}

// SetCache stores value under keybytes as little-endian IEEE-754 bits.
func SetCache(keybytes []byte, value float64, cache *fastcache.Cache) {
	var bits [8]byte
	binary.LittleEndian.PutUint64(bits[:], math.Float64bits(value))
	cache.Set(keybytes, bits[:])
}

// GetCache returns the weight under keybytes, or 0 if it is absent or
// malformed. buf is scratch space and may be nil.
func GetCache(buf, keybytes []byte, cache *fastcache.Cache) float64 {
	bits, exists := cache.HasGet(buf[:0], keybytes)
	if !exists || len(bits) != 8 {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(bits))
}

package bson

import (
	"bytes"
	"math"
)

// typeRank implements the fixed total ordering across kinds:
// MinKey < Null < Number < String < Document < Array < Binary < ObjectId
// < Bool < Date/Timestamp < Regex < MaxKey. Int32, Int64, and Double all
// share the Number rank and compare by widened value.
func typeRank(k Kind) int {
	switch k {
	case KindMinKey:
		return 0
	case KindNull:
		return 1
	case KindInt32, KindInt64, KindDouble:
		return 2
	case KindString:
		return 3
	case KindDocument:
		return 4
	case KindArray:
		return 5
	case KindBinary:
		return 6
	case KindObjectID:
		return 7
	case KindBool:
		return 8
	case KindDateTime, KindTimestamp:
		return 9
	case KindRegex:
		return 10
	case KindMaxKey:
		return 11
	default:
		return 12
	}
}

// Compare orders two values per the BSON-like total ordering described by
// typeRank, falling back to a kind-specific comparison within a rank.
func Compare(a, b Value) int {
	ra, rb := typeRank(a.Kind()), typeRank(b.Kind())
	if ra != rb {
		return cmpInt(ra, rb)
	}

	switch ra {
	case 0, 1, 11: // MinKey, Null, MaxKey: all instances compare equal
		return 0
	case 2:
		fa, _ := a.AsFloat64()
		fb, _ := b.AsFloat64()
		return cmpFloat64(fa, fb)
	case 3:
		as, _ := a.AsString()
		bs, _ := b.AsString()
		return bytes.Compare([]byte(as), []byte(bs))
	case 4:
		return compareDocuments(a, b)
	case 5:
		return compareArrays(a, b)
	case 6:
		ab, _ := a.AsBinary()
		bb, _ := b.AsBinary()
		return bytes.Compare(ab, bb)
	case 7:
		aid, _ := a.AsObjectID()
		bid, _ := b.AsObjectID()
		return bytes.Compare(aid[:], bid[:])
	case 8:
		ab, _ := a.AsBool()
		bb, _ := b.AsBool()
		if ab == bb {
			return 0
		}
		if !ab {
			return -1
		}
		return 1
	case 9:
		return compareTemporal(a, b)
	case 10:
		ar, _ := a.AsRegex()
		br, _ := b.AsRegex()
		if c := cmpString(ar.Pattern, br.Pattern); c != 0 {
			return c
		}
		return cmpString(ar.Options, br.Options)
	default:
		return 0
	}
}

func compareTemporal(a, b Value) int {
	ak, bk := kindTemporalRank(a.Kind()), kindTemporalRank(b.Kind())
	if ak != bk {
		return cmpInt(ak, bk)
	}
	av, bv := temporalValue(a), temporalValue(b)
	return cmpInt64(av, bv)
}

func kindTemporalRank(k Kind) int {
	if k == KindDateTime {
		return 0
	}
	return 1 // Timestamp
}

func temporalValue(v Value) int64 {
	if ms, ok := v.AsDateTimeMS(); ok {
		return ms
	}
	ts, _ := v.AsTimestamp()
	return int64(ts.Seconds)<<32 | int64(ts.Ordinal)
}

func compareDocuments(a, b Value) int {
	da, _ := a.AsDocument()
	db, _ := b.AsDocument()
	ak, bk := da.Keys(), db.Keys()
	n := len(ak)
	if len(bk) < n {
		n = len(bk)
	}
	for i := 0; i < n; i++ {
		if c := cmpString(ak[i], bk[i]); c != 0 {
			return c
		}
		av, _ := da.Get(ak[i])
		bv, _ := db.Get(bk[i])
		if c := Compare(av, bv); c != 0 {
			return c
		}
	}
	return cmpInt(len(ak), len(bk))
}

func compareArrays(a, b Value) int {
	aa, _ := a.AsArray()
	ba, _ := b.AsArray()
	n := len(aa)
	if len(ba) < n {
		n = len(ba)
	}
	for i := 0; i < n; i++ {
		if c := Compare(aa[i], ba[i]); c != 0 {
			return c
		}
	}
	return cmpInt(len(aa), len(ba))
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpString(a, b string) int {
	return bytes.Compare([]byte(a), []byte(b))
}

// EncodeSortKey produces a memcomparable byte encoding of v: a type-rank
// prefix byte, followed by a type-specific encoding chosen so that
// unsigned lexicographic byte comparison of two encoded keys matches
// Compare's ordering. This is the building block index.Manager uses to
// construct B+Tree keys from document field values.
func EncodeSortKey(v Value) []byte {
	out := []byte{byte(typeRank(v.Kind()))}
	switch typeRank(v.Kind()) {
	case 2:
		f, _ := v.AsFloat64()
		out = append(out, encodeFloatKey(f)...)
	case 3:
		s, _ := v.AsString()
		out = append(out, encodeStringKey(s)...)
	case 4:
		d, _ := v.AsDocument()
		for _, k := range d.Keys() {
			fv, _ := d.Get(k)
			out = append(out, 0x01)
			out = append(out, encodeStringKey(k)...)
			out = append(out, EncodeSortKey(fv)...)
		}
		out = append(out, 0x00)
	case 5:
		items, _ := v.AsArray()
		for _, item := range items {
			out = append(out, 0x01)
			out = append(out, EncodeSortKey(item)...)
		}
		out = append(out, 0x00)
	case 6:
		b, _ := v.AsBinary()
		out = append(out, encodeStringKey(string(b))...)
	case 7:
		id, _ := v.AsObjectID()
		out = append(out, id[:]...)
	case 8:
		b, _ := v.AsBool()
		if b {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	case 9:
		out = append(out, byte(kindTemporalRank(v.Kind())))
		out = append(out, encodeInt64Key(temporalValue(v))...)
	case 10:
		re, _ := v.AsRegex()
		out = append(out, encodeStringKey(re.Pattern)...)
		out = append(out, encodeStringKey(re.Options)...)
	}
	return out
}

// encodeFloatKey sign-flips an IEEE-754 float so big-endian byte order
// matches numeric order: for non-negative numbers it flips the sign bit;
// for negative numbers it flips every bit, which reverses their
// (otherwise backwards) magnitude ordering too.
func encodeFloatKey(f float64) []byte {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(bits)
		bits >>= 8
	}
	return buf
}

// encodeInt64Key flips the sign bit of a two's-complement int64 so
// unsigned big-endian byte order matches signed numeric order, without
// the precision loss a float64 round-trip would risk for the combined
// seconds/ordinal values Timestamp packs into 64 bits.
func encodeInt64Key(n int64) []byte {
	u := uint64(n) ^ (1 << 63)
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(u)
		u >>= 8
	}
	return buf
}

// encodeStringKey escapes embedded 0x00 bytes as 0x00 0xFF and terminates
// with 0x00 0x00, so one encoded string is never a byte-prefix of another
// and lexicographic comparison matches Go string comparison.
func encodeStringKey(s string) []byte {
	out := make([]byte, 0, len(s)+2)
	for i := 0; i < len(s); i++ {
		if s[i] == 0x00 {
			out = append(out, 0x00, 0xFF)
		} else {
			out = append(out, s[i])
		}
	}
	out = append(out, 0x00, 0x00)
	return out
}

package bson

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Wire kind tags. Distinct from Kind's iota values so the on-disk format
// stays stable even if Kind's declaration order ever changes.
const (
	tagMinKey    byte = 0
	tagNull      byte = 1
	tagInt32     byte = 2
	tagInt64     byte = 3
	tagDouble    byte = 4
	tagString    byte = 5
	tagDocument  byte = 6
	tagArray     byte = 7
	tagBinary    byte = 8
	tagObjectID  byte = 9
	tagBool      byte = 10
	tagDateTime  byte = 11
	tagTimestamp byte = 12
	tagRegex     byte = 13
	tagMaxKey    byte = 14
)

func kindToTag(k Kind) (byte, error) {
	switch k {
	case KindMinKey:
		return tagMinKey, nil
	case KindNull:
		return tagNull, nil
	case KindInt32:
		return tagInt32, nil
	case KindInt64:
		return tagInt64, nil
	case KindDouble:
		return tagDouble, nil
	case KindString:
		return tagString, nil
	case KindDocument:
		return tagDocument, nil
	case KindArray:
		return tagArray, nil
	case KindBinary:
		return tagBinary, nil
	case KindObjectID:
		return tagObjectID, nil
	case KindBool:
		return tagBool, nil
	case KindDateTime:
		return tagDateTime, nil
	case KindTimestamp:
		return tagTimestamp, nil
	case KindRegex:
		return tagRegex, nil
	case KindMaxKey:
		return tagMaxKey, nil
	default:
		return 0, fmt.Errorf("bson: unknown kind %v", k)
	}
}

// Encode serializes a document deterministically: field count, then for
// each field its key-length-prefixed name, a one-byte kind tag, and the
// kind's payload. Field order follows the document's own insertion order.
func Encode(doc *Document) ([]byte, error) {
	buf := make([]byte, 0, 256)
	var tmp [8]byte

	binary.LittleEndian.PutUint16(tmp[:2], uint16(doc.Len()))
	buf = append(buf, tmp[:2]...)

	for _, key := range doc.Keys() {
		v, _ := doc.Get(key)
		keyBytes := []byte(key)
		if len(keyBytes) > math.MaxUint16 {
			return nil, fmt.Errorf("bson: field name too long: %s", key)
		}
		binary.LittleEndian.PutUint16(tmp[:2], uint16(len(keyBytes)))
		buf = append(buf, tmp[:2]...)
		buf = append(buf, keyBytes...)

		tag, err := kindToTag(v.Kind())
		if err != nil {
			return nil, err
		}
		buf = append(buf, tag)

		payload, err := encodeValue(v)
		if err != nil {
			return nil, err
		}
		buf = append(buf, payload...)
	}
	return buf, nil
}

// Decode deserializes a document previously produced by Encode.
func Decode(data []byte) (*Document, error) {
	doc, _, err := decodeDocument(data)
	return doc, err
}

func decodeDocument(data []byte) (*Document, int, error) {
	if len(data) < 2 {
		return nil, 0, fmt.Errorf("bson: %w", ErrTruncated)
	}
	doc := NewDocument()
	offset := 0
	count := int(binary.LittleEndian.Uint16(data[offset:]))
	offset += 2

	for i := 0; i < count; i++ {
		if offset+2 > len(data) {
			return nil, 0, fmt.Errorf("bson: %w: key length", ErrTruncated)
		}
		keyLen := int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
		if offset+keyLen > len(data) {
			return nil, 0, fmt.Errorf("bson: %w: key", ErrTruncated)
		}
		key := string(data[offset : offset+keyLen])
		offset += keyLen

		if offset >= len(data) {
			return nil, 0, fmt.Errorf("bson: %w: tag", ErrTruncated)
		}
		tag := data[offset]
		offset++

		v, n, err := decodeValue(tag, data[offset:])
		if err != nil {
			return nil, 0, err
		}
		offset += n
		doc.Set(key, v)
	}
	return doc, offset, nil
}

func encodeValue(v Value) ([]byte, error) {
	switch v.Kind() {
	case KindMinKey, KindMaxKey, KindNull:
		return nil, nil
	case KindBool:
		b, _ := v.AsBool()
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case KindInt32:
		n, _ := v.AsInt32()
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(n))
		return buf, nil
	case KindInt64:
		n, _ := v.AsInt64()
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(n))
		return buf, nil
	case KindDouble:
		f, _ := v.AsDouble()
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
		return buf, nil
	case KindString:
		s, _ := v.AsString()
		buf := make([]byte, 4+len(s))
		binary.LittleEndian.PutUint32(buf, uint32(len(s)))
		copy(buf[4:], s)
		return buf, nil
	case KindBinary:
		b, _ := v.AsBinary()
		buf := make([]byte, 4+len(b))
		binary.LittleEndian.PutUint32(buf, uint32(len(b)))
		copy(buf[4:], b)
		return buf, nil
	case KindObjectID:
		id, _ := v.AsObjectID()
		return append([]byte(nil), id[:]...), nil
	case KindDateTime:
		ms, _ := v.AsDateTimeMS()
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(ms))
		return buf, nil
	case KindTimestamp:
		ts, _ := v.AsTimestamp()
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint32(buf[0:4], ts.Seconds)
		binary.LittleEndian.PutUint32(buf[4:8], ts.Ordinal)
		return buf, nil
	case KindRegex:
		re, _ := v.AsRegex()
		pat := []byte(re.Pattern)
		opt := []byte(re.Options)
		buf := make([]byte, 2+len(pat)+2+len(opt))
		binary.LittleEndian.PutUint16(buf[0:2], uint16(len(pat)))
		copy(buf[2:2+len(pat)], pat)
		off := 2 + len(pat)
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(opt)))
		copy(buf[off+2:], opt)
		return buf, nil
	case KindDocument:
		sub, _ := v.AsDocument()
		encoded, err := Encode(sub)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 4+len(encoded))
		binary.LittleEndian.PutUint32(buf, uint32(len(encoded)))
		copy(buf[4:], encoded)
		return buf, nil
	case KindArray:
		items, _ := v.AsArray()
		var body []byte
		var tmp [2]byte
		binary.LittleEndian.PutUint16(tmp[:], uint16(len(items)))
		body = append(body, tmp[:]...)
		for _, item := range items {
			tag, err := kindToTag(item.Kind())
			if err != nil {
				return nil, err
			}
			body = append(body, tag)
			payload, err := encodeValue(item)
			if err != nil {
				return nil, err
			}
			body = append(body, payload...)
		}
		buf := make([]byte, 4+len(body))
		binary.LittleEndian.PutUint32(buf, uint32(len(body)))
		copy(buf[4:], body)
		return buf, nil
	default:
		return nil, fmt.Errorf("bson: unencodable kind %v", v.Kind())
	}
}

func decodeValue(tag byte, data []byte) (Value, int, error) {
	switch tag {
	case tagMinKey:
		return MinKey(), 0, nil
	case tagMaxKey:
		return MaxKey(), 0, nil
	case tagNull:
		return Null(), 0, nil
	case tagBool:
		if len(data) < 1 {
			return Value{}, 0, fmt.Errorf("bson: %w: bool", ErrTruncated)
		}
		return Bool(data[0] != 0), 1, nil
	case tagInt32:
		if len(data) < 4 {
			return Value{}, 0, fmt.Errorf("bson: %w: int32", ErrTruncated)
		}
		return Int32(int32(binary.LittleEndian.Uint32(data))), 4, nil
	case tagInt64:
		if len(data) < 8 {
			return Value{}, 0, fmt.Errorf("bson: %w: int64", ErrTruncated)
		}
		return Int64(int64(binary.LittleEndian.Uint64(data))), 8, nil
	case tagDouble:
		if len(data) < 8 {
			return Value{}, 0, fmt.Errorf("bson: %w: double", ErrTruncated)
		}
		return Double(math.Float64frombits(binary.LittleEndian.Uint64(data))), 8, nil
	case tagString:
		if len(data) < 4 {
			return Value{}, 0, fmt.Errorf("bson: %w: string length", ErrTruncated)
		}
		n := int(binary.LittleEndian.Uint32(data))
		if len(data) < 4+n {
			return Value{}, 0, fmt.Errorf("bson: %w: string", ErrTruncated)
		}
		return String(string(data[4 : 4+n])), 4 + n, nil
	case tagBinary:
		if len(data) < 4 {
			return Value{}, 0, fmt.Errorf("bson: %w: binary length", ErrTruncated)
		}
		n := int(binary.LittleEndian.Uint32(data))
		if len(data) < 4+n {
			return Value{}, 0, fmt.Errorf("bson: %w: binary", ErrTruncated)
		}
		return Binary(data[4 : 4+n]), 4 + n, nil
	case tagObjectID:
		if len(data) < 12 {
			return Value{}, 0, fmt.Errorf("bson: %w: object id", ErrTruncated)
		}
		var id ObjectID
		copy(id[:], data[:12])
		return ObjectIDValue(id), 12, nil
	case tagDateTime:
		if len(data) < 8 {
			return Value{}, 0, fmt.Errorf("bson: %w: date time", ErrTruncated)
		}
		return DateTimeMS(int64(binary.LittleEndian.Uint64(data))), 8, nil
	case tagTimestamp:
		if len(data) < 8 {
			return Value{}, 0, fmt.Errorf("bson: %w: timestamp", ErrTruncated)
		}
		return TimestampValue(Timestamp{
			Seconds: binary.LittleEndian.Uint32(data[0:4]),
			Ordinal: binary.LittleEndian.Uint32(data[4:8]),
		}), 8, nil
	case tagRegex:
		if len(data) < 2 {
			return Value{}, 0, fmt.Errorf("bson: %w: regex pattern length", ErrTruncated)
		}
		patLen := int(binary.LittleEndian.Uint16(data[0:2]))
		off := 2
		if len(data) < off+patLen+2 {
			return Value{}, 0, fmt.Errorf("bson: %w: regex pattern", ErrTruncated)
		}
		pattern := string(data[off : off+patLen])
		off += patLen
		optLen := int(binary.LittleEndian.Uint16(data[off : off+2]))
		off += 2
		if len(data) < off+optLen {
			return Value{}, 0, fmt.Errorf("bson: %w: regex options", ErrTruncated)
		}
		options := string(data[off : off+optLen])
		off += optLen
		return RegexValue(pattern, options), off, nil
	case tagDocument:
		if len(data) < 4 {
			return Value{}, 0, fmt.Errorf("bson: %w: document length", ErrTruncated)
		}
		n := int(binary.LittleEndian.Uint32(data))
		if len(data) < 4+n {
			return Value{}, 0, fmt.Errorf("bson: %w: document", ErrTruncated)
		}
		sub, _, err := decodeDocument(data[4 : 4+n])
		if err != nil {
			return Value{}, 0, err
		}
		return DocumentValue(sub), 4 + n, nil
	case tagArray:
		if len(data) < 4 {
			return Value{}, 0, fmt.Errorf("bson: %w: array length", ErrTruncated)
		}
		n := int(binary.LittleEndian.Uint32(data))
		if len(data) < 4+n {
			return Value{}, 0, fmt.Errorf("bson: %w: array", ErrTruncated)
		}
		body := data[4 : 4+n]
		if len(body) < 2 {
			return ArrayValue(nil), 4 + n, nil
		}
		count := int(binary.LittleEndian.Uint16(body[0:2]))
		off := 2
		items := make([]Value, 0, count)
		for i := 0; i < count; i++ {
			if off >= len(body) {
				return Value{}, 0, fmt.Errorf("bson: %w: array element tag", ErrTruncated)
			}
			elemTag := body[off]
			off++
			v, consumed, err := decodeValue(elemTag, body[off:])
			if err != nil {
				return Value{}, 0, err
			}
			off += consumed
			items = append(items, v)
		}
		return ArrayValue(items), 4 + n, nil
	default:
		return Value{}, 0, fmt.Errorf("bson: unknown wire tag %d", tag)
	}
}

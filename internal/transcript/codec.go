package transcript

import (
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
)

// Record encoding: uvarint headerLen | header | payload | crc32c(header|payload).
// The header carries the 8-byte big-endian startMs so retention and filters
// can read the fragment's time without decoding the JSON payload.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// EncodeFragment frames a stored fragment for the durable store.
func EncodeFragment(f StoredFragment) ([]byte, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	var header [8]byte
	binary.BigEndian.PutUint64(header[:], uint64(f.StartMs))

	out := make([]byte, 0, 10+len(header)+len(payload)+4)
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(header)))
	out = append(out, tmp[:n]...)
	out = append(out, header[:]...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, header[:])
	crc = crc32.Update(crc, castagnoli, payload)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	out = append(out, crcb[:]...)
	return out, nil
}

// DecodeFragment parses a framed record, verifying the checksum.
func DecodeFragment(b []byte) (StoredFragment, bool) {
	header, payload, ok := splitRecord(b)
	if !ok {
		return StoredFragment{}, false
	}
	_ = header
	var f StoredFragment
	if err := json.Unmarshal(payload, &f); err != nil {
		return StoredFragment{}, false
	}
	return f, true
}

// HeaderStartMs reads the fragment start time from a framed record without
// decoding the payload. Used by retention sweeps.
func HeaderStartMs(b []byte) (int64, bool) {
	header, _, ok := splitRecord(b)
	if !ok || len(header) < 8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(header[:8])), true
}

func splitRecord(b []byte) (header, payload []byte, ok bool) {
	if len(b) < 1+4 {
		return nil, nil, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 || n+int(hlen)+4 > len(b) {
		return nil, nil, false
	}
	header = b[n : n+int(hlen)]
	payload = b[n+int(hlen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != expect {
		return nil, nil, false
	}
	return header, payload, true
}

package transcript

import (
	"encoding/binary"
)

var (
	sep          = byte('/')
	sessPrefix   = []byte("sess/")
	metaSuffix   = []byte("/m")
	seqSuffix    = []byte("/seq")
	fragSeg      = []byte("/frag/")
	bySeqSeg     = []byte("/byseq/")
	cursorSeg    = []byte("/cursor/")
	alertPrefix  = []byte("alert/")
	metricPrefix = []byte("metric/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// KeySessionMeta builds the session metadata key.
func KeySessionMeta(sessionID string) []byte {
	k := make([]byte, 0, len(sessionID)+8)
	k = append(k, sessPrefix...)
	k = append(k, sessionID...)
	k = append(k, metaSuffix...)
	return k
}

// KeySequenceCounter builds the sequence counter row key.
func KeySequenceCounter(sessionID string) []byte {
	k := make([]byte, 0, len(sessionID)+10)
	k = append(k, sessPrefix...)
	k = append(k, sessionID...)
	k = append(k, seqSuffix...)
	return k
}

// KeyFragment builds the primary fragment key; big-endian bucket and
// sequence keep iteration order equal to logical order.
func KeyFragment(sessionID string, bucketMs int64, seq uint64) []byte {
	k := make([]byte, 0, len(sessionID)+30)
	k = append(k, sessPrefix...)
	k = append(k, sessionID...)
	k = append(k, fragSeg...)
	k = appendBE8(k, uint64(bucketMs))
	k = append(k, sep)
	k = appendBE8(k, seq)
	return k
}

// KeyFragmentPrefix returns the range prefix covering all fragments of a
// session.
func KeyFragmentPrefix(sessionID string) []byte {
	k := make([]byte, 0, len(sessionID)+12)
	k = append(k, sessPrefix...)
	k = append(k, sessionID...)
	k = append(k, fragSeg...)
	return k
}

// KeyFragmentBucketPrefix returns the range prefix for one (session, bucket)
// partition.
func KeyFragmentBucketPrefix(sessionID string, bucketMs int64) []byte {
	k := KeyFragmentPrefix(sessionID)
	k = appendBE8(k, uint64(bucketMs))
	k = append(k, sep)
	return k
}

// KeyBySequence builds the (session, sequence) index key. Its value is the
// fragment's 8-byte big-endian bucket.
func KeyBySequence(sessionID string, seq uint64) []byte {
	k := make([]byte, 0, len(sessionID)+22)
	k = append(k, sessPrefix...)
	k = append(k, sessionID...)
	k = append(k, bySeqSeg...)
	k = appendBE8(k, seq)
	return k
}

// KeyBySequencePrefix returns the range prefix for a session's sequence index.
func KeyBySequencePrefix(sessionID string) []byte {
	k := make([]byte, 0, len(sessionID)+14)
	k = append(k, sessPrefix...)
	k = append(k, sessionID...)
	k = append(k, bySeqSeg...)
	return k
}

// KeyCursor builds the durable cursor key for a consumer group.
func KeyCursor(sessionID, group string) []byte {
	k := make([]byte, 0, len(sessionID)+len(group)+14)
	k = append(k, sessPrefix...)
	k = append(k, sessionID...)
	k = append(k, cursorSeg...)
	k = append(k, group...)
	return k
}

// KeyAlert builds the key for an alert record, upserted by stable ID.
func KeyAlert(alertID string) []byte {
	k := make([]byte, 0, len(alertPrefix)+len(alertID))
	k = append(k, alertPrefix...)
	k = append(k, alertID...)
	return k
}

// KeyAlertPrefix returns the range prefix over all alerts.
func KeyAlertPrefix() []byte { return alertPrefix }

// KeyMetric builds the key for a telemetry sample; id bytes are time-prefixed
// so samples sort by creation time.
func KeyMetric(idBytes []byte) []byte {
	k := make([]byte, 0, len(metricPrefix)+len(idBytes))
	k = append(k, metricPrefix...)
	k = append(k, idBytes...)
	return k
}

// KeyMetricPrefix returns the range prefix over all telemetry samples.
func KeyMetricPrefix() []byte { return metricPrefix }

// SequenceFromFragmentKey extracts the sequence from a primary fragment key.
func SequenceFromFragmentKey(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[len(key)-8:])
}

// SequenceFromIndexKey extracts the sequence from a byseq index key.
func SequenceFromIndexKey(key []byte) uint64 { return SequenceFromFragmentKey(key) }

package transcript

// BucketWidthMs is the fixed width of a time bucket. Bucketing bounds how
// many fragments share one partition key on long sessions.
const BucketWidthMs int64 = 300_000

// MaxTextChars bounds the text of a single fragment.
const MaxTextChars = 10_000

// Event is a speech-to-text fragment as submitted by a producer.
type Event struct {
	SessionID  string  `json:"sessionId"`
	SpeakerID  string  `json:"speakerId,omitempty"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	StartMs    int64   `json:"startMs"`
	EndMs      int64   `json:"endMs"`
	Language   string  `json:"language,omitempty"`
	Interim    bool    `json:"isInterim,omitempty"`
}

// StoredFragment is the persisted form of an Event with its assigned time
// bucket and per-session sequence.
type StoredFragment struct {
	Event
	BucketMs int64  `json:"bucketMs"`
	Sequence uint64 `json:"sequence"`
}

// BucketFor maps a start timestamp to its bucket. Idempotent and monotonic:
// timestamps inside the same window share a bucket, crossing a window
// boundary yields a strictly greater bucket.
func BucketFor(startMs int64) int64 {
	if startMs < 0 {
		return 0
	}
	return startMs / BucketWidthMs * BucketWidthMs
}

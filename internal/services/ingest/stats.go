package ingestsvc

import (
	"github.com/cockroachdb/pebble"

	"github.com/verbatimhq/verbatim/internal/transcript"
)

// Stats walks a session's primary fragment rows and summarizes them.
func (s *Service) Stats(sessionID string) (SessionStats, error) {
	if _, err := s.rt.Session(sessionID); err != nil {
		return SessionStats{}, err
	}
	low := transcript.KeyFragmentPrefix(sessionID)
	hi := append(append([]byte{}, low...), 0xff)
	iter, err := s.rt.DB().NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: hi})
	if err != nil {
		return SessionStats{}, err
	}
	defer iter.Close()

	st := SessionStats{SessionID: sessionID}
	for ok := iter.First(); ok; ok = iter.Next() {
		seq := transcript.SequenceFromFragmentKey(iter.Key())
		if st.Count == 0 || seq < st.FirstSequence {
			st.FirstSequence = seq
		}
		if seq > st.LastSequence {
			st.LastSequence = seq
			if ms, valid := transcript.HeaderStartMs(iter.Value()); valid {
				st.LastStartMs = ms
			}
		}
		st.Count++
		st.Bytes += uint64(len(iter.Value()))
	}
	return st, nil
}

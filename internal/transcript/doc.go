// Package transcript defines the fragment data model and its storage
// representation: validation of inbound events, the crc-framed record
// encoding, time-bucket assignment, and the byte-wise sortable keyspace used
// by the fragment store.
//
// Keyspace layout (lexicographically sortable):
//   - sess/{id}/m                               session metadata
//   - sess/{id}/seq                             sequence counter row
//   - sess/{id}/frag/{bucket_be8}/{seq_be8}     fragment record (primary)
//   - sess/{id}/byseq/{seq_be8}                 sequence index -> bucket
//   - sess/{id}/cursor/{group}                  consumer cursor
package transcript

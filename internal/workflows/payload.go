package workflows

import (
	"fmt"
)

// DefaultMaxPayloadBytes is the Temporal server's default blob size limit.
// A larger activity input or result is rejected by the server and the
// attempt times out instead of failing.
const DefaultMaxPayloadBytes = 2 << 20

// Upper bounds on the JSON encoding of payload parts.
const (
	jsonBytesPerFloat = 16 // -1.2345678e-05 plus separator
	jsonBytesPerChunk = 8  // quotes, separators, occasional escapes
	jsonEnvelope      = 512
)

// PayloadTooLargeError reports a run whose next history payload would
// exceed the blob size limit.
type PayloadTooLargeError struct {
	Stage    Stage
	Chunks   int
	Estimate int
	Limit    int
}

func (e *PayloadTooLargeError) Error() string {
	if e.Chunks > 0 {
		return fmt.Sprintf("%s payload for %d chunks is about %d bytes, over the %d-byte payload limit (pipeline.max_payload_bytes)",
			e.Stage, e.Chunks, e.Estimate, e.Limit)
	}
	return fmt.Sprintf("%s payload is about %d bytes, over the %d-byte payload limit (pipeline.max_payload_bytes)",
		e.Stage, e.Estimate, e.Limit)
}

// contentPayloadSize bounds the encoded fetch result. Byte slices are
// base64 encoded.
func contentPayloadSize(content []byte) int {
	return (len(content)+2)/3*4 + jsonEnvelope
}

// storePayloadSize bounds the encoded StoreInput, the largest payload of a
// run: every chunk plus one vector of dimension floats per chunk.
func storePayloadSize(documentID string, chunks []string, dimension int) int {
	n := len(documentID) + jsonEnvelope
	for _, c := range chunks {
		n += len(c) + jsonBytesPerChunk
	}
	return n + len(chunks)*(dimension*jsonBytesPerFloat+2)
}

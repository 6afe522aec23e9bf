// Package stream implements the streaming response decode core: it turns
// raw byte chunks from a live HTTP response body into canonical deltas and
// finalized messages.
//
// The pipeline is: bytes -> chunk buffer (unit framing) -> format decoder
// (wire framing -> JSON payload) -> normalizer (payload -> schema.Delta) ->
// merger (deltas -> schema.Message). A Session drives the pipeline for one
// in-flight request and invokes a caller-supplied Sink once per event.
//
// Non-streaming responses reuse the same normalizer logic through
// DecodeResponse, so both modes share one decoding grammar.
//
// Sessions are single-threaded: chunks are processed strictly in arrival
// order and the sink is invoked synchronously. Concurrent requests each own
// their own Session; no state crosses session boundaries.
package stream

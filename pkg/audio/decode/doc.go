// ABOUTME: Audio decoder package for inbound and file audio
// ABOUTME: Provides payload decoding, PCM buffer assembly and MP3/FLAC clip decoders
// Package decode turns received audio into playback buffers.
//
// Inline audio from the service arrives as base64 text or raw bytes holding
// 16-bit little-endian PCM. Bytes recovers the raw bytes (ErrMalformedPayload
// on bad base64) and Assemble converts them to a planar float buffer
// (ErrEmptyPayload with a zero-frame buffer for empty input).
//
// MP3 and FLAC decode whole clips, used by the local mock server for canned replies.
//
// Example:
//
//	raw, err := decode.Bytes(payload)
//	buf, err := decode.Assemble(raw, 24000, 1)
package decode

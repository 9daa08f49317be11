// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines the capture, wire and playback buffer types shared by the pipeline
// Package audio provides the audio types used throughout the ose client.
//
// This package defines:
//   - SampleBuffer: interleaved float samples from a capture device
//   - WireFrame: 16-bit PCM bytes tagged with a MIME type for transport
//   - Payload: inline audio as received from the service (base64 or binary)
//   - Buffer: planar float audio ready for scheduling on the output timeline
//
// Example:
//
//	frame := audio.WireFrame{
//	    Data:     pcm,
//	    MIMEType: audio.PCMMIMEType(audio.InputSampleRate),
//	}
//
//	rate, ok := audio.ParsePCMRate("audio/pcm;rate=24000")
package audio

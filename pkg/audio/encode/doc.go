// ABOUTME: Audio encoder package for outbound microphone audio
// ABOUTME: Provides the Encoder interface and the 16-bit PCM implementation
// Package encode provides outbound audio encoders.
//
// The realtime voice service accepts 16-bit little-endian PCM at 16 kHz, so
// PCM is the only encoder. Samples are scaled with round(s*32767) and clamped.
//
// Example:
//
//	encoder, err := encode.NewPCM(16000, 1)
//	frame, err := encoder.Encode(samples)
//	// frame.MIMEType == "audio/pcm;rate=16000"
package encode

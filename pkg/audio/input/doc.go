// ABOUTME: Audio input package for microphone capture
// ABOUTME: Provides the Stream interface and a malgo microphone backend
// Package input captures microphone audio as fixed-size float frames.
//
// Example:
//
//	mic := input.NewMicrophone(input.Config{SampleRate: 16000, Channels: 1, FrameSize: 256})
//	stream, err := mic.Open()
//	if errors.Is(err, input.ErrPermissionDenied) {
//		// ask the user to grant access
//	}
//	stream.SetHandler(func(frame audio.SampleBuffer) { ... })
package input

// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the Output interface with oto and malgo backends
// Package output provides pull-based audio playback.
//
// A backend opens the system device and reads 16-bit little-endian PCM
// from an io.Reader for as long as it stays open.
//
// Example:
//
//	out, err := output.New("oto")
//	err = out.Open(24000, 1, timeline)
//	defer out.Close()
package output

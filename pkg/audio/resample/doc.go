// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts float audio between sample rates and channel layouts
// Package resample provides audio sample rate conversion.
//
// Uses linear interpolation for converting between sample rates.
// Handles both upsampling and downsampling, in streaming chunks or whole buffers.
//
// Example:
//
//	r := resample.New(16000, 24000, 1)
//	out := r.Process(chunk)
//
//	buf = resample.Buffer(resample.Mono(buf), 24000)
package resample

// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for outbound audio encoders
package encode

import "github.com/Resonate-Protocol/ose-go/pkg/audio"

// Encoder turns captured float samples into a transport-ready wire frame
type Encoder interface {
	// Encode converts a captured sample buffer to a wire frame
	Encode(samples audio.SampleBuffer) (audio.WireFrame, error)
}

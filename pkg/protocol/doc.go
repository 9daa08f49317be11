// ABOUTME: Live voice protocol package
// ABOUTME: Defines the session contract, wire messages and the websocket client
// Package protocol implements the realtime voice session protocol.
//
// A Dialer opens a Session and delivers service events through Callbacks,
// one at a time and in transport order. WireDialer speaks the JSON protocol
// over gorilla/websocket; the genailive subpackage provides a Dialer backed
// by the genai SDK.
//
// Example:
//
//	sess, err := protocol.NewWireDialer().Dial(ctx, protocol.Config{
//		APIKey: key,
//		Model:  "gemini-2.0-flash-exp",
//		Voice:  "Puck",
//	}, protocol.Callbacks{OnMessage: handle})
//	err = sess.SendRealtimeInput(frame)
package protocol

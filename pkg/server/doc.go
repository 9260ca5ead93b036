// Package server exposes enrollment and verification over HTTP.
//
// Routes:
//
//	GET    /healthz
//	GET    /metrics
//	GET    /v1/users
//	GET    /v1/users/:id
//	DELETE /v1/users/:id
//	POST   /v1/users/:id/enroll         multipart, repeated "sample" WAV files
//	POST   /v1/users/:id/retrain        multipart, repeated "sample" WAV files
//	POST   /v1/users/:id/verify         WAV body or multipart "audio"
//	GET    /v1/users/:id/verify/stream  WebSocket, binary PCM16LE then "end"
//
// The stream takes raw PCM16LE chunks by default. With ?framing=rtp each
// binary message is an RTP packet with an L16 payload; packets are put back
// in sequence order before verification.
//
// An accepted verification carries a short-lived token when the server has
// a token issuer.
package server

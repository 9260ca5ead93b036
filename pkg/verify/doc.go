// Package verify fuses identity and liveness into an accept/reject
// decision.
//
// A [Verifier] runs one authentication attempt: voice activity detection,
// then speaker embedding and deepfake scoring in parallel over the same
// frames, then a two-factor decision against the user's enrolled profile.
// Rejections are values in [Result], not errors; errors are reserved for
// failures the caller must handle (unknown user, stale profile, broken
// audio, cancellation).
//
// An [Enroller] turns raw enrollment recordings into embeddings and hands
// them to the profile store.
package verify

// Package profile owns enrollment profiles: the per-user set of enrollment
// embeddings together with the centroid and the adaptive acceptance
// threshold derived from them.
//
// # Key layout
//
//	{prefix}:{userID} → msgpack-encoded Profile
//
// The default prefix is voicegate:profile.
//
// # Threshold
//
// Let S be every pairwise cosine between enrollment embeddings plus the
// cosine of each embedding with the centroid. The threshold is
//
//	clamp(mean(S) - K*stddev(S), Floor, Ceiling)
//
// with the population standard deviation. Speakers who enroll consistently
// get a strict threshold; noisy enrollments get a looser one, never below
// Floor.
//
// # Consistency
//
// A profile is only ever replaced as a whole with one kv Set, so readers see
// either the old or the new version. Writes for the same user are
// serialized, and every input is validated before anything is written.
package profile

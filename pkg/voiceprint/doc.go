// Package voiceprint turns active speech into speaker embeddings and
// compares them.
//
// # Pipeline
//
//  1. [vad.Speech] → [Extractor.Embed] → [Embedding] (L2-normalized)
//  2. [Cosine] compares two embeddings of the same model
//  3. [Mean] builds an enrollment centroid
//  4. [Hasher.Hash] folds an embedding into a short voice label ("voice:A3F8")
//
// Two extractors are provided. [CepstralExtractor] is a pure Go backend built
// on MFCC statistics. [ModelExtractor] adapts any neural [Model] that maps
// PCM16 audio to a vector and averages it over fixed windows of long
// utterances.
//
// Embeddings carry the tag of the model that produced them. Comparing
// embeddings of different models is an error, which is how stored profiles
// are detected as stale after a model upgrade.
package voiceprint

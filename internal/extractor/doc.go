// Package extractor turns files into text for embedding.
//
// Documents are read by DocumentLoaders chosen through a Registry keyed by
// extension, bounded to MaxDocumentChars. Images and audio are handed to a
// remote model platform: images are described by a vision chat model and
// audio is transcribed. NewAnalyzers builds both analyzers from the active
// PlatformSetting and reports the platform's capabilities through
// ErrUnsupported.
//
// Media formats are verified by magic number before anything leaves the
// machine.
package extractor

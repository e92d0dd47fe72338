// Package embedder turns text into 384-dimensional vectors.
//
// A Manager owns one Session at a time. The session is loaded lazily (or by
// Warmup), every Embed call is serialized through it, and a sweeper unloads it
// after 30 minutes without use.
//
// # Basic Usage
//
//	loader, err := embedder.NewLoader(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	mgr := embedder.NewManager(embedder.ManagerConfig{
//	    Loader:   loader,
//	    Language: settings.ContentLanguage,
//	})
//	mgr.StartSweeper(ctx, embedder.DefaultSweepInterval)
//
//	vec, err := mgr.Embed(ctx, "quarterly report notes")
//
// # Backends
//
// Every model is paired with the tokenizer it was trained with. The manager
// opens that tokenizer together with the session, and Count uses it so chunks
// are sized in the model's own tokens.
//
// The local backend runs offline. Built with -tags onnx it runs
// all-minilm-l6-v2 (english) or paraphrase-multilingual-MiniLM-L12-v2
// (multilingual) from <model dir>/<name>/model.onnx with the tokenizer.json
// beside it; an optional model.yaml overrides max_tokens. Without the tag,
// or when those files are missing, it falls back to the hashing models
// (hashing-english with cl100k_base, hashing-multilingual with o200k_base).
//
// The openai backend calls an OpenAI-compatible embeddings endpoint with
// dimensions=384 and retries failed calls with exponential backoff.
//
// # Output Shapes
//
// ExtractVector accepts [1, seq, 384] (last-token hidden state), [1, 384] and
// [384]. Anything else is rejected.
package embedder

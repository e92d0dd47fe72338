package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/dshills/filesift/internal/config"
	"github.com/dshills/filesift/internal/embedder"
	"github.com/dshills/filesift/internal/engine"
	"github.com/dshills/filesift/internal/logging"
	"github.com/dshills/filesift/internal/searcher"
	"github.com/dshills/filesift/internal/storage"
)

var samples = map[string]string{
	"grocery-list.txt":   "milk, eggs, bread, apples and coffee beans",
	"trip-itinerary.txt": "flight to Lisbon on Friday, hotel near the old town, museum tour on Saturday",
	"budget-2024.md":     "quarterly budget review: marketing spend is over plan, travel under plan",
}

func main() {
	fmt.Println("Testing embedding integration...")
	logging.Init(nil)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	loader, err := embedder.NewLoader(cfg)
	if err != nil {
		log.Fatalf("Failed to create loader: %v", err)
	}
	manager := embedder.NewManager(embedder.ManagerConfig{Loader: loader})
	defer manager.Clear()

	if err := manager.Warmup(ctx); err != nil {
		log.Fatalf("Failed to load embedding session: %v", err)
	}
	fmt.Printf("\nModel: %s (backend %s, onnx build %v)\n", manager.ModelName(), cfg.EmbeddingBackend, embedder.ONNXAvailable)

	a, err := manager.Embed(ctx, "a list of things to buy at the supermarket")
	if err != nil {
		log.Fatalf("Failed to embed: %v", err)
	}
	b, err := manager.Embed(ctx, "groceries to pick up after work")
	if err != nil {
		log.Fatalf("Failed to embed: %v", err)
	}
	fmt.Printf("  Dimension: %d\n", len(a))
	fmt.Printf("  Cosine similarity of related sentences: %.3f\n", 1-storage.CosineDistance(a, b))

	tmpDir, err := os.MkdirTemp("", "filesift-test-*")
	if err != nil {
		log.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)
	for name, content := range samples {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte(content), 0o644); err != nil {
			log.Fatalf("Failed to write test file: %v", err)
		}
	}

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		log.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	eng, err := engine.New(engine.Config{
		Store:     store,
		Embedding: manager,
		Counter:   manager,
	})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}
	defer eng.Close()

	task, err := eng.RunIndexing(ctx, []string{tmpDir})
	if err != nil {
		log.Fatalf("Failed to index: %v", err)
	}

	fmt.Printf("\nIndexing Statistics:\n")
	fmt.Printf("  Status: %s (%s)\n", task.Status, task.Remark)
	fmt.Printf("  Files: %d total, %d succeeded, %d failed, %d skipped\n", task.Total, task.Success, task.Failed, task.Skipped)
	fmt.Printf("  Duration: %v\n", task.Duration)

	embeddingCount := 0
	for name := range samples {
		rec, err := store.GetFileByPath(ctx, filepath.Join(tmpDir, name))
		if err != nil {
			log.Fatalf("Failed to get %s: %v", name, err)
		}
		chunks, err := store.ListContentEmbeddings(ctx, rec.ID)
		if err != nil {
			log.Fatalf("Failed to list embeddings: %v", err)
		}
		embeddingCount += len(chunks)
	}

	resp, err := eng.Search(ctx, searcher.SearchRequest{Query: "what do I need from the shop", Mode: searcher.SearchModeSemantic})
	if err != nil {
		log.Fatalf("Failed to search: %v", err)
	}

	fmt.Printf("\nVerification:\n")
	fmt.Printf("  Content embeddings in DB: %d\n", embeddingCount)
	for i, r := range resp.Results {
		fmt.Printf("  %d. %.3f %s\n", i+1, r.Score, filepath.Base(r.File.Path))
	}

	if embeddingCount > 0 && len(resp.Results) > 0 {
		fmt.Println("\n✓ SUCCESS: Embeddings were generated, stored and searched!")
	} else {
		fmt.Println("\n✗ FAILURE: No embeddings were stored or nothing matched!")
		os.Exit(1)
	}
}

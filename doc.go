// Package docsift embeds the document retrieval core into a Go program:
// section-aware chunking, lazy embedding with content-hash deduplication,
// and hybrid vector + lexical search behind a single client.
//
//	client, _ := docsift.New(
//	    docsift.WithOpenAI(os.Getenv("OPENAI_API_KEY"), "text-embedding-3-small", 1024),
//	    docsift.WithDataDir("data"),
//	)
//	defer client.Close()
//
//	report, _ := client.Ingest(ctx, docsift.Document{
//	    ID:   "policy-7",
//	    Text: policyText,
//	})
//	results, _ := client.Search(ctx, "refund deadlines", nil)
//
// By default the client keeps everything in process memory; WithRedis adds
// shared status, quota, and embedding-cache storage, and WithDataDir persists
// the vector index between runs. The docsift CLI under cmd/docsift is a thin
// shell over this same wiring.
package docsift

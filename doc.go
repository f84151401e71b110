// Package quivigo provides a multi-tenant approximate nearest neighbor
// engine for Go. Each owner gets its own HNSW index that is cached in
// memory, written to in batches, and persisted as versioned snapshots in a
// pluggable blob store.
//
// Writes queue instantly and flush in the background once a batch fills or
// ages out; searches see queued writes immediately through an overlay, so a
// caller always reads its own writes. Idle owners are flushed and evicted
// after a TTL and reload transparently on the next access.
//
// # Quick Start
//
//	ctx := context.Background()
//	eng, err := quivigo.New(128,
//	    quivigo.WithMetric(distance.MetricCosine),
//	    quivigo.WithStore(blobstore.NewLocalStore("./data")),
//	)
//	if err != nil {
//	    panic(err)
//	}
//	defer eng.Close(ctx)
//
//	_ = eng.Insert(ctx, "tenant-a", 1, vec1)
//	_ = eng.Insert(ctx, "tenant-a", 2, vec2)
//
//	results, err := eng.Search(ctx, "tenant-a", query, 10)
//
// For durable multi-process deployments, point the engine at S3 and DynamoDB:
//
//	store, err := s3.NewStoreFromConfig(ctx, "my-bucket", "indexes/")
//	versions := s3.NewDDBVersionStore(dynamodb.NewFromConfig(cfg), "quivigo-versions")
//	eng, err := quivigo.New(128,
//	    quivigo.WithStore(store),
//	    quivigo.WithVersionStore(versions),
//	)
package quivigo

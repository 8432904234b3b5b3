// Package vecmigrate migrates portable vector datasets into a managed
// vector-index service.
//
// A dataset is a directory tree described by a VDF_META.json manifest:
// logical indexes, their namespaces, and columnar row files holding ids,
// vectors, and metadata columns. vecmigrate reconciles the target
// service resources (index, serving endpoint, deployment) idempotently,
// then streams the rows into the index in bounded batches with
// at-least-once delivery.
//
// The Migrator façade wires the pieces together:
//
//	client := remote.NewRESTClient(baseURL, parent)
//	source := rowsource.NewDirSource(datasetDir)
//
//	mg, err := vecmigrate.New(client, source,
//	    vecmigrate.WithIndexName("products"),
//	    vecmigrate.WithCreateIfAbsent(768),
//	    vecmigrate.WithDeploy(),
//	    vecmigrate.WithBatchSize(100),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	report, err := mg.Migrate(ctx, datasetDir)
//	fmt.Printf("imported %d rows\n", report.Total)
//
// Each stage is usable on its own: reconcile for resource management,
// ingest for the upsert pipeline, bootstrap for seeding a brand-new
// index's initial contents, manifest and rowsource for reading datasets.
package vecmigrate

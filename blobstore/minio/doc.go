// Package minio stores index checkpoints in MinIO or any S3-compatible
// service through the MinIO client.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "indexes", "products/")
//	idx, err := postings.Open(ctx, postings.WithBlobStore(store))
package minio

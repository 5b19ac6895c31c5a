// Package s3 stores index checkpoints in Amazon S3.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("indexes/products"),
//	    s3.WithRegion("eu-central-1"),
//	)
//
//	idx, err := postings.Open(ctx, postings.WithBlobStore(store))
//
// Small blobs are written with a single PutObject carrying a CRC32C checksum;
// larger ones go through the multipart uploader of feature/s3/manager.
//
// S3 alone cannot arbitrate two processes moving the CURRENT pointer at the
// same time. CommitStore keeps that pointer in a DynamoDB table written with
// conditional puts instead.
package s3

// Package blobstore abstracts where index checkpoints are kept.
//
// A checkpoint is one immutable blob plus a small CURRENT blob naming the
// latest one. Stores only need whole-object semantics:
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests and ephemeral indexes
//   - LocalStore: local directory, atomic renames and mmap reads
//   - minio.Store: MinIO and other S3-compatible services
//   - s3.Store: Amazon S3, with s3.CommitStore guarding CURRENT in DynamoDB
//   - redis.Store: Redis keys, for small indexes shared between processes
//
// Implementations must be safe for concurrent use and must report missing
// blobs with an error matching ErrNotFound.
package blobstore

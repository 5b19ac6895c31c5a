// Package checkpoint serializes committed page snapshots into self-checking
// blobs and manages them in a blobstore.
//
// Frame layout (little endian):
//
//	[0:4]   magic "PSTC"
//	[4]     format version
//	[5]     compression (0 none, 1 lz4, 2 zstd)
//	[6]     length L of the codec name
//	[7]     reserved
//	[8:16]  uncompressed body length
//	[16:20] CRC32C of the uncompressed body
//	[20:24] CRC32C of bytes [0:20] and the codec name
//	[24:24+L] codec name
//	then the body, compressed as announced.
//
// The body holds a codec-encoded header (page size, transaction id, page
// runs), an opaque metadata section owned by the caller, and the page bytes
// of every run in header order.
//
// Blobs are stored as checkpoints/<20 digit sequence>; the CURRENT blob names
// the latest complete one and is written last.
package checkpoint

// Package hash provides the CRC32-Castagnoli checksum used for checkpoint
// integrity and S3 upload checksums.
//
//	checksum := hash.CRC32C(data)
//
//	h := hash.NewCRC32C()
//	h.Write(header)
//	h.Write(body)
//	checksum := h.Sum32()
//
// The standard library uses the SSE4.2 and ARMv8 CRC instructions when present.
package hash

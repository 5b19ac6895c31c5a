// Package entry packs posting entries and encodes posting sequences.
//
// # Entry Encoding
//
// A posting entry is a non-negative entry id optionally packed with the term
// frequency observed in that entry:
//
//	encoded = entryID << FrequencyBits | quantize(frequency)
//
// Because the entry id occupies the high bits, sorting encoded values sorts by
// entry id for any frequency. Frequencies are quantized to 8 bits on a
// logarithmic scale (exact below 16).
//
// # Sequences
//
// Short sequences are written as zig-zag varints of the deltas between
// consecutive values. ReadVarint returns the number of bytes consumed so a
// cursor can resume decoding in the middle of a stream.
package entry

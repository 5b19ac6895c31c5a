// Package redis keeps index checkpoints in Redis string keys.
//
// It suits small indexes shared by several processes on one network:
//
//	rdb := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	store := redis.NewStore(rdb, "postings:products:")
//
// Blob names are appended to the key prefix. Listing uses SCAN, so it visits
// the keyspace incrementally instead of blocking the server.
package redis

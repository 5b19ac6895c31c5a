// Package fs abstracts the file system calls made by the local blob store so
// tests can inject I/O failures.
//
//   - [LocalFS] forwards to the os package and is the default.
//   - [FaultyFS] wraps another FileSystem and fails writes, syncs or closes
//     of files whose name contains a configured pattern.
//
// [WriteAtomic] writes a file through a temporary sibling and a rename, so
// readers observe either the old or the new content.
//
// Calls take no context: local file operations are not interruptible.
package fs

// Package mmap maps files read-only into memory.
//
// The local blob store uses it to hand checkpoint files to the decoder
// without copying them through a read buffer:
//
//	m, err := mmap.Open(path)
//	if err != nil { ... }
//	defer m.Close()
//	_ = m.Advise(mmap.AccessSequential)
//	data := m.Bytes()
//
// Unix platforms use mmap(2) and madvise(2). On Windows the file is mapped
// with CreateFileMapping and access hints are ignored.
//
// Bytes must not be used after Close returns.
package mmap

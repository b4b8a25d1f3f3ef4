// Package files provides the file system primitives the pipeline relies on.
//
// Manager performs all-or-nothing writes: data is written to a temporary
// file in the target directory, synced and renamed over the destination, so
// readers observe either the previous content or the new content and never
// a partial file.
//
// PathLocks serializes read-modify-write cycles on one physical file while
// leaving different files independent.
//
// Discovery walks a directory tree and returns the table files it contains,
// ignoring in-flight temporary files.
//
// Example usage:
//
//	m := files.NewManager("/data/transformed")
//	unlock := locks.Lock(path)
//	defer unlock()
//	if err := m.WriteFileAtomic(path, data); err != nil {
//	    return err
//	}
package files

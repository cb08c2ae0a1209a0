package fsutil

// TemporaryNamePrefix is the file name prefix used for every temporary file
// the archive backends create on disk (directly, or via WriteFileAtomic).
// Using a stable, recognizable prefix means that a scan of an archive directory can
// unambiguously ignore (and a crashed process's leftovers can be swept up
// safely) anything bearing it.
const TemporaryNamePrefix = ".ckmame-"

/*
Package filesystem provides the file operations used to publish catalogues
and read caches: atomic writes, and retries of transient errors such as NFS
stale file handles.

# Atomic writes

Catalogue files are consumed by encode scripts that may poll the output
directory. WriteFileAtomic writes to a hidden temporary file in the same
directory, syncs it, and renames it into place:

	err := filesystem.WriteFileAtomic(filepath.Join(dir, "ep01.txt"),
		[]byte(cat.String()), 0o644, filesystem.DefaultRetryConfig())

# Retries

ESTALE, EINTR, EAGAIN and EBUSY are retried with exponential backoff
(default: 3 retries from 50ms up to 500ms). Any other error is returned
immediately.

# Metrics

Operations are labelled with the volume they touch through a VolumeResolver
set at startup, and reported to the Observer installed with SetObserver.
Without an observer nothing is recorded.
*/
package filesystem

package follower

import "os"

// fileIdentity on Windows falls back to size+modtime comparison, since
// os.FileInfo does not expose an inode-equivalent without additional
// syscalls; this is a coarser rotation signal than unix inode tracking.
type fileIdentity struct {
	size    int64
	modTime int64
}

func identify(info os.FileInfo) fileIdentity {
	return fileIdentity{size: info.Size(), modTime: info.ModTime().UnixNano()}
}

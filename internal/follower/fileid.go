//go:build !windows

package follower

import (
	"os"
	"syscall"
)

// fileIdentity distinguishes "same file" from "rotated to a new file"
// across operating systems that don't expose inode numbers (see
// fileid_windows.go for the fallback).
type fileIdentity struct {
	dev uint64
	ino uint64
}

func identify(info os.FileInfo) fileIdentity {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fileIdentity{}
	}
	return fileIdentity{dev: uint64(stat.Dev), ino: uint64(stat.Ino)}
}

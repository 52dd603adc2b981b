//go:build unix

package registry

import (
	"os"
	"syscall"
)

func sysStat(info os.FileInfo) (Key, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return Key{}, false
	}
	return Key{Device: uint64(stat.Dev), Inode: stat.Ino}, true
}

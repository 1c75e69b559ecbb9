//go:build unix

package main

import (
	"github.com/25smoking/chanwatch/internal/config"
	"golang.org/x/sys/unix"
)

// checkPrivileges warns when the host registry cannot see other users' sockets.
func checkPrivileges(kind config.RegistryKind) {
	if kind != config.RegistryHost {
		return
	}
	if unix.Geteuid() != 0 {
		log.Warn("not running as root, sockets owned by other users will be missing")
	}
}

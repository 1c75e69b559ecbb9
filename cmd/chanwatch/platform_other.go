//go:build !unix && !windows

package main

import "github.com/25smoking/chanwatch/internal/config"

func checkPrivileges(config.RegistryKind) {
}

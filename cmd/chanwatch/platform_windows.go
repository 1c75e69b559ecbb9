//go:build windows

package main

import (
	"github.com/25smoking/chanwatch/internal/config"
	"golang.org/x/sys/windows"
)

func checkPrivileges(kind config.RegistryKind) {
	if kind != config.RegistryHost {
		return
	}
	if !isAdmin() {
		log.Warn("未以管理员身份运行，部分进程的连接信息可能无法读取")
	}
}

func isAdmin() bool {
	var sid *windows.SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)

	member, err := windows.Token(0).IsMember(sid)
	return err == nil && member
}

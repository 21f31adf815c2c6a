package storage

import (
	"bufio"
	"os"
	"os/user"
	"strings"
	"sync"
)

const qemuConfPath = "/etc/libvirt/qemu.conf"

// Fedora/RHEL ship qemu as uid/gid 107. Used when no qemu user can be
// resolved on the host.
const fallbackQEMUID = "107"

var (
	qemuUID  string
	qemuGID  string
	qemuOnce sync.Once
)

// GetQEMUUserGroup returns the uid and gid the QEMU process runs as, so
// pool directories and volumes can be owned by it. Resolution order: the
// user/group configured in qemu.conf, then well-known qemu account names,
// then the packaged default. The result is cached for the process
// lifetime.
func GetQEMUUserGroup() (uid, gid string) {
	qemuOnce.Do(func() {
		qemuUID, qemuGID = resolveQEMUUserGroup()
	})
	return qemuUID, qemuGID
}

func resolveQEMUUserGroup() (uid, gid string) {
	username, groupname := parseQEMUConf(qemuConfPath)

	if username != "" {
		if u, err := user.Lookup(username); err == nil {
			gid := u.Gid
			if groupname != "" {
				if g, err := user.LookupGroup(groupname); err == nil {
					gid = g.Gid
				}
			}
			return u.Uid, gid
		}
	}

	for _, name := range []string{"qemu", "libvirt-qemu"} {
		if u, err := user.Lookup(name); err == nil {
			return u.Uid, u.Gid
		}
	}

	return fallbackQEMUID, fallbackQEMUID
}

// parseQEMUConf extracts the user and group settings from a qemu.conf
// file. Missing file or settings yield empty strings.
func parseQEMUConf(path string) (username, groupname string) {
	file, err := os.Open(path)
	if err != nil {
		return "", ""
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		switch strings.TrimSpace(key) {
		case "user":
			username = value
		case "group":
			groupname = value
		}
	}

	return username, groupname
}

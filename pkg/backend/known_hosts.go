package backend

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var knownHostsMu sync.Mutex

// newTOFUHostKeyCallback accepts and records hosts seen for the first time
// and rejects hosts whose key changed since they were recorded.
func newTOFUHostKeyCallback(knownHostsFile string) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		if err := os.MkdirAll(filepath.Dir(knownHostsFile), 0o700); err != nil {
			return fmt.Errorf("create known_hosts directory: %w", err)
		}
		if _, err := os.Stat(knownHostsFile); err == nil {
			cb, err := knownhosts.New(knownHostsFile)
			if err != nil {
				return fmt.Errorf("load known_hosts: %w", err)
			}
			err = cb(hostname, remote, key)
			if err == nil {
				return nil
			}
			var keyErr *knownhosts.KeyError
			if !errors.As(err, &keyErr) {
				return err
			}
			if len(keyErr.Want) > 0 {
				return fmt.Errorf("host key changed for %s (got %s), remove the old entry from %s",
					hostname, ssh.FingerprintSHA256(key), knownHostsFile)
			}
		}
		return appendKnownHost(knownHostsFile, hostname, key)
	}
}

func appendKnownHost(path, hostname string, key ssh.PublicKey) error {
	knownHostsMu.Lock()
	defer knownHostsMu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("write known_hosts: %w", err)
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key))
	return err
}

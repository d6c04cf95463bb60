package transport

import (
	"errors"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// listenUnixReuse binds a unix-domain listener at path, removing any
// stale socket file left behind by a previous, uncleanly terminated
// server before binding. This mirrors the BindReuse behavior servers
// in this module have always needed for local-socket listeners, since
// a crashed process otherwise leaves the path occupied.
func listenUnixReuse(path string) (net.Listener, error) {
	l, err := bindReuse(path, 0)
	return l, err
}

// BindReuse binds a unix-domain listener at path, reclaiming a stale
// socket path left behind by a process that exited without cleaning
// up. If bind fails with "address in use", BindReuse checks that path
// names a socket and attempts to connect to it; only if that connect
// fails with ECONNREFUSED (nothing is listening any more) does it
// unlink the path and retry the bind. If mode is nonzero, it is
// applied to the socket file via os.Chmod after a successful bind.
func BindReuse(path string, mode os.FileMode) (net.Listener, error) {
	return bindReuse(path, mode)
}

func bindReuse(path string, mode os.FileMode) (net.Listener, error) {
	l, err := net.Listen("unix", path)
	if err != nil {
		if !errors.Is(err, unix.EADDRINUSE) {
			return nil, err
		}
		if !isStaleSocket(path) {
			return nil, err
		}
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, err
		}
		l, err = net.Listen("unix", path)
		if err != nil {
			return nil, err
		}
	}
	if mode != 0 {
		if err := os.Chmod(path, mode); err != nil {
			l.Close()
			return nil, err
		}
	}
	return l, nil
}

// isStaleSocket reports whether path names a socket file that nothing
// is listening on any longer: a regular file, a directory, or a
// socket with an active listener must not be removed.
func isStaleSocket(path string) bool {
	fi, err := os.Stat(path)
	if err != nil || fi.Mode()&os.ModeSocket == 0 {
		return false
	}
	conn, err := net.Dial("unix", path)
	if err == nil {
		conn.Close()
		return false
	}
	return errors.Is(err, unix.ECONNREFUSED)
}

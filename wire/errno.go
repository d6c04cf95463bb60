package wire

import (
	"errors"
	"io/fs"

	"golang.org/x/sys/unix"
)

// Errno is a Linux errno number as carried in Rlerror.Ecode.
type Errno uint32

func (e Errno) Error() string { return unix.Errno(e).Error() }

// Unwrap lets errors.Is(err, fs.ErrNotExist) and friends succeed
// against an Errno without every caller needing to know the number.
func (e Errno) Unwrap() error {
	switch e {
	case ENOENT:
		return fs.ErrNotExist
	case EEXIST:
		return fs.ErrExist
	case EACCES, EPERM:
		return fs.ErrPermission
	case EINVAL:
		return fs.ErrInvalid
	default:
		return nil
	}
}

// Well-known errno values referenced by client and server code. Any
// other unix.E* constant still round-trips through Errno even though
// this package does not name it individually (ENOSPC, EROFS,
// ENOTEMPTY, EXDEV, EMFILE and the rest of the table the Linux
// reference client exposes).
const (
	EPERM   Errno = Errno(unix.EPERM)
	ENOENT  Errno = Errno(unix.ENOENT)
	EIO     Errno = Errno(unix.EIO)
	EAGAIN  Errno = Errno(unix.EAGAIN)
	EACCES  Errno = Errno(unix.EACCES)
	EEXIST  Errno = Errno(unix.EEXIST)
	ENOTDIR Errno = Errno(unix.ENOTDIR)
	EISDIR  Errno = Errno(unix.EISDIR)
	EINVAL  Errno = Errno(unix.EINVAL)
	ENOTSUP Errno = Errno(unix.EOPNOTSUPP)
	ERANGE  Errno = Errno(unix.ERANGE)
	ENOSYS  Errno = Errno(unix.ENOSYS)
	EINTR   Errno = Errno(unix.EINTR)
	EBADF   Errno = Errno(unix.EBADF)
)

// FromError converts a Go error into the errno that belongs in
// Rlerror.Ecode: an embedded Errno or unix.Errno is used directly,
// the stdlib fs sentinels map to their POSIX equivalent, and anything
// else becomes EIO.
func FromError(err error) Errno {
	if err == nil {
		return EIO
	}
	var en Errno
	if errors.As(err, &en) {
		return en
	}
	var ue unix.Errno
	if errors.As(err, &ue) {
		return Errno(ue)
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ENOENT
	case errors.Is(err, fs.ErrExist):
		return EEXIST
	case errors.Is(err, fs.ErrPermission):
		return EACCES
	case errors.Is(err, fs.ErrInvalid):
		return EINVAL
	default:
		return EIO
	}
}

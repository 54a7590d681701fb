//go:build linux

package inotify

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/pathwatch/pathwatch/internal/errors"
	"github.com/pathwatch/pathwatch/internal/logger"
)

// linuxStream implements Stream on a real inotify descriptor. A secondary
// pipe lets Wake interrupt a blocked Wait, which is what makes the
// threaded notifier stoppable without waiting out the poll timeout.
type linuxStream struct {
	log   *logger.Logger
	fd    int
	wakeR int
	wakeW int
}

// OpenStream initializes an inotify instance and its wake pipe.
func OpenStream(log *logger.Logger) (Stream, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return nil, errors.Primitive("inotify_init failed", err)
	}

	var pipeFds [2]int
	if err := unix.Pipe2(pipeFds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Primitive("wake pipe creation failed", err)
	}

	return &linuxStream{
		log:   log,
		fd:    fd,
		wakeR: pipeFds[0],
		wakeW: pipeFds[1],
	}, nil
}

func (s *linuxStream) Fd() int {
	return s.fd
}

func (s *linuxStream) AddWatch(path string, mask Mask) (int32, error) {
	wd, err := unix.InotifyAddWatch(s.fd, path, uint32(mask))
	if err != nil {
		if err == unix.ENOSPC {
			return -1, errors.WatchLimit("inotify watch limit reached, see fs.inotify.max_user_watches").WithCause(err)
		}
		return -1, errors.Primitive("inotify_add_watch failed for "+path, err)
	}
	s.log.Debug("added kernel watch", "path", path, "wd", wd)
	return int32(wd), nil
}

func (s *linuxStream) RemoveWatch(wd int32) error {
	if _, err := unix.InotifyRmWatch(s.fd, uint32(wd)); err != nil {
		return errors.Primitivef(err, "inotify_rm_watch failed for wd %d", wd)
	}
	return nil
}

func (s *linuxStream) Pending() (int, error) {
	n, err := unix.IoctlGetInt(s.fd, unix.TIOCINQ)
	if err != nil {
		return 0, errors.Primitive("pending-bytes ioctl failed", err)
	}
	return n, nil
}

func (s *linuxStream) Read(buf []byte) (int, error) {
	for {
		n, err := unix.Read(s.fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, errors.Primitive("inotify read failed", err)
		}
		return n, nil
	}
}

func (s *linuxStream) Wait(timeout time.Duration) (bool, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}

	fds := []unix.PollFd{
		{Fd: int32(s.fd), Events: unix.POLLIN},
		{Fd: int32(s.wakeR), Events: unix.POLLIN},
	}

	for {
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, errors.Primitive("poll failed", err)
		}
		if n == 0 {
			return false, nil
		}
		break
	}

	if fds[1].Revents&unix.POLLIN != 0 {
		// Drain the wake byte so the next Wait blocks again.
		var b [8]byte
		_, _ = unix.Read(s.wakeR, b[:])
		return false, nil
	}
	return fds[0].Revents&unix.POLLIN != 0, nil
}

func (s *linuxStream) Wake() error {
	if _, err := unix.Write(s.wakeW, []byte{0}); err != nil && err != unix.EAGAIN {
		return errors.Primitive("wake write failed", err)
	}
	return nil
}

func (s *linuxStream) Close() error {
	var closeErr error
	if err := unix.Close(s.fd); err != nil {
		closeErr = errors.Primitive("closing inotify descriptor failed", err)
	}
	_ = unix.Close(s.wakeR)
	_ = unix.Close(s.wakeW)
	return closeErr
}

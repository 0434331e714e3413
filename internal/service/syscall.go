package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/S1riyS/guestvfs/internal/models"
	"github.com/S1riyS/guestvfs/internal/pkg/kerrors"
	"github.com/S1riyS/guestvfs/internal/vfs"
	"github.com/S1riyS/guestvfs/pkg/logging"
	"github.com/S1riyS/guestvfs/pkg/logging/slogext"
)

type SyscallService interface {
	Open(ctx context.Context, path string, flags int, mode uint32) (int, error)
	Close(ctx context.Context, fd int) error
	Read(ctx context.Context, fd int, length int, offset *int64) ([]byte, error)
	Write(ctx context.Context, fd int, data []byte, offset *int64) (int, error)
	Seek(ctx context.Context, fd int, offset int64, whence int) (int64, error)
	Mkdir(ctx context.Context, path string, mode uint32) error
	Rmdir(ctx context.Context, path string) error
	Unlink(ctx context.Context, path string) error
	Rename(ctx context.Context, oldPath, newPath string) error
	Symlink(ctx context.Context, target, linkpath string) error
	Readlink(ctx context.Context, path string) (string, error)
	Stat(ctx context.Context, path string, follow bool) (*models.Stat, error)
	Readdir(ctx context.Context, path string) ([]models.Dirent, error)
	Truncate(ctx context.Context, path string, length int64) error
	Chmod(ctx context.Context, path string, mode uint32) error
	Sync(ctx context.Context, populate bool) error
	RunAutoSync(ctx context.Context, interval time.Duration) error
}

// DefaultMaxReadSize bounds a single Read when no limit is configured.
const DefaultMaxReadSize = 16 << 20

// syscallService serialises every call on one mutex; vfs.FS itself does no
// locking.
type syscallService struct {
	mu          sync.Mutex
	fs          *vfs.FS
	maxReadSize int
}

// NewSyscallService wraps fs. Reads longer than maxReadSize fail with EINVAL;
// zero or less means DefaultMaxReadSize.
func NewSyscallService(fs *vfs.FS, maxReadSize int) SyscallService {
	if maxReadSize <= 0 {
		maxReadSize = DefaultMaxReadSize
	}
	return &syscallService{fs: fs, maxReadSize: maxReadSize}
}

func (s *syscallService) Open(ctx context.Context, path string, flags int, mode uint32) (int, error) {
	const op = "service.syscallService.Open"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Open", slog.String("path", path), slog.Int("flags", flags), slog.Uint64("mode", uint64(mode)))

	s.mu.Lock()
	defer s.mu.Unlock()

	stream, err := s.fs.Open(path, flags, vfs.Mode(mode))
	if err != nil {
		return 0, fail(logger, op, err)
	}

	logger.Debug("Opened", slog.String("path", stream.Path), slog.Int("fd", stream.FD()))
	return stream.FD(), nil
}

func (s *syscallService) Close(ctx context.Context, fd int) error {
	const op = "service.syscallService.Close"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Close", slog.Int("fd", fd))

	s.mu.Lock()
	defer s.mu.Unlock()

	stream, err := s.fs.GetStreamChecked(fd)
	if err != nil {
		return fail(logger, op, err)
	}
	if err := s.fs.Close(stream); err != nil {
		return fail(logger, op, err)
	}

	return nil
}

// Read reads at the stream position, or at *offset without moving it.
func (s *syscallService) Read(ctx context.Context, fd int, length int, offset *int64) ([]byte, error) {
	const op = "service.syscallService.Read"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Read", slog.Int("fd", fd), slog.Int("length", length))

	if length < 0 || length > s.maxReadSize {
		return nil, fail(logger, op, vfs.NewError(vfs.EINVAL))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream, err := s.fs.GetStreamChecked(fd)
	if err != nil {
		return nil, fail(logger, op, err)
	}

	buf := make([]byte, length)
	var n int
	if offset != nil {
		n, err = s.fs.Pread(stream, buf, 0, length, *offset)
	} else {
		n, err = s.fs.Read(stream, buf, 0, length)
	}
	if err != nil {
		return nil, fail(logger, op, err)
	}

	logger.Debug("Read successful", slog.Int("fd", fd), slog.Int("bytes_read", n))
	return buf[:n], nil
}

// Write writes at the stream position, or at *offset without moving it.
func (s *syscallService) Write(ctx context.Context, fd int, data []byte, offset *int64) (int, error) {
	const op = "service.syscallService.Write"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Write", slog.Int("fd", fd), slog.Int("length", len(data)))

	s.mu.Lock()
	defer s.mu.Unlock()

	stream, err := s.fs.GetStreamChecked(fd)
	if err != nil {
		return 0, fail(logger, op, err)
	}

	var n int
	if offset != nil {
		n, err = s.fs.Pwrite(stream, data, 0, len(data), *offset)
	} else {
		n, err = s.fs.Write(stream, data, 0, len(data))
	}
	if err != nil {
		return 0, fail(logger, op, err)
	}

	logger.Debug("Write successful", slog.Int("fd", fd), slog.Int("bytes_written", n))
	return n, nil
}

func (s *syscallService) Seek(ctx context.Context, fd int, offset int64, whence int) (int64, error) {
	const op = "service.syscallService.Seek"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Seek", slog.Int("fd", fd), slog.Int64("offset", offset), slog.Int("whence", whence))

	s.mu.Lock()
	defer s.mu.Unlock()

	stream, err := s.fs.GetStreamChecked(fd)
	if err != nil {
		return 0, fail(logger, op, err)
	}
	pos, err := s.fs.Llseek(stream, offset, whence)
	if err != nil {
		return 0, fail(logger, op, err)
	}

	return pos, nil
}

func (s *syscallService) Mkdir(ctx context.Context, path string, mode uint32) error {
	const op = "service.syscallService.Mkdir"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Mkdir", slog.String("path", path), slog.Uint64("mode", uint64(mode)))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.fs.Mkdir(path, vfs.Mode(mode)); err != nil {
		return fail(logger, op, err)
	}

	return nil
}

func (s *syscallService) Rmdir(ctx context.Context, path string) error {
	const op = "service.syscallService.Rmdir"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Rmdir", slog.String("path", path))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Rmdir(path); err != nil {
		return fail(logger, op, err)
	}

	return nil
}

func (s *syscallService) Unlink(ctx context.Context, path string) error {
	const op = "service.syscallService.Unlink"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Unlink", slog.String("path", path))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Unlink(path); err != nil {
		return fail(logger, op, err)
	}

	return nil
}

func (s *syscallService) Rename(ctx context.Context, oldPath, newPath string) error {
	const op = "service.syscallService.Rename"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Rename", slog.String("old_path", oldPath), slog.String("new_path", newPath))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Rename(oldPath, newPath); err != nil {
		return fail(logger, op, err)
	}

	return nil
}

func (s *syscallService) Symlink(ctx context.Context, target, linkpath string) error {
	const op = "service.syscallService.Symlink"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Symlink", slog.String("target", target), slog.String("linkpath", linkpath))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.fs.Symlink(target, linkpath); err != nil {
		return fail(logger, op, err)
	}

	return nil
}

func (s *syscallService) Readlink(ctx context.Context, path string) (string, error) {
	const op = "service.syscallService.Readlink"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Readlink", slog.String("path", path))

	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.fs.Readlink(path)
	if err != nil {
		return "", fail(logger, op, err)
	}

	return target, nil
}

func (s *syscallService) Stat(ctx context.Context, path string, follow bool) (*models.Stat, error) {
	const op = "service.syscallService.Stat"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Stat", slog.String("path", path), slog.Bool("follow", follow))

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		attr *vfs.Attr
		err  error
	)
	if follow {
		attr, err = s.fs.Stat(path)
	} else {
		attr, err = s.fs.Lstat(path)
	}
	if err != nil {
		return nil, fail(logger, op, err)
	}

	return &models.Stat{
		Dev:     attr.Dev,
		Ino:     attr.Ino,
		Mode:    uint32(attr.Mode),
		Nlink:   attr.Nlink,
		UID:     attr.UID,
		GID:     attr.GID,
		Rdev:    attr.Rdev,
		Size:    attr.Size,
		Blksize: attr.Blksize,
		Blocks:  attr.Blocks,
		Atime:   attr.Atime.UnixNano(),
		Mtime:   attr.Mtime.UnixNano(),
		Ctime:   attr.Ctime.UnixNano(),
	}, nil
}

func (s *syscallService) Readdir(ctx context.Context, path string) ([]models.Dirent, error) {
	const op = "service.syscallService.Readdir"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Readdir", slog.String("path", path))

	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.fs.Readdir(path)
	if err != nil {
		return nil, fail(logger, op, err)
	}

	dirents := make([]models.Dirent, 0, len(names))
	for _, name := range names {
		dirents = append(dirents, models.Dirent{Name: name})
	}

	return dirents, nil
}

func (s *syscallService) Truncate(ctx context.Context, path string, length int64) error {
	const op = "service.syscallService.Truncate"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Truncate", slog.String("path", path), slog.Int64("length", length))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Truncate(path, length); err != nil {
		return fail(logger, op, err)
	}

	return nil
}

func (s *syscallService) Chmod(ctx context.Context, path string, mode uint32) error {
	const op = "service.syscallService.Chmod"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Chmod", slog.String("path", path), slog.Uint64("mode", uint64(mode)))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Chmod(path, vfs.Mode(mode)); err != nil {
		return fail(logger, op, err)
	}

	return nil
}

// Sync runs SyncFS and waits for it. The lock is held until every driver has
// reported back, even when ctx ends first or one driver already failed.
func (s *syscallService) Sync(ctx context.Context, populate bool) error {
	const op = "service.syscallService.Sync"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Sync", slog.Bool("populate", populate))

	s.mu.Lock()

	result := make(chan error, 1)
	s.fs.SyncFS(populate, func(err error) { result <- err })

	select {
	case err := <-result:
		s.fs.WaitSyncFS()
		s.mu.Unlock()
		if err != nil {
			return fail(logger, op, err)
		}
		logger.Debug("Sync finished")
		return nil
	case <-ctx.Done():
		go func() {
			<-result
			s.fs.WaitSyncFS()
			s.mu.Unlock()
		}()
		logger.Warn("Sync still running after context ended", slogext.Err(ctx.Err()))
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

// RunAutoSync saves the tree every interval until ctx ends. Failed syncs are
// logged and retried on the next tick.
func (s *syscallService) RunAutoSync(ctx context.Context, interval time.Duration) error {
	const op = "service.syscallService.RunAutoSync"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Info("Auto sync started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Auto sync stopped")
			return nil
		case <-ticker.C:
			if err := s.Sync(ctx, false); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Auto sync failed", slogext.Err(err))
			}
		}
	}
}

// fail turns a file system error into a *ServiceError carrying its errno and
// wraps anything else with op.
func fail(logger *slog.Logger, op string, err error) error {
	var errnoErr *vfs.ErrnoError
	if errors.As(err, &errnoErr) {
		logger.Debug("Syscall failed", slogext.Errno(errnoErr.Errno))
		return &ServiceError{Code: errnoErr.Errno, Message: errnoErr.Errno.String()}
	}

	logger.Error("Syscall failed", slogext.Err(err))
	return fmt.Errorf("%s: %w", op, err)
}

type ServiceError struct {
	Code    kerrors.Errno
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) GetCode() kerrors.Errno {
	return e.Code
}

package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/S1riyS/guestvfs/internal/pkg/kerrors"
	"github.com/S1riyS/guestvfs/internal/service"
	"github.com/S1riyS/guestvfs/pkg/binary"
	"github.com/S1riyS/guestvfs/pkg/logging"
	"github.com/S1riyS/guestvfs/pkg/logging/slogext"
)

type Handler struct {
	service service.SyscallService
}

func NewHandler(service service.SyscallService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	const op = "handler.HandleOpen"

	if !allowGet(w, r) {
		return
	}

	query := r.URL.Query()
	path := query.Get("path")
	flags, err1 := parseInt(query.Get("flags"), 0)
	mode, err2 := parseUint32(query.Get("mode"), 0)
	if path == "" || err1 != nil || err2 != nil {
		writeCode(w, op, kerrors.EINVAL)
		return
	}

	fd, err := h.service.Open(ctx, path, int(flags), mode)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	binary.WriteResponse(w, int64(fd), nil)
}

func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	const op = "handler.HandleClose"

	if !allowGet(w, r) {
		return
	}

	fd, err := parseInt(r.URL.Query().Get("fd"), -1)
	if err != nil || fd < 0 {
		writeCode(w, op, kerrors.EBADF)
		return
	}

	if err := h.service.Close(ctx, int(fd)); err != nil {
		writeError(w, r, op, err)
		return
	}

	binary.WriteResponse(w, 0, nil)
}

// HandleRead answers with the byte count as code and the bytes as payload.
// With offset it reads positionally.
func (h *Handler) HandleRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	const op = "handler.HandleRead"

	if !allowGet(w, r) {
		return
	}

	query := r.URL.Query()
	fd, err1 := parseInt(query.Get("fd"), -1)
	length, err2 := parseInt(query.Get("len"), -1)
	offset, err3 := parseOptionalInt(query.Get("offset"))
	if err1 != nil || err2 != nil || err3 != nil || fd < 0 || length < 0 {
		writeCode(w, op, kerrors.EINVAL)
		return
	}

	data, err := h.service.Read(ctx, int(fd), int(length), offset)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	binary.WriteResponse(w, int64(len(data)), data)
}

// HandleWrite takes the bytes base64 encoded in data and answers with the
// byte count.
func (h *Handler) HandleWrite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	const op = "handler.HandleWrite"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	if !allowGet(w, r) {
		return
	}

	query := r.URL.Query()
	fd, err1 := parseInt(query.Get("fd"), -1)
	offset, err2 := parseOptionalInt(query.Get("offset"))
	if err1 != nil || err2 != nil || fd < 0 {
		writeCode(w, op, kerrors.EINVAL)
		return
	}

	data, err := base64.StdEncoding.DecodeString(query.Get("data"))
	if err != nil {
		logger.Warn("Failed to decode base64 data", slogext.Err(err))
		writeCode(w, op, kerrors.EINVAL)
		return
	}

	written, err := h.service.Write(ctx, int(fd), data, offset)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	binary.WriteResponse(w, int64(written), nil)
}

func (h *Handler) HandleSeek(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	const op = "handler.HandleSeek"

	if !allowGet(w, r) {
		return
	}

	query := r.URL.Query()
	fd, err1 := parseInt(query.Get("fd"), -1)
	offset, err2 := parseInt(query.Get("offset"), 0)
	whence, err3 := parseInt(query.Get("whence"), 0)
	if err1 != nil || err2 != nil || err3 != nil || fd < 0 {
		writeCode(w, op, kerrors.EINVAL)
		return
	}

	pos, err := h.service.Seek(ctx, int(fd), offset, int(whence))
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	binary.WriteResponse(w, pos, nil)
}

func (h *Handler) HandleMkdir(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	const op = "handler.HandleMkdir"

	if !allowGet(w, r) {
		return
	}

	path := r.URL.Query().Get("path")
	mode, err := parseUint32(r.URL.Query().Get("mode"), 0)
	if path == "" || err != nil {
		writeCode(w, op, kerrors.EINVAL)
		return
	}

	if err := h.service.Mkdir(ctx, path, mode); err != nil {
		writeError(w, r, op, err)
		return
	}

	binary.WriteResponse(w, 0, nil)
}

func (h *Handler) HandleRmdir(w http.ResponseWriter, r *http.Request) {
	h.handlePath(w, r, "handler.HandleRmdir", h.service.Rmdir)
}

func (h *Handler) HandleUnlink(w http.ResponseWriter, r *http.Request) {
	h.handlePath(w, r, "handler.HandleUnlink", h.service.Unlink)
}

func (h *Handler) HandleRename(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	const op = "handler.HandleRename"

	if !allowGet(w, r) {
		return
	}

	oldPath := r.URL.Query().Get("old")
	newPath := r.URL.Query().Get("new")
	if oldPath == "" || newPath == "" {
		writeCode(w, op, kerrors.EINVAL)
		return
	}

	if err := h.service.Rename(ctx, oldPath, newPath); err != nil {
		writeError(w, r, op, err)
		return
	}

	binary.WriteResponse(w, 0, nil)
}

func (h *Handler) HandleSymlink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	const op = "handler.HandleSymlink"

	if !allowGet(w, r) {
		return
	}

	target := r.URL.Query().Get("target")
	linkpath := r.URL.Query().Get("path")
	if linkpath == "" {
		writeCode(w, op, kerrors.EINVAL)
		return
	}

	if err := h.service.Symlink(ctx, target, linkpath); err != nil {
		writeError(w, r, op, err)
		return
	}

	binary.WriteResponse(w, 0, nil)
}

func (h *Handler) HandleReadlink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	const op = "handler.HandleReadlink"

	if !allowGet(w, r) {
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		writeCode(w, op, kerrors.EINVAL)
		return
	}

	target, err := h.service.Readlink(ctx, path)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	binary.WriteResponse(w, int64(len(target)), []byte(target))
}

// HandleStat follows a final symlink unless nofollow=1.
func (h *Handler) HandleStat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	const op = "handler.HandleStat"

	if !allowGet(w, r) {
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		writeCode(w, op, kerrors.EINVAL)
		return
	}
	follow := r.URL.Query().Get("nofollow") != "1"

	stat, err := h.service.Stat(ctx, path, follow)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	data, err := binary.EncodeStat(stat)
	if err != nil {
		writeCode(w, op, kerrors.ENOMEM)
		return
	}

	binary.WriteResponse(w, 0, data)
}

func (h *Handler) HandleReaddir(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	const op = "handler.HandleReaddir"

	if !allowGet(w, r) {
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		writeCode(w, op, kerrors.EINVAL)
		return
	}

	dirents, err := h.service.Readdir(ctx, path)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	data, err := binary.EncodeDirents(dirents)
	if err != nil {
		writeCode(w, op, kerrors.ENAMETOOLONG)
		return
	}

	binary.WriteResponse(w, 0, data)
}

func (h *Handler) HandleTruncate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	const op = "handler.HandleTruncate"

	if !allowGet(w, r) {
		return
	}

	path := r.URL.Query().Get("path")
	length, err := parseInt(r.URL.Query().Get("len"), -1)
	if path == "" || err != nil {
		writeCode(w, op, kerrors.EINVAL)
		return
	}

	if err := h.service.Truncate(ctx, path, length); err != nil {
		writeError(w, r, op, err)
		return
	}

	binary.WriteResponse(w, 0, nil)
}

func (h *Handler) HandleChmod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	const op = "handler.HandleChmod"

	if !allowGet(w, r) {
		return
	}

	path := r.URL.Query().Get("path")
	mode, err := parseUint32(r.URL.Query().Get("mode"), 0)
	if path == "" || err != nil {
		writeCode(w, op, kerrors.EINVAL)
		return
	}

	if err := h.service.Chmod(ctx, path, mode); err != nil {
		writeError(w, r, op, err)
		return
	}

	binary.WriteResponse(w, 0, nil)
}

// HandleSync saves the tree, or reloads it with populate=1.
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	const op = "handler.HandleSync"

	if !allowGet(w, r) {
		return
	}

	populate := r.URL.Query().Get("populate") == "1"
	if err := h.service.Sync(ctx, populate); err != nil {
		writeError(w, r, op, err)
		return
	}

	binary.WriteResponse(w, 0, nil)
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	response := `{"status":"ok","service":"guestvfs"}`
	w.Write([]byte(response))
}

func (h *Handler) handlePath(w http.ResponseWriter, r *http.Request, op string, call func(ctx context.Context, path string) error) {
	if !allowGet(w, r) {
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		writeCode(w, op, kerrors.EINVAL)
		return
	}

	if err := call(r.Context(), path); err != nil {
		writeError(w, r, op, err)
		return
	}

	binary.WriteResponse(w, 0, nil)
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeCode(w http.ResponseWriter, op string, code kerrors.Errno) {
	syscallErrors.WithLabelValues(op, code.String()).Inc()
	binary.WriteResponse(w, code.Neg(), nil)
}

func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := mapErrorToCode(err)
	if code == kerrors.EIO {
		logging.GetLoggerFromContextWithOp(r.Context(), op).Error("Request failed", slogext.Err(err))
	}
	writeCode(w, op, code)
}

func mapErrorToCode(err error) kerrors.Errno {
	var serviceErr *service.ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code
	}
	// Anything that is not an errno is an I/O failure for the guest
	return kerrors.EIO
}

func parseInt(s string, def int64) (int64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func parseOptionalInt(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// parseUint32 accepts decimal or 0-prefixed octal modes.
func parseUint32(s string, def uint32) (uint32, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

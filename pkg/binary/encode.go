package binary

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/http"

	"github.com/S1riyS/guestvfs/internal/models"
)

// NameSize is the fixed width of a dirent name, NUL padded.
const NameSize = 256

func EncodeStat(stat *models.Stat) ([]byte, error) {
	buf := new(bytes.Buffer)

	// fields in declaration order, little endian, no padding
	fields := []any{
		stat.Dev,
		stat.Ino,
		stat.Mode,
		stat.Nlink,
		stat.UID,
		stat.GID,
		stat.Rdev,
		stat.Size,
		stat.Blksize,
		stat.Blocks,
		stat.Atime,
		stat.Mtime,
		stat.Ctime,
	}
	for _, field := range fields {
		if err := binary.Write(buf, binary.LittleEndian, field); err != nil {
			return nil, fmt.Errorf("failed to encode stat: %w", err)
		}
	}

	return buf.Bytes(), nil
}

func EncodeDirents(dirents []models.Dirent) ([]byte, error) {
	buf := new(bytes.Buffer)

	// count (uint32, 4 bytes)
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(dirents))); err != nil {
		return nil, fmt.Errorf("failed to encode dirent count: %w", err)
	}

	for _, dirent := range dirents {
		if len(dirent.Name) >= NameSize {
			return nil, fmt.Errorf("dirent name too long: %d bytes", len(dirent.Name))
		}

		// name (char[256], null-terminated, padded with zeros)
		nameBytes := make([]byte, NameSize)
		copy(nameBytes, dirent.Name)
		if _, err := buf.Write(nameBytes); err != nil {
			return nil, fmt.Errorf("failed to encode name: %w", err)
		}
	}

	return buf.Bytes(), nil
}

func WriteResponse(w http.ResponseWriter, code int64, data []byte) error {
	response := new(bytes.Buffer)

	// Return code (int64, 8 bytes)
	if err := binary.Write(response, binary.LittleEndian, code); err != nil {
		return fmt.Errorf("failed to write response code: %w", err)
	}

	// Payload, if any
	if data != nil {
		if _, err := response.Write(data); err != nil {
			return fmt.Errorf("failed to write response data: %w", err)
		}
	}

	body := response.Bytes()

	// Set headers
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(body)))
	w.WriteHeader(http.StatusOK)

	_, err := w.Write(body)
	return err
}

func WriteInt64Response(w http.ResponseWriter, code int64, value int64) error {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, value); err != nil {
		return err
	}
	return WriteResponse(w, code, buf.Bytes())
}

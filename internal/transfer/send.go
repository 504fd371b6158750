package transfer

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

// BeginSend starts sending the file at path over conn and returns the new
// transfer id. The manifest and chunks are emitted by a worker; BeginSend
// itself only fails for reuse of the session or when the file cannot be
// opened, in which case the session is already Failed.
func (s *Session) BeginSend(path string, conn Conn) (string, error) {
	id := uuid.NewString()
	if err := s.begin(ModeSend, id); err != nil {
		return "", err
	}

	file, size, err := openSource(path)
	if err != nil {
		s.fail(err)
		return id, err
	}

	name := filepath.Base(path)
	if err := validateFileName(name); err != nil {
		file.Close()
		s.fail(err)
		return id, err
	}

	m := protocol.Manifest{
		TransferID: id,
		FileName:   name,
		TotalBytes: size,
		ChunkSize:  s.cfg.ChunkSize,
		ChunkCount: protocol.ChunkCountFor(size, s.cfg.ChunkSize),
	}

	s.mu.Lock()
	s.manifest = m
	s.mu.Unlock()

	s.log.Infow("transfer", "status", "sending", "transfer_id", id, "file", name, "bytes", size, "chunks", m.ChunkCount)
	s.exec.Go(func() {
		s.runSend(file, path, conn)
	})
	return id, nil
}

func openSource(path string) (*os.File, uint64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, &IOError{Op: "open", Err: err}
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, &IOError{Op: "stat", Err: err}
	}
	if info.IsDir() {
		file.Close()
		return nil, 0, &IOError{Op: "open", Err: ErrInvalidFileName}
	}

	return file, uint64(info.Size()), nil
}

// runSend emits the manifest followed by every chunk in order. A failed
// chunk is not retried.
func (s *Session) runSend(file *os.File, path string, conn Conn) {
	defer file.Close()

	m := s.manifest
	if err := conn.Send(protocol.NewManifestFrame(m)); err != nil {
		s.fail(&IOError{Op: "send manifest", Err: err})
		return
	}

	size := uint64(m.ChunkSize)
	remaining := m.TotalBytes
	var index uint64

	for remaining > 0 {
		n := size
		if remaining < n {
			n = remaining
		}

		start := time.Now()
		payload := make([]byte, n)
		if _, err := io.ReadFull(file, payload); err != nil {
			s.fail(&IOError{Op: "read", Err: err})
			return
		}

		chunk := protocol.Chunk{
			TransferID: m.TransferID,
			FileName:   m.FileName,
			Index:      index,
			Payload:    payload,
		}
		if err := conn.Send(protocol.NewChunkFrame(chunk)); err != nil {
			s.fail(&IOError{Op: "send chunk", Err: err})
			return
		}

		remaining -= n
		index++
		s.progress(s.advance(n), time.Since(start))
	}

	s.complete(path)
}

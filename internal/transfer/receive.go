package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

const maxFileNameLength = 255

// BeginReceive starts reassembling the transfer described by m. Chunks are
// fed with Offer. The file is written under the configured download
// directory and renamed to its final name once every byte has arrived.
func (s *Session) BeginReceive(m protocol.Manifest) (string, error) {
	if err := s.begin(ModeReceive, m.TransferID); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.manifest = m
	s.mu.Unlock()

	if err := m.Validate(); err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidManifest, err)
		s.fail(err)
		return m.TransferID, err
	}
	if err := validateFileName(m.FileName); err != nil {
		s.fail(err)
		return m.TransferID, err
	}

	if err := os.MkdirAll(s.cfg.DownloadDir, 0o755); err != nil {
		ioErr := &IOError{Op: "create download dir", Err: err}
		s.fail(ioErr)
		return m.TransferID, ioErr
	}

	partPath := filepath.Join(s.cfg.DownloadDir, m.TransferID+".part")
	file, err := os.Create(partPath)
	if err != nil {
		ioErr := &IOError{Op: "create", Err: err}
		s.fail(ioErr)
		return m.TransferID, ioErr
	}

	s.log.Infow("transfer", "status", "receiving", "transfer_id", m.TransferID, "file", m.FileName,
		"bytes", m.TotalBytes, "chunks", m.ChunkCount)
	s.exec.Go(func() {
		s.runReceive(file, partPath)
	})
	return m.TransferID, nil
}

// Offer queues an inbound chunk. It never blocks on the consumer.
func (s *Session) Offer(c protocol.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != ModeReceive || c.TransferID != s.id {
		return ErrUnknownTransfer
	}
	if s.state != StateActive {
		return ErrSessionFinished
	}

	s.queue.Offer(c)
	return nil
}

// runReceive drains the queue into the part file. Every empty poll feeds
// the watchdog; a chunk resets it.
func (s *Session) runReceive(file *os.File, partPath string) {
	m := s.manifest
	remaining := m.TotalBytes
	dog := NewWatchdog(s.cfg.IdleLimit)
	var next uint64

	for remaining > 0 {
		chunk, ok := s.queue.Poll(s.cfg.PollInterval)
		if !ok {
			if dog.Idle() {
				s.abort(file, partPath, &TimeoutError{Remaining: remaining, Total: m.TotalBytes})
				return
			}
			continue
		}
		dog.Reset()

		if chunk.Index != next {
			s.abort(file, partPath, fmt.Errorf("%w: got index %d, want %d", ErrChunkOutOfOrder, chunk.Index, next))
			return
		}

		n := uint64(len(chunk.Payload))
		if want := m.ExpectedChunkLen(next); n != want {
			s.abort(file, partPath, fmt.Errorf("%w: chunk %d has %d bytes, want %d", ErrChunkSize, next, n, want))
			return
		}

		start := time.Now()
		if _, err := file.Write(chunk.Payload); err != nil {
			s.abort(file, partPath, &IOError{Op: "write", Err: err})
			return
		}

		remaining -= n
		next++
		s.progress(s.advance(n), time.Since(start))
	}

	if err := file.Close(); err != nil {
		os.Remove(partPath)
		s.fail(&IOError{Op: "close", Err: err})
		return
	}

	finalPath := filepath.Join(s.cfg.DownloadDir, m.FileName)
	if err := os.Rename(partPath, finalPath); err != nil {
		os.Remove(partPath)
		s.fail(&IOError{Op: "rename", Err: err})
		return
	}

	s.complete(finalPath)
}

// abort releases the file handle, deletes the partial file and fails.
func (s *Session) abort(file *os.File, partPath string, err error) {
	file.Close()
	if rmErr := os.Remove(partPath); rmErr != nil && !os.IsNotExist(rmErr) {
		s.log.Warnw("transfer", "error", "remove partial file", "path", partPath, "cause", rmErr)
	}
	s.fail(err)
}

// validateFileName rejects names that could escape the download directory.
func validateFileName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidFileName, name)
	case len(name) > maxFileNameLength:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidFileName, maxFileNameLength)
	}
	return nil
}

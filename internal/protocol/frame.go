// Package protocol defines the frames exchanged between relaychat clients and
// the server over a single websocket connection. Chat traffic and file
// transfer frames share the connection; every frame is one JSON object.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the frame format version carried in every frame.
const Version = 1

// FrameType identifies what a frame carries.
type FrameType string

const (
	// TypeChat is an ordinary chat message.
	TypeChat FrameType = "chat"
	// TypeCommand is a client or server command.
	TypeCommand FrameType = "command"
	// TypeNotice is a server announcement.
	TypeNotice FrameType = "notice"
	// TypeManifest announces a file transfer before any chunk is sent.
	TypeManifest FrameType = "manifest"
	// TypeChunk carries one slice of a file.
	TypeChunk FrameType = "chunk"
)

var (
	// ErrInvalidFrame indicates a frame that is structurally wrong for its type.
	ErrInvalidFrame = errors.New("invalid frame")
	// ErrUnsupportedVersion indicates a frame from a newer or unknown protocol version.
	ErrUnsupportedVersion = errors.New("unsupported frame version")
)

// Manifest identifies a transfer and its size. It is immutable once sent.
type Manifest struct {
	TransferID string `json:"transfer_id"`
	FileName   string `json:"file_name"`
	TotalBytes uint64 `json:"total_bytes"`
	ChunkSize  uint32 `json:"chunk_size"`
	ChunkCount uint64 `json:"chunk_count"`
}

// ChunkCountFor returns ceil(total/chunkSize) without overflowing near
// math.MaxUint64.
func ChunkCountFor(total uint64, chunkSize uint32) uint64 {
	if chunkSize == 0 {
		return 0
	}
	size := uint64(chunkSize)
	count := total / size
	if total%size != 0 {
		count++
	}
	return count
}

// ExpectedChunkLen returns the payload length chunk index must have.
func (m Manifest) ExpectedChunkLen(index uint64) uint64 {
	size := uint64(m.ChunkSize)
	if index+1 < m.ChunkCount {
		return size
	}
	if rem := m.TotalBytes % size; rem != 0 {
		return rem
	}
	return size
}

// Validate checks the manifest's internal consistency.
func (m Manifest) Validate() error {
	if m.TransferID == "" {
		return fmt.Errorf("%w: manifest without transfer id", ErrInvalidFrame)
	}
	if m.FileName == "" {
		return fmt.Errorf("%w: manifest without file name", ErrInvalidFrame)
	}
	if m.ChunkSize == 0 {
		return fmt.Errorf("%w: manifest chunk size is zero", ErrInvalidFrame)
	}
	if want := ChunkCountFor(m.TotalBytes, m.ChunkSize); m.ChunkCount != want {
		return fmt.Errorf("%w: manifest chunk count %d, want %d", ErrInvalidFrame, m.ChunkCount, want)
	}
	return nil
}

// Chunk is one ordered slice of a transfer. Index starts at zero.
type Chunk struct {
	TransferID string `json:"transfer_id"`
	FileName   string `json:"file_name"`
	Index      uint64 `json:"index"`
	Payload    []byte `json:"payload"`
}

// Frame is the unit written to and read from a connection.
type Frame struct {
	V        int       `json:"v"`
	Type     FrameType `json:"type"`
	From     string    `json:"from,omitempty"`
	Room     string    `json:"room,omitempty"`
	Content  string    `json:"content,omitempty"`
	Manifest *Manifest `json:"manifest,omitempty"`
	Chunk    *Chunk    `json:"chunk,omitempty"`
}

// NewChat builds a chat frame.
func NewChat(content string) Frame {
	return Frame{V: Version, Type: TypeChat, Content: content}
}

// NewCommand builds a command frame.
func NewCommand(content string) Frame {
	return Frame{V: Version, Type: TypeCommand, Content: content}
}

// NewNotice builds a server announcement frame.
func NewNotice(content string) Frame {
	return Frame{V: Version, Type: TypeNotice, From: "SERVER", Content: content}
}

// NewManifestFrame wraps a manifest.
func NewManifestFrame(m Manifest) Frame {
	return Frame{V: Version, Type: TypeManifest, Manifest: &m}
}

// NewChunkFrame wraps a chunk.
func NewChunkFrame(c Chunk) Frame {
	return Frame{V: Version, Type: TypeChunk, Chunk: &c}
}

// IsTransfer reports whether the frame belongs to a file transfer.
func (f Frame) IsTransfer() bool {
	return f.Type == TypeManifest || f.Type == TypeChunk
}

// TransferID returns the transfer the frame belongs to, or "".
func (f Frame) TransferID() string {
	switch {
	case f.Manifest != nil:
		return f.Manifest.TransferID
	case f.Chunk != nil:
		return f.Chunk.TransferID
	}
	return ""
}

// Validate performs the per-type structural checks.
func (f Frame) Validate() error {
	if f.V != Version {
		return fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, f.V, Version)
	}

	switch f.Type {
	case TypeChat, TypeCommand, TypeNotice:
		return nil
	case TypeManifest:
		if f.Manifest == nil {
			return fmt.Errorf("%w: manifest frame without manifest", ErrInvalidFrame)
		}
		return f.Manifest.Validate()
	case TypeChunk:
		if f.Chunk == nil {
			return fmt.Errorf("%w: chunk frame without chunk", ErrInvalidFrame)
		}
		if f.Chunk.TransferID == "" {
			return fmt.Errorf("%w: chunk without transfer id", ErrInvalidFrame)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidFrame, f.Type)
	}
}

// Encode marshals a frame.
func Encode(f Frame) ([]byte, error) {
	if f.V == 0 {
		f.V = Version
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	return b, nil
}

// Decode unmarshals and validates one frame. Frames without a type are
// treated as the legacy {"content": "..."} chat message.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if f.Type == "" {
		f.Type = TypeChat
	}
	if f.V == 0 {
		f.V = Version
	}
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// DecodeBatch decodes a websocket message that may hold several frames
// separated by newlines. It stops at the first invalid frame.
func DecodeBatch(data []byte) ([]Frame, error) {
	var frames []Frame
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		f, err := Decode(line)
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

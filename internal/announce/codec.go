package announce

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	recordMagic   = "RCSM"
	recordVersion = 1

	maxRecordLength = 1 << 20
	maxIDLength     = 1<<16 - 1

	// recordOverhead is the fixed part of a record body: both length
	// prefixes and the schedule fields.
	recordOverhead = 2 + 4 + 1 + 4 + 1 + 1
	// MaxTextLength keeps any valid message, with an id of the largest
	// allowed size, within maxRecordLength.
	MaxTextLength = maxRecordLength - recordOverhead - maxIDLength
)

var (
	// ErrInvalidMagic indicates the data is not a schedule file.
	ErrInvalidMagic = errors.New("invalid schedule file magic")
	// ErrUnsupportedVersion indicates a schedule file written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported schedule format version")
	// ErrRecordTooLarge indicates a length prefix beyond the sanity limit.
	ErrRecordTooLarge = errors.New("schedule record too large")
)

// Encode writes the header followed by one length-prefixed record per message.
//
//	header: magic[4] version:u16 count:u32
//	record: length:u32 body[length]
func Encode(w io.Writer, msgs []Message) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(recordMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.BigEndian, uint16(recordVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.BigEndian, uint32(len(msgs))); err != nil {
		return err
	}

	for _, m := range msgs {
		body, err := EncodeRecord(m)
		if err != nil {
			return err
		}
		if err := binary.Write(bw, binary.BigEndian, uint32(len(body))); err != nil {
			return err
		}
		if _, err := bw.Write(body); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Decode reads what Encode wrote.
func Decode(r io.Reader) ([]Message, error) {
	magic := make([]byte, len(recordMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != recordMagic {
		return nil, ErrInvalidMagic
	}

	var version uint16
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version != recordVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}

	msgs := make([]Message, 0, minInt(int(count), 1024))
	for i := uint32(0); i < count; i++ {
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, fmt.Errorf("read record %d length: %w", i, err)
		}
		if length > maxRecordLength {
			return nil, fmt.Errorf("%w: record %d is %d bytes", ErrRecordTooLarge, i, length)
		}

		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("read record %d: %w", i, err)
		}

		m, err := DecodeRecord(body)
		if err != nil {
			return nil, fmt.Errorf("decode record %d: %w", i, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// EncodeRecord serializes a single message body:
//
//	idLen:u16 id textLen:u32 text mode:u8 every:u32 hour:u8 minute:u8
func EncodeRecord(m Message) ([]byte, error) {
	if len(m.ID) > maxIDLength {
		return nil, fmt.Errorf("%w: id longer than %d bytes", ErrInvalidMessage, maxIDLength)
	}
	if size := recordOverhead + len(m.ID) + len(m.Text); size > maxRecordLength {
		return nil, fmt.Errorf("%w: record of %d bytes exceeds %d", ErrRecordTooLarge, size, maxRecordLength)
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint16(len(m.ID)))
	buf.WriteString(m.ID)
	binary.Write(&buf, binary.BigEndian, uint32(len(m.Text)))
	buf.WriteString(m.Text)
	buf.WriteByte(byte(m.Mode))
	binary.Write(&buf, binary.BigEndian, uint32(m.EveryMinutes))
	buf.WriteByte(byte(m.Hour))
	buf.WriteByte(byte(m.Minute))
	return buf.Bytes(), nil
}

// DecodeRecord parses a body produced by EncodeRecord.
func DecodeRecord(body []byte) (Message, error) {
	r := bytes.NewReader(body)
	var m Message

	var idLen uint16
	if err := binary.Read(r, binary.BigEndian, &idLen); err != nil {
		return m, fmt.Errorf("read id length: %w", err)
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(r, id); err != nil {
		return m, fmt.Errorf("read id: %w", err)
	}

	var textLen uint32
	if err := binary.Read(r, binary.BigEndian, &textLen); err != nil {
		return m, fmt.Errorf("read text length: %w", err)
	}
	if int64(textLen) > int64(r.Len()) {
		return m, fmt.Errorf("read text: %w", io.ErrUnexpectedEOF)
	}
	text := make([]byte, textLen)
	if _, err := io.ReadFull(r, text); err != nil {
		return m, fmt.Errorf("read text: %w", err)
	}

	var fixed struct {
		Mode   uint8
		Every  uint32
		Hour   uint8
		Minute uint8
	}
	if err := binary.Read(r, binary.BigEndian, &fixed); err != nil {
		return m, fmt.Errorf("read schedule: %w", err)
	}

	m.ID = string(id)
	m.Text = string(text)
	m.Mode = Mode(fixed.Mode)
	m.EveryMinutes = int(fixed.Every)
	m.Hour = int(fixed.Hour)
	m.Minute = int(fixed.Minute)
	return m, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

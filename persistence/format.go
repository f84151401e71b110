// Package persistence frames snapshot payloads for blob storage. Every blob
// carries a fixed envelope so a reader can validate what it loaded before
// decoding it:
//
//	magic "QVGO" | format version u32 | codec name | compression u8 |
//	owner version u64 | payload len u32 | payload | CRC32 (IEEE)
//
// All integers are big-endian. The checksum covers everything before it.
package persistence

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Magic identifies a snapshot blob.
const Magic = "QVGO"

// FormatVersion is bumped on incompatible envelope changes.
const FormatVersion uint32 = 1

// maxCodecNameLen bounds the codec name field during decode.
const maxCodecNameLen = 64

// Compression selects the payload compression scheme.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ErrCorruptSnapshot reports a blob that failed envelope validation.
var ErrCorruptSnapshot = errors.New("persistence: corrupt snapshot")

// Envelope is the decoded framing around a snapshot payload.
type Envelope struct {
	CodecName   string
	Compression Compression
	Version     uint64
	Payload     []byte
}

// Encode frames payload into a blob.
func Encode(payload []byte, codecName string, compression Compression, version uint64) ([]byte, error) {
	if len(codecName) == 0 || len(codecName) > maxCodecNameLen {
		return nil, fmt.Errorf("persistence: invalid codec name %q", codecName)
	}

	compressed, err := compress(payload, compression)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(Magic) + 4 + 1 + len(codecName) + 1 + 8 + 4 + len(compressed) + 4)

	buf.WriteString(Magic)
	writeU32(&buf, FormatVersion)
	buf.WriteByte(byte(len(codecName)))
	buf.WriteString(codecName)
	buf.WriteByte(byte(compression))
	writeU64(&buf, version)
	writeU32(&buf, uint32(len(compressed)))
	buf.Write(compressed)

	sum := crc32.ChecksumIEEE(buf.Bytes())
	writeU32(&buf, sum)

	return buf.Bytes(), nil
}

// Decode validates a blob and returns its envelope with the payload
// decompressed. Any framing or checksum failure wraps ErrCorruptSnapshot.
func Decode(data []byte) (*Envelope, error) {
	if len(data) < len(Magic)+4+1+1+8+4+4 {
		return nil, fmt.Errorf("%w: truncated blob (%d bytes)", ErrCorruptSnapshot, len(data))
	}

	body, trailer := data[:len(data)-4], data[len(data)-4:]
	if got, want := crc32.ChecksumIEEE(body), binary.BigEndian.Uint32(trailer); got != want {
		return nil, fmt.Errorf("%w: checksum mismatch (got %08x, want %08x)", ErrCorruptSnapshot, got, want)
	}

	r := bytes.NewReader(body)

	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != Magic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptSnapshot)
	}

	var formatVersion uint32
	if err := binary.Read(r, binary.BigEndian, &formatVersion); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if formatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrCorruptSnapshot, formatVersion)
	}

	nameLen, err := r.ReadByte()
	if err != nil || nameLen == 0 || int(nameLen) > maxCodecNameLen {
		return nil, fmt.Errorf("%w: bad codec name length", ErrCorruptSnapshot)
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	compByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	compression := Compression(compByte)
	if compression > CompressionZstd {
		return nil, fmt.Errorf("%w: unknown compression %d", ErrCorruptSnapshot, compByte)
	}

	var version uint64
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	var payloadLen uint32
	if err := binary.Read(r, binary.BigEndian, &payloadLen); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if int(payloadLen) != r.Len() {
		return nil, fmt.Errorf("%w: payload length mismatch", ErrCorruptSnapshot)
	}

	compressed := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	payload, err := decompress(compressed, compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	return &Envelope{
		CodecName:   string(name),
		Compression: compression,
		Version:     version,
		Payload:     payload,
	}, nil
}

func compress(payload []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return payload, nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(payload); err != nil {
			return nil, fmt.Errorf("persistence: lz4 compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("persistence: lz4 compress: %w", err)
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		w, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("persistence: zstd compress: %w", err)
		}
		defer w.Close()
		return w.EncodeAll(payload, nil), nil
	default:
		return nil, fmt.Errorf("persistence: unknown compression %d", c)
	}
}

func decompress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		r := lz4.NewReader(bytes.NewReader(data))
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("persistence: lz4 decompress: %w", err)
		}
		return out, nil
	case CompressionZstd:
		r, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("persistence: zstd decompress: %w", err)
		}
		defer r.Close()
		out, err := r.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("persistence: zstd decompress: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("persistence: unknown compression %d", c)
	}
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

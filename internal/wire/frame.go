// Package wire implements the two length-delimited, strict-encoded
// binary protocols of spec.md §6: the provider import protocol
// (ExporterPub / ImporterReply) and the client RPC protocol
// (Request / Response).
package wire

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// MaxFrameSize is the hard ceiling on a frame's payload length
// (spec.md §6, 16 MiB). Services should configure a tighter limit via
// config.Config.MaxFrameSize. The 3-byte length prefix itself tops out
// at 0xffffff, one byte below this constant, and WriteFrame/ReadFrame
// reject anything longer than that regardless of the configured limit.
const MaxFrameSize = 16 * 1024 * 1024

// lenPrefixSize is the width of the frame length prefix: a 3-byte
// little-endian unsigned integer (spec.md §4.4/§6).
const lenPrefixSize = 3

// ErrFrameTooLarge is returned when a frame's declared length exceeds
// the configured maximum.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

// WriteFrame writes payload prefixed with its 3-byte little-endian
// length.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > 0xffffff {
		return ErrFrameTooLarge
	}
	var prefix [lenPrefixSize]byte
	putUint24LE(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return errors.Wrap(err, "wire: write frame length")
	}
	if _, err := w.Write(payload); err != nil {
		return errors.Wrap(err, "wire: write frame payload")
	}
	return nil
}

// ReadFrame reads one length-prefixed frame, rejecting any frame whose
// declared length exceeds maxSize.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	var prefix [lenPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := int(getUint24LE(prefix[:]))
	if n > maxSize || n > 0xffffff {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(err, "wire: read frame payload")
	}
	return payload, nil
}

func putUint24LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

func getUint24LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

// helpers shared by the message codecs below.

func writeU8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func readU8(r io.Reader) (uint8, error) {
	var b [1]byte
	_, err := io.ReadFull(r, b[:])
	return b[0], err
}

func writeU16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func writeU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// writeBlob writes a byte slice up to 255 bytes long, length-prefixed
// by a single byte (spec.md's blob<=255 / message<=255 shapes).
func writeBlob(w io.Writer, b []byte) error {
	if len(b) > 0xff {
		return errors.New("wire: blob exceeds 255 bytes")
	}
	if err := writeU8(w, uint8(len(b))); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	_, err := w.Write(b)
	return err
}

func readBlob(r io.Reader) ([]byte, error) {
	n, err := readU8(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeString(w io.Writer, s string) error { return writeBlob(w, []byte(s)) }

func readString(r io.Reader) (string, error) {
	b, err := readBlob(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// writeStringMap writes a map<string,string> as a u16 count followed
// by blob-encoded key/value pairs.
func writeStringMap(w io.Writer, m map[string]string) error {
	if err := writeU16(w, uint16(len(m))); err != nil {
		return err
	}
	for k, v := range m {
		if err := writeString(w, k); err != nil {
			return err
		}
		if err := writeString(w, v); err != nil {
			return err
		}
	}
	return nil
}

func readStringMap(r io.Reader) (map[string]string, error) {
	n, err := readU16(r)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, n)
	for i := 0; i < int(n); i++ {
		k, err := readString(r)
		if err != nil {
			return nil, err
		}
		v, err := readString(r)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

func writeFixed32(w io.Writer, b [32]byte) error {
	_, err := w.Write(b[:])
	return err
}

func readFixed32(r io.Reader) ([32]byte, error) {
	var b [32]byte
	_, err := io.ReadFull(r, b[:])
	return b, err
}

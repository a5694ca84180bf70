package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fantuned/fantuned/internal/fterrors"
)

// maxFrameBytes bounds a single frame's payload to guard against a
// malformed or hostile peer exhausting memory with a bogus length
// prefix.
const maxFrameBytes = 1 << 20 // 1 MiB

// writeFrame encodes v as JSON and writes it as one length-prefixed
// frame: a 4-byte little-endian length followed by that many bytes.
func writeFrame(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if len(data) > maxFrameBytes {
		return fmt.Errorf("%w: frame of %d bytes exceeds %d byte limit", fterrors.ErrFrameInvalid, len(data), maxFrameBytes)
	}

	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// readFrame reads one length-prefixed frame and decodes it into an
// Envelope. A non-positive or oversized length aborts the connection
// with fterrors.ErrFrameInvalid, per the framing contract.
func readFrame(r io.Reader) (Envelope, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Envelope{}, err
	}

	length := int32(binary.LittleEndian.Uint32(header[:]))
	if length <= 0 || length > maxFrameBytes {
		return Envelope{}, fmt.Errorf("%w: length %d", fterrors.ErrFrameInvalid, length)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Envelope{}, err
	}

	var env Envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", fterrors.ErrFrameInvalid, err)
	}
	return env, nil
}

func decodePayload(raw json.RawMessage, target interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: %v", fterrors.ErrFrameInvalid, err)
	}
	return nil
}

func encodePayload(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

package ipc

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/fantuned/fantuned/internal/fterrors"
	"github.com/stretchr/testify/assert"
)

func TestWriteReadFrame_RoundTrip(t *testing.T) {
	// GIVEN an envelope written into a buffer
	var buf bytes.Buffer
	sent := Envelope{Type: TypeGetStatus, Id: "req-1"}
	assert.NoError(t, writeFrame(&buf, sent))

	// WHEN it is read back
	got, err := readFrame(&buf)

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, sent.Type, got.Type)
	assert.Equal(t, sent.Id, got.Id)
}

func TestReadFrame_RejectsNonPositiveLength(t *testing.T) {
	// GIVEN a frame whose length prefix is zero
	var buf bytes.Buffer
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], 0)
	buf.Write(header[:])

	// WHEN
	_, err := readFrame(&buf)

	// THEN
	assert.ErrorIs(t, err, fterrors.ErrFrameInvalid)
}

func TestReadFrame_RejectsOversizedLength(t *testing.T) {
	// GIVEN a frame whose declared length exceeds the 1 MiB cap
	var buf bytes.Buffer
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(maxFrameBytes+1))
	buf.Write(header[:])

	// WHEN
	_, err := readFrame(&buf)

	// THEN
	assert.ErrorIs(t, err, fterrors.ErrFrameInvalid)
}

func TestWriteFrame_RejectsOversizedPayload(t *testing.T) {
	// GIVEN a payload that marshals larger than the frame limit
	huge := make([]byte, maxFrameBytes+10)
	var buf bytes.Buffer

	// WHEN
	err := writeFrame(&buf, huge)

	// THEN
	assert.ErrorIs(t, err, fterrors.ErrFrameInvalid)
}

package hashcopy

import (
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCopyMatchesDigestAndLength(t *testing.T) {
	input := bytes.Repeat([]byte("the quick brown fox "), 10000)
	var dst bytes.Buffer

	n, digest, err := Copy(&dst, bytes.NewReader(input))
	require.NoError(t, err)
	require.EqualValues(t, len(input), n)
	require.Equal(t, input, dst.Bytes())

	want := sha512.Sum512(input)
	require.Equal(t, hex.EncodeToString(want[:]), digest)
}

func TestCopyEmptyInput(t *testing.T) {
	var dst bytes.Buffer
	n, digest, err := Copy(&dst, bytes.NewReader(nil))
	require.NoError(t, err)
	require.Zero(t, n)
	require.Len(t, digest, 128)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestCopySinkFailure(t *testing.T) {
	_, _, err := Copy(failingWriter{}, bytes.NewReader([]byte("data")))
	require.Error(t, err)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestCopySourceFailure(t *testing.T) {
	var dst bytes.Buffer
	_, _, err := Copy(&dst, failingReader{})
	require.Error(t, err)
}

func TestTruncated56(t *testing.T) {
	full := hex.EncodeToString(bytes.Repeat([]byte{0xAB}, 64))
	require.Len(t, full, 128)
	require.Len(t, Truncated56(full), 56)
	require.Equal(t, "short", Truncated56("short"))
}

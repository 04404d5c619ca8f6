package multipart

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildBody(boundary string, parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString(p)
	}
	b.WriteString("--" + boundary + "--\r\n")
	return b.String()
}

func TestParserYieldsFieldsInOrder(t *testing.T) {
	boundary := "X-BOUND"
	body := buildBody(boundary,
		"Content-Disposition: form-data; name=\"act\"\r\n\r\nbput\r\n",
		"Content-Disposition: form-data; name=\"file\"; filename=\"a.txt\"\r\n\r\nhello world\r\n",
	)

	p, err := New(bufio.NewReader(strings.NewReader(body)), "multipart/form-data; boundary="+boundary)
	require.NoError(t, err)

	part, err := p.Next()
	require.NoError(t, err)
	require.Equal(t, "act", part.Field)
	data, err := io.ReadAll(part.Body)
	require.NoError(t, err)
	require.Equal(t, "bput", string(data))

	part, err = p.Next()
	require.NoError(t, err)
	require.Equal(t, "file", part.Field)
	require.Equal(t, "a.txt", part.Filename)
	data, err = io.ReadAll(part.Body)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))

	part, err = p.Next()
	require.NoError(t, err)
	require.Nil(t, part)
}

func TestRequireFindsField(t *testing.T) {
	boundary := "B"
	body := buildBody(boundary,
		"Content-Disposition: form-data; name=\"other\"\r\n\r\nignored\r\n",
		"Content-Disposition: form-data; name=\"act\"\r\n\r\nlogin\r\n",
	)
	p, err := New(bufio.NewReader(strings.NewReader(body)), "multipart/form-data; boundary="+boundary)
	require.NoError(t, err)

	v, err := p.Require("act", 64)
	require.NoError(t, err)
	require.Equal(t, "login", v)
}

func TestRequireMissingFieldFails(t *testing.T) {
	boundary := "B"
	body := buildBody(boundary, "Content-Disposition: form-data; name=\"other\"\r\n\r\nx\r\n")
	p, err := New(bufio.NewReader(strings.NewReader(body)), "multipart/form-data; boundary="+boundary)
	require.NoError(t, err)

	_, err = p.Require("act", 64)
	require.Error(t, err)
}

func TestDropDrainsRemainingParts(t *testing.T) {
	boundary := "B"
	body := buildBody(boundary,
		"Content-Disposition: form-data; name=\"a\"\r\n\r\n1\r\n",
		"Content-Disposition: form-data; name=\"b\"\r\n\r\n2\r\n",
	)
	p, err := New(bufio.NewReader(strings.NewReader(body)), "multipart/form-data; boundary="+boundary)
	require.NoError(t, err)

	require.NoError(t, p.Drop())
	part, err := p.Next()
	require.NoError(t, err)
	require.Nil(t, part)
}

func TestNewRejectsMissingBoundary(t *testing.T) {
	_, err := New(bufio.NewReader(strings.NewReader("")), "multipart/form-data")
	require.Error(t, err)
}

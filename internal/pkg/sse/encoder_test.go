package sse

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestEncoder() (*Encoder, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewEncoder(bufio.NewWriter(&buf)), &buf
}

func TestWriteToken(t *testing.T) {
	enc, buf := newTestEncoder()

	err := enc.WriteToken("Hello")
	assert.NoError(t, err)
	assert.Equal(t, "data: {\"token\":\"Hello\"}\n\n", buf.String())
}

func TestWriteTokenSuppressesEmpty(t *testing.T) {
	enc, buf := newTestEncoder()

	err := enc.WriteToken("")
	assert.NoError(t, err)
	assert.Equal(t, "", buf.String())
}

func TestWriteDoneWithSources(t *testing.T) {
	enc, buf := newTestEncoder()

	err := enc.WriteDone([]Source{
		{Document: "guide.md", Relevance: 0.93, Snippet: "excerpt"},
	})
	assert.NoError(t, err)
	assert.Equal(t,
		"data: {\"done\":true,\"sources\":[{\"document\":\"guide.md\",\"relevance\":0.93,\"snippet\":\"excerpt\"}]}\n\n",
		buf.String())
}

func TestWriteDoneNilSourcesEncodesEmptyArray(t *testing.T) {
	enc, buf := newTestEncoder()

	err := enc.WriteDone(nil)
	assert.NoError(t, err)
	assert.Equal(t, "data: {\"done\":true,\"sources\":[]}\n\n", buf.String())
}

func TestWriteError(t *testing.T) {
	enc, buf := newTestEncoder()

	err := enc.WriteError("answer producer failed")
	assert.NoError(t, err)
	assert.Equal(t, "data: {\"error\":\"answer producer failed\"}\n\n", buf.String())
}

func TestWriteSentinel(t *testing.T) {
	enc, buf := newTestEncoder()

	err := enc.WriteSentinel()
	assert.NoError(t, err)
	assert.Equal(t, "data: [DONE]\n\n", buf.String())
}

func TestFullStreamShape(t *testing.T) {
	enc, buf := newTestEncoder()

	assert.NoError(t, enc.WriteToken("The "))
	assert.NoError(t, enc.WriteToken("answer"))
	assert.NoError(t, enc.WriteDone([]Source{}))
	assert.NoError(t, enc.WriteSentinel())

	records := strings.Split(strings.TrimSuffix(buf.String(), "\n\n"), "\n\n")
	assert.Equal(t, 4, len(records))
	for _, rec := range records {
		assert.True(t, strings.HasPrefix(rec, "data: "))
	}
	assert.Equal(t, "data: [DONE]", records[len(records)-1])
}

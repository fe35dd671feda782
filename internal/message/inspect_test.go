package message

import (
	"context"
	"errors"
	"testing"

	"github.com/danmuck/ual/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldNamed(fields []FieldInfo, name string) (FieldInfo, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldInfo{}, false
}

func TestInspectGraphEnvelope(t *testing.T) {
	testlog.Start(t)
	alice := newCodec(t, "alice")

	in, err := Inspect(encode(t, alice, "move to kitchen", "bob", false))
	require.NoError(t, err)
	assert.Equal(t, "graph", in.Type)
	assert.Contains(t, in.Flags, "auth")
	assert.NotContains(t, in.Flags, "delta")
	assert.Equal(t, "ed25519", in.Algorithm)

	sender, ok := fieldNamed(in.Fields, "sender")
	require.True(t, ok)
	assert.Equal(t, "alice", sender.Value)
	payload, ok := fieldNamed(in.Fields, "payload")
	require.True(t, ok)
	assert.Positive(t, payload.Length)
	assert.NotEmpty(t, in.Payload)
}

func TestInspectCompressedDelta(t *testing.T) {
	testlog.Start(t)
	alice := newCodec(t, "alice", func(o *Options) { o.Compression = CompressionZstd })
	frame, err := alice.Encode(context.Background(), "scan the obstacle", "bob", "", map[string][]float32{"obstacle": make([]float32, 256)}, true)
	require.NoError(t, err)

	in, err := Inspect(frame)
	require.NoError(t, err)
	assert.Contains(t, in.Flags, "delta")
	assert.Contains(t, in.Flags, "compressed")
	comp, ok := fieldNamed(in.Fields, "compression")
	require.True(t, ok)
	assert.Equal(t, "zstd", comp.Value)
	assert.NotEmpty(t, in.Payload)
}

func TestInspectGarbage(t *testing.T) {
	testlog.Start(t)
	_, err := Inspect([]byte("nope"))
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, KindMalformed, decodeErr.Kind)
}

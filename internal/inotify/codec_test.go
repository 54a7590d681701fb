package inotify

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwatch/pathwatch/internal/errors"
)

func TestDecodeSingleRecord(t *testing.T) {
	buf := Append(nil, RawEvent{Wd: 3, Mask: Create | IsDir, Cookie: 0, Name: "subdir"})

	events, err := Decode(buf)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, int32(3), events[0].Wd)
	assert.Equal(t, Create|IsDir, events[0].Mask)
	assert.Equal(t, "subdir", events[0].Name, "padding NULs must be stripped")
}

func TestDecodeEmptyName(t *testing.T) {
	buf := Append(nil, RawEvent{Wd: 1, Mask: DeleteSelf})

	events, err := Decode(buf)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Empty(t, events[0].Name)
}

func TestDecodeRoundTrip(t *testing.T) {
	// Random batches survive encode/decode with order and field values
	// intact.
	rng := rand.New(rand.NewSource(1))
	names := []string{"", "a", "file.txt", ".hidden", strings.Repeat("x", 255)}

	var batch []RawEvent
	var buf []byte
	for i := 0; i < 64; i++ {
		ev := RawEvent{
			Wd:     rng.Int31(),
			Mask:   Category(rng.Intn(NumCategories)).Mask(),
			Cookie: rng.Uint32(),
			Name:   names[rng.Intn(len(names))],
		}
		batch = append(batch, ev)
		buf = Append(buf, ev)
	}

	decoded, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, len(batch), len(decoded))
	for i := range batch {
		assert.Equal(t, batch[i], decoded[i], "record %d", i)
	}
}

func TestDecodeTruncatedHeader(t *testing.T) {
	buf := Append(nil, RawEvent{Wd: 1, Mask: Modify, Name: "f"})

	_, err := Decode(buf[:len(buf)-3])
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTruncatedStream))

	_, err = Decode(buf[:7])
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTruncatedStream))
}

package inotify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskName(t *testing.T) {
	tests := []struct {
		mask Mask
		want string
	}{
		{Create, "IN_CREATE"},
		{Create | IsDir, "IN_CREATE|IN_ISDIR"},
		{CloseWrite, "IN_CLOSE_WRITE"},
		{QueueOverflow, "IN_Q_OVERFLOW"},
		{Mask(0x10000), ""}, // not a known category
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.mask.Name())
	}
}

func TestCategoryOf(t *testing.T) {
	cat, ok := (MovedTo | IsDir).CategoryOf()
	require.True(t, ok)
	assert.Equal(t, CatMovedTo, cat)

	_, ok = (Create | Modify).CategoryOf()
	assert.False(t, ok, "two categories at once is not dispatchable")

	_, ok = Mask(0).CategoryOf()
	assert.False(t, ok)
}

func TestCategoryRoundTrip(t *testing.T) {
	for c := range NumCategories {
		cat := Category(c)
		got, ok := cat.Mask().CategoryOf()
		require.True(t, ok, cat.Name())
		assert.Equal(t, cat, got)
	}
}

func TestCategoryFamily(t *testing.T) {
	assert.Equal(t, FamilyClose, CatCloseWrite.Family())
	assert.Equal(t, FamilyClose, CatCloseNoWrite.Family())
	assert.Equal(t, FamilyMoved, CatMovedFrom.Family())
	assert.Equal(t, FamilyMoved, CatMovedTo.Family())
	assert.Equal(t, FamilyDelete, CatDelete.Family())
	assert.Equal(t, FamilyDelete, CatDeleteSelf.Family())
	assert.Equal(t, FamilyNone, CatCreate.Family())
	assert.Equal(t, FamilyNone, CatMoveSelf.Family())
}

func TestParseMask(t *testing.T) {
	tests := []struct {
		in      string
		want    Mask
		wantErr bool
	}{
		{"create", Create, false},
		{"IN_CREATE", Create, false},
		{"create,modify, close_write", Create | Modify | CloseWrite, false},
		{"all", AllEvents, false},
		{"delete_self", DeleteSelf, false},
		{"nonsense", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseMask(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestMaskString(t *testing.T) {
	assert.Equal(t, "IN_CREATE|IN_DELETE", (Create | Delete).String())
	assert.Equal(t, "0", Mask(0).String())
}

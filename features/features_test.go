// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package features

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCurrentAndSubscribe tests the swap/notify cycle.
func TestCurrentAndSubscribe(t *testing.T) {
	m := NewManager(Flags{ParseRawBlocks: true})
	assert.True(t, m.Current().ParseRawBlocks)
	assert.False(t, m.Current().ResolveInputAddresses)

	var got []Flags
	m.Subscribe(func(f Flags) { got = append(got, f) })

	m.set(Flags{ResolveInputAddresses: true})
	require.Len(t, got, 1)
	assert.True(t, got[0].ResolveInputAddresses)
	assert.True(t, m.Current().ResolveInputAddresses)
	assert.False(t, m.Current().ParseRawBlocks)
}

// TestReloadFromFile tests content-change detection and invalid-file
// tolerance.
func TestReloadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.json")
	m := NewManager(Flags{})

	t.Run("MissingFileKeepsFlags", func(t *testing.T) {
		m.reload(path)
		assert.Equal(t, Flags{}, m.Current())
	})

	t.Run("AppliesChange", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path,
			[]byte(`{"parseRawBlocks":true,"resolveInputAddresses":true}`), 0o644))
		m.reload(path)
		assert.Equal(t, Flags{ParseRawBlocks: true, ResolveInputAddresses: true},
			m.Current())
	})

	t.Run("UnchangedContentDoesNotNotify", func(t *testing.T) {
		var notifications int
		m.Subscribe(func(Flags) { notifications++ })
		m.reload(path)
		assert.Zero(t, notifications)
	})

	t.Run("InvalidJSONKeepsFlags", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte(`{nope`), 0o644))
		m.reload(path)
		assert.True(t, m.Current().ParseRawBlocks, "previous flags must survive")
	})

	t.Run("RecoversAfterInvalid", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path,
			[]byte(`{"parseRawBlocks":false,"resolveInputAddresses":true}`), 0o644))
		m.reload(path)
		assert.Equal(t, Flags{ResolveInputAddresses: true}, m.Current())
	})
}

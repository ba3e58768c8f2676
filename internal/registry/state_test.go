package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lavacast/lavacast/internal/models"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewStore(path, nil)

	st := State{
		GlobalTranscode: GlobalTranscode{
			Enabled: true, Codec: "h264", Preset: "fast",
			VBitrate: "8M", ABitrate: "192k", Resolution: "1080p", FPS: "original",
		},
		GlobalStreaming: GlobalStreaming{Bitrate: "6M", NIC: "eth1", MediaDir: "/srv/media"},
		Channels: map[string]models.Channel{
			"0": {ID: 0, Filename: "a.ts", Filepath: "/srv/media/CH01_a.ts",
				IP: "239.1.1.1", Port: 5100, Encap: "udp", Loop: true},
		},
	}
	require.NoError(t, store.Save(st))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, st.GlobalTranscode, got.GlobalTranscode)
	assert.Equal(t, st.GlobalStreaming, got.GlobalStreaming)
	assert.Equal(t, st.Channels["0"].Filepath, got.Channels["0"].Filepath)
}

func TestStoreLoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "absent.json"), nil)
	st, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, st.Channels)
}

func TestStoreLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	store := NewStore(path, nil)
	st, err := store.Load()
	assert.Error(t, err)
	assert.Empty(t, st.Channels)
}

func TestParseStateCommentKeys(t *testing.T) {
	raw := `{
		"_readme": "edit with care",
		"_version": 2,
		"global_streaming": {"global_bitrate": "4M", "selected_nic": "", "media_path": ""},
		"global_transcode": {"on": false, "codec": "h264"},
		"channels": {}
	}`
	st, err := ParseState([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "4M", st.GlobalStreaming.Bitrate)
}

func TestParseStateCommentKeysInChannels(t *testing.T) {
	t.Run("sectioned", func(t *testing.T) {
		raw := `{
			"global_streaming": {"global_bitrate": "4M"},
			"channels": {
				"_readme": "keys are channel ids",
				"0": {"filename": "a.ts", "filepath": "/m/CH01_a.ts", "ip": "239.1.1.1", "port": 5100}
			}
		}`
		st, err := ParseState([]byte(raw))
		require.NoError(t, err)
		require.Len(t, st.Channels, 1)
		assert.Equal(t, "a.ts", st.Channels["0"].Filename)
	})

	t.Run("legacy flat", func(t *testing.T) {
		raw := `{
			"global_bitrate": "8M",
			"channels": {
				"_comment": "hand edited",
				"2": {"filename": "c.ts", "filepath": "/m/CH03_c.ts"}
			}
		}`
		st, err := ParseState([]byte(raw))
		require.NoError(t, err)
		require.Len(t, st.Channels, 1)
		assert.Equal(t, "c.ts", st.Channels["2"].Filename)
	})
}

func TestParseStateLegacyFlat(t *testing.T) {
	raw := `{
		"global_bitrate": "8M",
		"selected_nic": "eth0",
		"media_path": "/home/op/media",
		"channels": {
			"3": {"filename": "b.ts", "filepath": "/home/op/media/CH04_b.ts",
			      "ip": "239.1.1.4", "port": 5106, "encap": "rtp", "loop": false}
		}
	}`
	st, err := ParseState([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "8M", st.GlobalStreaming.Bitrate)
	assert.Equal(t, "eth0", st.GlobalStreaming.NIC)
	assert.Equal(t, "/home/op/media", st.GlobalStreaming.MediaDir)

	ch := st.Channels["3"]
	assert.Equal(t, "b.ts", ch.Filename)
	assert.Equal(t, "rtp", ch.Encap)
	assert.Equal(t, 5106, ch.Port)
	assert.False(t, ch.Loop)
}

func TestSaveOmitsTransientFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewStore(path, nil)

	st := State{
		Channels: map[string]models.Channel{
			"0": {ID: 0, Filename: "a.ts", Filepath: "/m/CH01_a.ts",
				Running: true, Thumb: "/thumbnails/ch0.jpg"},
		},
	}
	require.NoError(t, store.Save(st))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"running"`)
	assert.NotContains(t, string(raw), `"thumb"`)

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "a.ts", got.Channels["0"].Filename)
	assert.False(t, got.Channels["0"].Running)
	assert.Empty(t, got.Channels["0"].Thumb)
}

func TestStoreSaveAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	store := NewStore(path, nil)

	require.NoError(t, store.Save(State{}))
	require.NoError(t, store.Save(State{GlobalStreaming: GlobalStreaming{Bitrate: "2M"}}))

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

package torrent_test

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laptudirm.com/x/metainfo/pkg/bencode"
	"laptudirm.com/x/metainfo/pkg/torrent"
)

// byteSequence returns n bytes counting up from 0.
func byteSequence(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestBuildSingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "byte_sequence")
	writeFile(t, path, byteSequence(256))

	tor, err := torrent.NewBuilder("http://tracker.example.com/announce", path, 64).Build()
	require.NoError(t, err)

	assert.Equal(t, "byte_sequence", tor.Name)
	assert.Equal(t, int64(256), tor.Length)
	assert.Equal(t, int64(64), tor.PieceLength)
	assert.Nil(t, tor.Files)
	assert.Nil(t, tor.ExtraInfoFields)

	// known SHA-1 digests of the four 64-byte pieces of 0x00..0xff
	want := []string{
		"c6138d514ffa2135bfce0ed0b8fac65669917ec7",
		"08f42ca259cf121d2ea9cd8b6c5b24c86d733db7",
		"9c7aa2b11f270998a63b1b1795cff3890a4eb56f",
		"b9a1399c1280298cc14674769cff87a0a785e6ab",
	}
	require.Equal(t, len(want), tor.NumPieces())
	for i, digest := range want {
		assert.Equal(t, digest, hex.EncodeToString(tor.Pieces[i][:]))
	}
}

func TestBuildSingleFileShortLastPiece(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	writeFile(t, path, byteSequence(100))

	tor, err := torrent.NewBuilder("http://tracker.example.com/announce", path, 64).Build()
	require.NoError(t, err)

	// 100 = 64 + 36: the final piece is short
	require.Equal(t, 2, tor.NumPieces())
	assert.Equal(t, [20]byte(sha1.Sum(byteSequence(100)[:64])), tor.Pieces[0])
	assert.Equal(t, [20]byte(sha1.Sum(byteSequence(100)[64:])), tor.Pieces[1])
}

func TestBuildDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "content")

	// sorted hashing order: a/c.txt, a/d.txt, b.txt
	contents := [][]byte{
		bytes.Repeat([]byte{0xc0}, 200),
		bytes.Repeat([]byte{0xd0}, 30),
		bytes.Repeat([]byte{0xb0}, 100),
	}
	writeFile(t, filepath.Join(root, "a", "c.txt"), contents[0])
	writeFile(t, filepath.Join(root, "a", "d.txt"), contents[1])
	writeFile(t, filepath.Join(root, "b.txt"), contents[2])

	tor, err := torrent.NewBuilder("http://tracker.example.com/announce", root, 128).Build()
	require.NoError(t, err)

	assert.Equal(t, "content", tor.Name)
	assert.Equal(t, int64(330), tor.Length)

	require.Len(t, tor.Files, 3)
	assert.Equal(t, torrent.File{Length: 200, Path: []string{"a", "c.txt"}}, tor.Files[0])
	assert.Equal(t, torrent.File{Length: 30, Path: []string{"a", "d.txt"}}, tor.Files[1])
	assert.Equal(t, torrent.File{Length: 100, Path: []string{"b.txt"}}, tor.Files[2])

	// pieces span file boundaries: digests match hashing the whole
	// concatenated content in 128-byte chunks
	var all []byte
	for _, c := range contents {
		all = append(all, c...)
	}
	require.Equal(t, 3, tor.NumPieces())
	assert.Equal(t, [20]byte(sha1.Sum(all[0:128])), tor.Pieces[0])
	assert.Equal(t, [20]byte(sha1.Sum(all[128:256])), tor.Pieces[1])
	assert.Equal(t, [20]byte(sha1.Sum(all[256:330])), tor.Pieces[2])
}

func TestBuildSkipsHiddenAndSymlinks(t *testing.T) {
	root := filepath.Join(t.TempDir(), "content")
	writeFile(t, filepath.Join(root, "kept.txt"), []byte("kept"))
	writeFile(t, filepath.Join(root, ".hidden"), []byte("hidden"))
	writeFile(t, filepath.Join(root, ".git", "config"), []byte("config"))
	require.NoError(t, os.Symlink(
		filepath.Join(root, "kept.txt"),
		filepath.Join(root, "link.txt"),
	))

	tor, err := torrent.NewBuilder("http://tracker.example.com/announce", root, 64).Build()
	require.NoError(t, err)

	require.Len(t, tor.Files, 1)
	assert.Equal(t, []string{"kept.txt"}, tor.Files[0].Path)
	assert.Equal(t, int64(4), tor.Length)
}

func TestBuildRejectsSymlinkRoot(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	writeFile(t, target, []byte("data"))

	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	_, err := torrent.NewBuilder("http://tracker.example.com/announce", link, 64).Build()
	require.Error(t, err)

	var berr *torrent.BuildError
	assert.ErrorAs(t, err, &berr)
}

func TestBuildValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	writeFile(t, path, []byte("data"))

	base := torrent.NewBuilder("http://tracker.example.com/announce", path, 64)

	tests := []struct {
		name    string
		builder torrent.TorrentBuilder
	}{
		{"empty announce", base.SetAnnounce("")},
		{"piece length zero", base.SetPieceLength(0)},
		{"piece length negative", base.SetPieceLength(-1)},
		{"piece length not a power of two", base.SetPieceLength(3)},
		{"relative path", base.SetPath("data")},
		{"parent directory component", base.SetPath(dir + "/../data")},
		{"hidden component", base.SetPath(filepath.Join(dir, ".data"))},
		{"missing path", base.SetPath(filepath.Join(dir, "missing"))},
		{"empty name", base.SetName("")},
		{"empty announce list", base.SetAnnounceList([][]string{})},
		{"empty tier", base.SetAnnounceList([][]string{{"http://a.example.com"}, {}})},
		{"empty url", base.SetAnnounceList([][]string{{""}})},
		{"empty extra field key", base.AddExtraField("", bencode.String("v"))},
		{"empty extra info field key", base.AddExtraInfoField("", bencode.String("v"))},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := test.builder.Build()
			require.Error(t, err)

			var berr *torrent.BuildError
			assert.ErrorAs(t, err, &berr)
		})
	}
}

func TestBuildOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	writeFile(t, path, []byte("data"))

	base := torrent.NewBuilder("http://tracker.example.com/announce", path, 64)
	builder := base.
		SetName("custom").
		SetPrivacy(true).
		SetAnnounceList([][]string{{"http://a.example.com"}}).
		AddExtraField("comment", bencode.String("hello")).
		AddExtraInfoField("source", bencode.String("here"))

	tor, err := builder.Build()
	require.NoError(t, err)

	assert.Equal(t, "custom", tor.Name)
	assert.Equal(t, [][]string{{"http://a.example.com"}}, tor.AnnounceList)
	assert.True(t, tor.IsPrivate())
	assert.Equal(t, bencode.Integer(1), tor.ExtraInfoFields["private"])
	assert.Equal(t, bencode.String("here"), tor.ExtraInfoFields["source"])
	assert.Equal(t, bencode.String("hello"), tor.ExtraFields["comment"])

	// setters return copies: the base builder is unaffected
	plain, err := base.Build()
	require.NoError(t, err)
	assert.Equal(t, "data", plain.Name)
	assert.False(t, plain.IsPrivate())
	assert.Nil(t, plain.ExtraFields)
	assert.Nil(t, plain.AnnounceList)
}

func TestBuildIsDeterministic(t *testing.T) {
	root := filepath.Join(t.TempDir(), "content")
	writeFile(t, filepath.Join(root, "a.txt"), byteSequence(300))
	writeFile(t, filepath.Join(root, "b.txt"), byteSequence(77))

	first, err := torrent.NewBuilder("http://tracker.example.com/announce", root, 256).Build()
	require.NoError(t, err)

	second, err := torrent.NewBuilder("http://tracker.example.com/announce", root, 256).Build()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first.InfoHash(), second.InfoHash())
}

// A built torrent round-trips through its encoded form.
func TestBuildEncodeParse(t *testing.T) {
	root := filepath.Join(t.TempDir(), "content")
	writeFile(t, filepath.Join(root, "a.txt"), byteSequence(100))
	writeFile(t, filepath.Join(root, "b.txt"), byteSequence(200))

	tor, err := torrent.NewBuilder("http://tracker.example.com/announce", root, 128).
		SetPrivacy(true).
		Build()
	require.NoError(t, err)

	parsed, err := torrent.Parse(tor.Encode())
	require.NoError(t, err)
	assert.Equal(t, tor, parsed)
}

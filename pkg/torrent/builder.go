// Copyright © 2021 Rak Laptudirm <raklaptudirm@gmail.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package torrent

import (
	"bufio"
	"crypto/sha1"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"laptudirm.com/x/metainfo/pkg/bencode"
)

// TorrentBuilder accumulates the configuration needed to build a Torrent
// from a file or directory tree. Setters return an updated copy, so a
// builder can be shared and specialized freely; Build reads the
// filesystem and emits the finished Torrent.
//
// The setters do not validate their inputs. Invalid configuration is
// detected by Build before any file is opened.
type TorrentBuilder struct {
	announce    string
	path        string
	pieceLength int64

	announceList [][]string
	name         string
	nameSet      bool
	private      bool

	extraFields     map[string]bencode.Value
	extraInfoFields map[string]bencode.Value
}

// NewBuilder creates a TorrentBuilder with the required fields set. The
// path must be absolute, and a valid piece length is positive and a
// power of 2.
func NewBuilder(announce, path string, pieceLength int64) TorrentBuilder {
	return TorrentBuilder{
		announce:    announce,
		path:        path,
		pieceLength: pieceLength,
	}
}

// SetAnnounce returns a copy of the builder with the announce url
// replaced.
func (b TorrentBuilder) SetAnnounce(announce string) TorrentBuilder {
	b.announce = announce
	return b
}

// SetPath returns a copy of the builder with the content path replaced.
func (b TorrentBuilder) SetPath(path string) TorrentBuilder {
	b.path = path
	return b
}

// SetPieceLength returns a copy of the builder with the piece length
// replaced.
func (b TorrentBuilder) SetPieceLength(pieceLength int64) TorrentBuilder {
	b.pieceLength = pieceLength
	return b
}

// SetAnnounceList returns a copy of the builder with the announce tier
// list replaced.
func (b TorrentBuilder) SetAnnounceList(announceList [][]string) TorrentBuilder {
	b.announceList = announceList
	return b
}

// SetName returns a copy of the builder with the torrent name replaced.
// Without an explicit name, Build derives one from the last component of
// the content path.
func (b TorrentBuilder) SetName(name string) TorrentBuilder {
	b.name = name
	b.nameSet = true
	return b
}

// SetPrivacy returns a copy of the builder with the BEP 27 private flag
// set or cleared. A private torrent carries "private" set to 1 in its
// info dictionary.
func (b TorrentBuilder) SetPrivacy(private bool) TorrentBuilder {
	b.private = private
	return b
}

// AddExtraField returns a copy of the builder with an extra root
// dictionary field added. Adding the same key twice overrides the
// earlier value.
func (b TorrentBuilder) AddExtraField(key string, val bencode.Value) TorrentBuilder {
	b.extraFields = cloneAndSet(b.extraFields, key, val)
	return b
}

// AddExtraInfoField returns a copy of the builder with an extra info
// dictionary field added. Adding the same key twice overrides the
// earlier value.
func (b TorrentBuilder) AddExtraInfoField(key string, val bencode.Value) TorrentBuilder {
	b.extraInfoFields = cloneAndSet(b.extraInfoFields, key, val)
	return b
}

func cloneAndSet(m map[string]bencode.Value, key string, val bencode.Value) map[string]bencode.Value {
	clone := make(map[string]bencode.Value, len(m)+1)
	for k, v := range m {
		clone[k] = v
	}
	clone[key] = val
	return clone
}

// Build validates the builder's configuration, walks the content path,
// hashes its contents into pieces, and returns the finished Torrent.
//
// Configuration errors are reported as *BuildError before any file is
// opened. Filesystem errors abort the build with the underlying error
// wrapped.
func (b TorrentBuilder) Build() (*Torrent, error) {
	if err := b.validateAnnounce(); err != nil {
		return nil, err
	}
	if err := b.validateAnnounceList(); err != nil {
		return nil, err
	}
	if err := b.validateName(); err != nil {
		return nil, err
	}
	if err := b.validatePath(); err != nil {
		return nil, err
	}
	if err := b.validatePieceLength(); err != nil {
		return nil, err
	}
	if err := validateExtraFields(b.extraFields, "extra_fields"); err != nil {
		return nil, err
	}
	if err := validateExtraFields(b.extraInfoFields, "extra_info_fields"); err != nil {
		return nil, err
	}

	// the root must not itself be a symbolic link
	fi, err := os.Lstat(b.path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", b.path, err)
	}
	if fi.Mode()&fs.ModeSymlink != 0 {
		return nil, buildErrorf("TorrentBuilder has `path` but it points to a symbolic link")
	}

	root, err := filepath.EvalSymlinks(b.path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", b.path, err)
	}

	// if `name` is not set, use the last component of `path`
	name := b.name
	if !b.nameSet {
		name = filepath.Base(root)
	}

	// set `private = 1` in the info dictionary if the torrent is private
	extraInfoFields := b.extraInfoFields
	if b.private {
		extraInfoFields = cloneAndSet(extraInfoFields, "private", bencode.Integer(1))
	}

	fi, err = os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}

	var entries []fileEntry
	var files []File
	if fi.IsDir() {
		if entries, err = listDir(root); err != nil {
			return nil, err
		}

		files = make([]File, len(entries))
		for i, e := range entries {
			files[i] = File{Length: e.length, Path: e.rel}
		}
	} else {
		entries = []fileEntry{{path: root, length: fi.Size()}}
	}

	pieces, length, err := hashPieces(entries, b.pieceLength)
	if err != nil {
		return nil, err
	}

	return &Torrent{
		Announce:        b.announce,
		AnnounceList:    b.announceList,
		Name:            name,
		PieceLength:     b.pieceLength,
		Pieces:          pieces,
		Length:          length,
		Files:           files,
		ExtraFields:     b.extraFields,
		ExtraInfoFields: extraInfoFields,
	}, nil
}

func (b *TorrentBuilder) validateAnnounce() error {
	if b.announce == "" {
		return buildErrorf("TorrentBuilder has `announce` but its length is 0")
	}
	return nil
}

func (b *TorrentBuilder) validateAnnounceList() error {
	if b.announceList == nil {
		return nil
	}
	if len(b.announceList) == 0 {
		return buildErrorf("TorrentBuilder has `announce_list` but it's empty")
	}

	for _, tier := range b.announceList {
		if len(tier) == 0 {
			return buildErrorf("TorrentBuilder has `announce_list` but one of its tiers is empty")
		}
		for _, u := range tier {
			if u == "" {
				return buildErrorf("TorrentBuilder has `announce_list` but one of its tiers contains a 0-length url")
			}
		}
	}

	return nil
}

func (b *TorrentBuilder) validateName() error {
	if b.nameSet && b.name == "" {
		return buildErrorf("TorrentBuilder has `name` but its length is 0")
	}
	return nil
}

func (b *TorrentBuilder) validatePath() error {
	// detect components exactly matching ".." and hidden components;
	// the path is inspected as given, without cleaning, so that ".."
	// components are seen rather than resolved
	for _, component := range strings.Split(b.path, string(filepath.Separator)) {
		switch {
		case component == "" || component == ".":
		case component == "..":
			return buildErrorf("root path [%s] contains components exactly matching \"..\"", b.path)
		case strings.HasPrefix(component, "."):
			return buildErrorf("root path [%s] contains hidden components", b.path)
		}
	}

	if !filepath.IsAbs(b.path) {
		return buildErrorf("TorrentBuilder has `path` but it is not absolute")
	}

	if _, err := os.Lstat(b.path); err != nil {
		return buildErrorf("TorrentBuilder has `path` but it does not point to anything")
	}

	return nil
}

func (b *TorrentBuilder) validatePieceLength() error {
	switch {
	case b.pieceLength <= 0:
		return buildErrorf("TorrentBuilder has `piece_length` <= 0")
	case b.pieceLength&(b.pieceLength-1) != 0:
		// bit trick to check if a number is a power of 2
		return buildErrorf("TorrentBuilder has `piece_length` that is not a power of 2")
	default:
		return nil
	}
}

func validateExtraFields(fields map[string]bencode.Value, which string) error {
	if fields == nil {
		return nil
	}
	if len(fields) == 0 {
		// a present-but-empty map cannot be produced through the builder
		// API; it is a programmer error rather than bad user input
		panic(fmt.Sprintf("torrent: TorrentBuilder has `%s` but it's empty", which))
	}

	for key := range fields {
		if key == "" {
			return buildErrorf("TorrentBuilder has `%s` but it contains a 0-length key", which)
		}
	}

	return nil
}

// fileEntry is a content file discovered while walking the root path.
type fileEntry struct {
	path   string   // absolute path on disk
	rel    []string // path components relative to the root
	length int64    // file size in bytes
}

// listDir recursively lists the regular files under root. Symbolic links
// and hidden entries (whose name starts with ".") are skipped. The
// returned entries are sorted byte-lexicographically by path, which is
// both the hashing order and the order of the torrent's file list.
func listDir(root string) ([]fileEntry, error) {
	var entries []fileEntry

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() || !d.Type().IsRegular() {
			// walking descends into directories by itself; anything
			// which is not a regular file (including symbolic links)
			// is skipped
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		entries = append(entries, fileEntry{
			path:   path,
			rel:    strings.Split(rel, string(filepath.Separator)),
			length: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].path < entries[j].path
	})
	return entries, nil
}

// hashPieces streams the entries, in order, through a piece hasher and
// returns the piece digests along with the total content length.
func hashPieces(entries []fileEntry, pieceLength int64) ([][20]byte, int64, error) {
	h, err := newPieceHasher(pieceLength)
	if err != nil {
		return nil, 0, err
	}

	var length int64
	for _, e := range entries {
		if e.length > math.MaxInt64-length {
			return nil, 0, fmt.Errorf("hash %s: total length overflows a signed 64-bit integer", e.path)
		}
		length += e.length

		if err := h.readFile(e.path, e.length); err != nil {
			return nil, 0, err
		}
	}

	return h.finish(), length, nil
}

// pieceHasher coalesces bytes from consecutive files into fixed-size
// pieces and records the SHA-1 digest of each completed piece. Pieces
// span file boundaries, so the partially filled buffer carries over from
// one file to the next; only the final piece may be short. The buffer is
// reused for the whole build, bounding memory use by the piece length.
type pieceHasher struct {
	piece  []byte     // buffer of the piece being filled
	pieces [][20]byte // digests of the completed pieces
}

func newPieceHasher(pieceLength int64) (*pieceHasher, error) {
	if int64(int(pieceLength)) != pieceLength {
		return nil, fmt.Errorf("piece length %d overflows the platform size type", pieceLength)
	}

	return &pieceHasher{piece: make([]byte, 0, int(pieceLength))}, nil
}

// readFile feeds length bytes from the file at path into the hasher.
func (h *pieceHasher) readFile(path string, length int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	remaining := length

	for remaining > 0 {
		space := int64(cap(h.piece) - len(h.piece))
		n := space
		if remaining < n {
			n = remaining
		}

		filled := len(h.piece)
		h.piece = h.piece[:filled+int(n)]
		if _, err := io.ReadFull(r, h.piece[filled:]); err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		remaining -= n

		if len(h.piece) == cap(h.piece) {
			h.pieces = append(h.pieces, sha1.Sum(h.piece))
			h.piece = h.piece[:0]
		}
	}

	return nil
}

// finish hashes the final short piece, if any, and returns the digests
// of all pieces.
func (h *pieceHasher) finish() [][20]byte {
	if len(h.piece) > 0 {
		h.pieces = append(h.pieces, sha1.Sum(h.piece))
		h.piece = h.piece[:0]
	}
	return h.pieces
}

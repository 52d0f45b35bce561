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

// Package torrent reads, builds, and writes BitTorrent metainfo files,
// and parses tracker announce and scrape responses. It layers the
// metainfo and tracker schemas over the bencode package and performs no
// network I/O of its own.
package torrent

import (
	"fmt"
	"net/url"
	"strings"

	"laptudirm.com/x/metainfo/pkg/bencode"
)

// Torrent represents the metainfo of a single torrent, as stored in a
// .torrent file. A Torrent is produced by Parse or by a TorrentBuilder
// and consumed by Encode.
//
// Optional parts use nil to represent absence: AnnounceList is nil when
// the torrent carries no "announce-list", Files is nil in single-file
// mode, and the extra-field maps are nil when there are no extra fields.
type Torrent struct {
	Announce     string     // primary tracker announce url
	AnnounceList [][]string // tiers of backup announce urls

	Name        string     // file name or directory name of the content
	PieceLength int64      // number of bytes per piece
	Pieces      [][20]byte // SHA-1 digest of each piece
	Length      int64      // total content length in bytes
	Files       []File     // content files, multi-file mode only

	ExtraFields     map[string]bencode.Value // root dictionary extensions
	ExtraInfoFields map[string]bencode.Value // info dictionary extensions
}

// File represents a single file in a multi-file torrent.
type File struct {
	Length int64    // length of the file in bytes
	Path   []string // path components relative to the content root

	ExtraFields map[string]bencode.Value // file dictionary extensions
}

// NumPieces returns the number of pieces in the torrent.
func (t *Torrent) NumPieces() int {
	return len(t.Pieces)
}

// IsPrivate reports whether the torrent is private as defined in BEP 27,
// i.e. whether its info dictionary carries "private" set to 1.
func (t *Torrent) IsPrivate() bool {
	private, ok := t.ExtraInfoFields["private"]
	if !ok {
		return false
	}

	n, ok := private.Int()
	return ok && n == 1
}

// MagnetLink returns the magnet link of the torrent: its info hash as
// the exact topic, its name as the display name, and one tracker
// parameter per announce-list url, falling back to the announce url for
// torrents without an announce-list.
func (t *Torrent) MagnetLink() string {
	var b strings.Builder
	fmt.Fprintf(&b, "magnet:?xt=urn:btih:%x", t.InfoHash())
	fmt.Fprintf(&b, "&dn=%s", url.QueryEscape(t.Name))

	if len(t.AnnounceList) > 0 {
		for _, tier := range t.AnnounceList {
			for _, u := range tier {
				fmt.Fprintf(&b, "&tr=%s", url.QueryEscape(u))
			}
		}
	} else {
		fmt.Fprintf(&b, "&tr=%s", url.QueryEscape(t.Announce))
	}

	return b.String()
}

// String renders a short human-readable summary of the torrent.
func (t *Torrent) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "name: %s\n", t.Name)
	fmt.Fprintf(&b, "announce: %s\n", t.Announce)
	for _, tier := range t.AnnounceList {
		fmt.Fprintf(&b, "tier: %s\n", strings.Join(tier, ", "))
	}
	fmt.Fprintf(&b, "info hash: %x\n", t.InfoHash())
	fmt.Fprintf(&b, "length: %d\n", t.Length)
	fmt.Fprintf(&b, "piece length: %d\n", t.PieceLength)
	fmt.Fprintf(&b, "pieces: %d\n", t.NumPieces())
	if t.IsPrivate() {
		b.WriteString("private: yes\n")
	}
	for _, f := range t.Files {
		fmt.Fprintf(&b, "file: %s (%d bytes)\n", strings.Join(f.Path, "/"), f.Length)
	}

	return b.String()
}

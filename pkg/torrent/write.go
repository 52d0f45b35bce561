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
	"crypto/sha1"
	"os"

	"laptudirm.com/x/metainfo/pkg/bencode"
)

// infoValue assembles the info sub-dictionary of the torrent. The info
// dictionary is an independent sub-tree: the SHA-1 of its canonical
// encoding is the torrent's identity.
func (t *Torrent) infoValue() bencode.Value {
	info := make(map[string]bencode.Value, len(t.ExtraInfoFields)+4)
	for k, v := range t.ExtraInfoFields {
		info[k] = v
	}

	info["name"] = bencode.String(t.Name)
	info["piece length"] = bencode.Integer(t.PieceLength)

	digests := make([]byte, 0, len(t.Pieces)*20)
	for _, piece := range t.Pieces {
		digests = append(digests, piece[:]...)
	}
	info["pieces"] = bencode.Bytes(digests)

	if t.Files == nil {
		info["length"] = bencode.Integer(t.Length)
	} else {
		files := make([]bencode.Value, len(t.Files))
		for i, f := range t.Files {
			files[i] = f.value()
		}
		info["files"] = bencode.List(files...)
	}

	return bencode.Dict(info)
}

// value assembles the dictionary of a single file entry.
func (f File) value() bencode.Value {
	dict := make(map[string]bencode.Value, len(f.ExtraFields)+2)
	for k, v := range f.ExtraFields {
		dict[k] = v
	}

	components := make([]bencode.Value, len(f.Path))
	for i, component := range f.Path {
		components[i] = bencode.String(component)
	}

	dict["length"] = bencode.Integer(f.Length)
	dict["path"] = bencode.List(components...)
	return bencode.Dict(dict)
}

// InfoBytes returns the canonical bencode encoding of the torrent's
// info sub-dictionary.
func (t *Torrent) InfoBytes() []byte {
	return t.infoValue().Encode()
}

// InfoHash returns the SHA-1 of the canonical info dictionary encoding,
// the canonical identifier of the torrent.
func (t *Torrent) InfoHash() [20]byte {
	return sha1.Sum(t.InfoBytes())
}

// Encode renders the torrent as a canonical bencode metainfo
// dictionary, suitable for writing to a .torrent file.
func (t *Torrent) Encode() []byte {
	root := make(map[string]bencode.Value, len(t.ExtraFields)+3)
	for k, v := range t.ExtraFields {
		root[k] = v
	}

	root["announce"] = bencode.String(t.Announce)

	if t.AnnounceList != nil {
		tiers := make([]bencode.Value, len(t.AnnounceList))
		for i, tier := range t.AnnounceList {
			urls := make([]bencode.Value, len(tier))
			for j, u := range tier {
				urls[j] = bencode.String(u)
			}
			tiers[i] = bencode.List(urls...)
		}
		root["announce-list"] = bencode.List(tiers...)
	}

	root["info"] = t.infoValue()

	return bencode.Dict(root).Encode()
}

// WriteFile writes the encoded torrent into the file at path, creating
// it if necessary and truncating it if it already exists.
func (t *Torrent) WriteFile(path string) error {
	return os.WriteFile(path, t.Encode(), 0644)
}

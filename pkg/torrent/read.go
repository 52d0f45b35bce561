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
	"os"

	"laptudirm.com/x/metainfo/pkg/bencode"
)

// ParseFile reads the file at path and parses it as a torrent metainfo
// file.
func ParseFile(path string) (*Torrent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse parses data as a torrent metainfo file. Bencode syntax errors
// are reported as *scanner.SyntaxError and schema violations as
// *FormatError.
func Parse(data []byte) (*Torrent, error) {
	values, err := bencode.Parse(data)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, formatErrorf("torrent should contain exactly one top-level value, %d found", len(values))
	}
	if values[0].Kind() != bencode.KindDict {
		return nil, formatErrorf("torrent does not contain a dictionary")
	}

	root, _ := values[0].Pairs()
	t := new(Torrent)

	// announce
	announce, ok := root["announce"]
	if !ok {
		return nil, formatErrorf(`"announce" does not exist`)
	}
	if t.Announce, ok = announce.Text(); !ok {
		return nil, formatErrorf(`"announce" does not map to a string`)
	}
	delete(root, "announce")

	// announce-list
	if list, ok := root["announce-list"]; ok {
		if t.AnnounceList, err = parseAnnounceList(list); err != nil {
			return nil, err
		}
		delete(root, "announce-list")
	}

	// info
	info, ok := root["info"]
	if !ok {
		return nil, formatErrorf(`"info" does not exist`)
	}
	if info.Kind() != bencode.KindDict {
		return nil, formatErrorf(`"info" does not map to a dictionary`)
	}
	delete(root, "info")

	if err := t.parseInfo(info); err != nil {
		return nil, err
	}

	if len(root) > 0 {
		t.ExtraFields = root
	}

	return t, nil
}

// parseInfo extracts the fields of the info dictionary into t.
func (t *Torrent) parseInfo(info bencode.Value) error {
	dict, _ := info.Pairs()

	// name
	name, ok := dict["name"]
	if !ok {
		return formatErrorf(`"name" does not exist`)
	}
	if t.Name, ok = name.Text(); !ok {
		return formatErrorf(`"name" does not map to a string`)
	}
	delete(dict, "name")

	// piece length
	pieceLength, ok := dict["piece length"]
	if !ok {
		return formatErrorf(`"piece length" does not exist`)
	}
	if t.PieceLength, ok = pieceLength.Int(); !ok {
		return formatErrorf(`"piece length" does not map to an integer`)
	}
	if t.PieceLength <= 0 {
		return formatErrorf(`"piece length" is not positive`)
	}
	delete(dict, "piece length")

	// pieces
	pieces, ok := dict["pieces"]
	if !ok {
		return formatErrorf(`"pieces" does not exist`)
	}
	digests, ok := pieces.ByteString()
	if !ok {
		return formatErrorf(`"pieces" does not map to a string of bytes`)
	}
	if len(digests)%20 != 0 {
		return formatErrorf(`"pieces" has length %d, which is not a multiple of 20`, len(digests))
	}
	t.Pieces = make([][20]byte, len(digests)/20)
	for i := range t.Pieces {
		copy(t.Pieces[i][:], digests[i*20:(i+1)*20])
	}
	delete(dict, "pieces")

	// exactly one of length and files selects the mode
	length, single := dict["length"]
	files, multi := dict["files"]
	switch {
	case single && multi:
		return formatErrorf(`"info" contains both "length" and "files"`)
	case single:
		var ok bool
		if t.Length, ok = length.Int(); !ok {
			return formatErrorf(`"length" does not map to an integer`)
		}
		if t.Length < 0 {
			return formatErrorf(`"length" is negative`)
		}
		delete(dict, "length")
	case multi:
		if err := t.parseFiles(files); err != nil {
			return err
		}
		delete(dict, "files")
	default:
		return formatErrorf(`"info" contains neither "length" nor "files"`)
	}

	if len(dict) > 0 {
		t.ExtraInfoFields = dict
	}

	return nil
}

// parseFiles extracts the file list of a multi-file torrent into t and
// derives the torrent's total length.
func (t *Torrent) parseFiles(files bencode.Value) error {
	elems, ok := files.Elems()
	if !ok {
		return formatErrorf(`"files" does not map to a list`)
	}

	t.Files = make([]File, 0, len(elems))
	for _, elem := range elems {
		if elem.Kind() != bencode.KindDict {
			return formatErrorf(`"files" contains a non-dictionary element`)
		}
		dict, _ := elem.Pairs()

		var file File

		length, ok := dict["length"]
		if !ok {
			return formatErrorf(`a file's "length" does not exist`)
		}
		if file.Length, ok = length.Int(); !ok {
			return formatErrorf(`a file's "length" does not map to an integer`)
		}
		if file.Length < 0 {
			return formatErrorf(`a file's "length" is negative`)
		}
		delete(dict, "length")

		path, ok := dict["path"]
		if !ok {
			return formatErrorf(`a file's "path" does not exist`)
		}
		if file.Path, ok = parsePath(path); !ok {
			return formatErrorf(`a file's "path" is not a list of valid path components`)
		}
		delete(dict, "path")

		if len(dict) > 0 {
			file.ExtraFields = dict
		}

		t.Files = append(t.Files, file)
		t.Length += file.Length
	}

	return nil
}

// parsePath converts a bencode list into path components. Components
// must be non-empty strings, and must not be "..".
func parsePath(path bencode.Value) ([]string, bool) {
	elems, ok := path.Elems()
	if !ok || len(elems) == 0 {
		return nil, false
	}

	components := make([]string, len(elems))
	for i, elem := range elems {
		component, ok := elem.Text()
		if !ok || component == "" || component == ".." {
			return nil, false
		}
		components[i] = component
	}

	return components, true
}

// parseAnnounceList converts a bencode list of lists of strings into
// announce tiers.
func parseAnnounceList(list bencode.Value) ([][]string, error) {
	elems, ok := list.Elems()
	if !ok {
		return nil, formatErrorf(`"announce-list" does not map to a list`)
	}

	tiers := make([][]string, len(elems))
	for i, elem := range elems {
		urls, ok := elem.Elems()
		if !ok {
			return nil, formatErrorf(`"announce-list" contains a non-list tier`)
		}

		tiers[i] = make([]string, len(urls))
		for j, u := range urls {
			if tiers[i][j], ok = u.Text(); !ok {
				return nil, formatErrorf(`"announce-list" contains a non-string url`)
			}
		}
	}

	return tiers, nil
}

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
	"laptudirm.com/x/metainfo/pkg/bencode"
)

// SwarmMetadata is the per-torrent swarm statistics returned in a
// tracker scrape response, as defined in BEP 48.
type SwarmMetadata struct {
	Complete   int64 // active peers which have completed downloading
	Incomplete int64 // active peers which have not completed downloading
	Downloaded int64 // peers which have ever completed downloading

	ExtraFields map[string]bencode.Value // fields not listed above
}

// TrackerScrapeResponse is everything found in a tracker scrape
// response. Files maps the raw info-hash bytes of each scraped torrent
// (stored in the string keys) to its swarm statistics.
type TrackerScrapeResponse struct {
	Files map[string]SwarmMetadata // info hash -> swarm statistics

	ExtraFields map[string]bencode.Value // fields not listed above
}

// ParseScrapeResponse parses data as a tracker scrape response. Schema
// violations are reported as *ResponseError.
func ParseScrapeResponse(data []byte) (*TrackerScrapeResponse, error) {
	dict, err := responseDict(data, "tracker scrape response")
	if err != nil {
		return nil, err
	}

	files, ok := dict["files"]
	if !ok {
		return nil, responseErrorf(`"files" does not exist`)
	}
	entries, ok := files.Pairs()
	if !ok {
		return nil, responseErrorf(`"files" does not map to a dictionary`)
	}
	delete(dict, "files")

	r := &TrackerScrapeResponse{
		Files: make(map[string]SwarmMetadata, len(entries)),
	}

	for hash, entry := range entries {
		if entry.Kind() != bencode.KindDict {
			return nil, responseErrorf("swarm metadata for %x is not a dictionary", hash)
		}

		pairs, _ := entry.Pairs()
		metadata, err := swarmFromDict(pairs)
		if err != nil {
			return nil, err
		}
		r.Files[hash] = metadata
	}

	if len(dict) > 0 {
		r.ExtraFields = dict
	}

	return r, nil
}

// swarmFromDict extracts the swarm statistics of a single scraped
// torrent.
func swarmFromDict(dict map[string]bencode.Value) (SwarmMetadata, error) {
	var metadata SwarmMetadata

	for _, field := range []struct {
		key  string
		into *int64
	}{
		{"complete", &metadata.Complete},
		{"incomplete", &metadata.Incomplete},
		{"downloaded", &metadata.Downloaded},
	} {
		v, ok := dict[field.key]
		if !ok {
			return SwarmMetadata{}, responseErrorf("%q does not exist", field.key)
		}
		if *field.into, ok = v.Int(); !ok {
			return SwarmMetadata{}, responseErrorf("%q does not map to an integer", field.key)
		}
		delete(dict, field.key)
	}

	if len(dict) > 0 {
		metadata.ExtraFields = dict
	}

	return metadata, nil
}

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
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/mitchellh/mapstructure"

	"laptudirm.com/x/metainfo/pkg/bencode"
)

// Peer is a single peer returned in a tracker announce response.
type Peer struct {
	ID   string // peer id, empty for compact peer info
	IP   net.IP // ip the peer is listening on
	Port uint16 // port the peer is listening on

	ExtraFields map[string]bencode.Value // fields not listed above
}

// String converts Peer to a string with the format ip:port.
func (p Peer) String() string {
	return fmt.Sprintf("%s:%v", p.IP, p.Port)
}

// TrackerResponse is everything found in a tracker announce response.
// Fields which may be absent are pointers; a nil pointer means the
// tracker did not send the field.
type TrackerResponse struct {
	Interval int64  // seconds to wait between regular requests
	Peers    []Peer // peers to fetch pieces from

	Warning     *string // warning message
	MinInterval *int64  // minimum announce interval
	TrackerID   *string // id to send back on next announces
	Complete    *int64  // number of seeders
	Incomplete  *int64  // number of leechers

	ExtraFields map[string]bencode.Value // fields not listed above
}

// trackerOptions are the optional scalar fields of an announce
// response, decoded with mapstructure over the unwrapped dictionary.
// Pointer fields record presence, and keys left unused feed the
// response's ExtraFields.
type trackerOptions struct {
	Warning     *string `mapstructure:"warning"`
	MinInterval *int64  `mapstructure:"min interval"`
	TrackerID   *string `mapstructure:"tracker id"`
	Complete    *int64  `mapstructure:"complete"`
	Incomplete  *int64  `mapstructure:"incomplete"`
}

// ParseTrackerResponse parses data as a tracker announce response.
//
// A response carrying a "failure reason" is reported as a
// *TrackerFailure, regardless of what else it contains. Schema
// violations are reported as *ResponseError.
func ParseTrackerResponse(data []byte) (*TrackerResponse, error) {
	dict, err := responseDict(data, "tracker response")
	if err != nil {
		return nil, err
	}

	// a failure response carries no other meaningful fields
	if failure, ok := dict["failure reason"]; ok {
		reason, ok := failure.Text()
		if !ok {
			return nil, responseErrorf(`"failure reason" does not map to a string`)
		}
		return nil, &TrackerFailure{Reason: reason}
	}

	r := new(TrackerResponse)

	interval, ok := dict["interval"]
	if !ok {
		return nil, responseErrorf(`"interval" does not exist`)
	}
	if r.Interval, ok = interval.Int(); !ok {
		return nil, responseErrorf(`"interval" does not map to an integer`)
	}
	delete(dict, "interval")

	peers, ok := dict["peers"]
	if !ok {
		return nil, responseErrorf(`"peers" does not exist`)
	}
	if r.Peers, err = parsePeers(peers); err != nil {
		return nil, err
	}
	delete(dict, "peers")

	// decode the optional scalar fields, collecting whatever is left
	// over into ExtraFields
	unwrapped := make(map[string]any, len(dict))
	for k, v := range dict {
		unwrapped[k] = v.Unwrap()
	}

	var opts trackerOptions
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:   &opts,
		Metadata: &md,
		// bencode keys are matched exactly, not case-folded
		MatchName: func(mapKey, fieldName string) bool { return mapKey == fieldName },
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(unwrapped); err != nil {
		return nil, responseErrorf("optional field has the wrong shape: %v", err)
	}

	r.Warning = opts.Warning
	r.MinInterval = opts.MinInterval
	r.TrackerID = opts.TrackerID
	r.Complete = opts.Complete
	r.Incomplete = opts.Incomplete

	if len(md.Unused) > 0 {
		r.ExtraFields = make(map[string]bencode.Value, len(md.Unused))
		for _, k := range md.Unused {
			r.ExtraFields[k] = dict[k]
		}
	}

	return r, nil
}

// responseDict parses data as a single top-level bencode dictionary, the
// common outer shape of announce and scrape responses.
func responseDict(data []byte, what string) (map[string]bencode.Value, error) {
	values, err := bencode.Parse(data)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, responseErrorf("%s should contain exactly one top-level value, %d found", what, len(values))
	}

	dict, ok := values[0].Pairs()
	if !ok {
		return nil, responseErrorf("%s does not contain a dictionary", what)
	}
	return dict, nil
}

// parsePeers extracts the peer list from the "peers" value, which is
// either a list of peer dictionaries or a compact string of 6-byte
// records.
func parsePeers(peers bencode.Value) ([]Peer, error) {
	switch peers.Kind() {
	case bencode.KindList:
		elems, _ := peers.Elems()
		return peersFromList(elems)
	case bencode.KindString, bencode.KindBytes:
		compact, _ := peers.ByteString()
		return peersFromCompact(compact)
	default:
		return nil, responseErrorf(`"peers" does not map to a list or a string of bytes`)
	}
}

// peersFromList extracts peers from a list of peer dictionaries.
func peersFromList(elems []bencode.Value) ([]Peer, error) {
	peers := make([]Peer, 0, len(elems))
	for _, elem := range elems {
		if elem.Kind() != bencode.KindDict {
			return nil, responseErrorf(`"peers" contains a non-dictionary element`)
		}

		dict, _ := elem.Pairs()
		peer, err := peerFromDict(dict)
		if err != nil {
			return nil, err
		}
		peers = append(peers, peer)
	}
	return peers, nil
}

// peerFromDict extracts a single peer from its dictionary form. The
// optional "peer id" is accepted as a string, or as raw bytes which are
// hex-encoded.
func peerFromDict(dict map[string]bencode.Value) (Peer, error) {
	var peer Peer

	if id, ok := dict["peer id"]; ok {
		switch id.Kind() {
		case bencode.KindString:
			peer.ID, _ = id.Text()
		case bencode.KindBytes:
			raw, _ := id.ByteString()
			peer.ID = hex.EncodeToString(raw)
		default:
			return Peer{}, responseErrorf(`"peer id" maps to neither a string nor a string of bytes`)
		}
		delete(dict, "peer id")
	}

	ip, ok := dict["ip"]
	if !ok {
		return Peer{}, responseErrorf(`"ip" does not exist`)
	}
	text, ok := ip.Text()
	if !ok {
		return Peer{}, responseErrorf(`"ip" does not map to a string`)
	}
	if peer.IP = net.ParseIP(text); peer.IP == nil {
		return Peer{}, responseErrorf(`"ip" is not a valid ip address`)
	}
	delete(dict, "ip")

	port, ok := dict["port"]
	if !ok {
		return Peer{}, responseErrorf(`"port" does not exist`)
	}
	n, ok := port.Int()
	if !ok {
		return Peer{}, responseErrorf(`"port" does not map to an integer`)
	}
	peer.Port = uint16(n)
	delete(dict, "port")

	if len(dict) > 0 {
		peer.ExtraFields = dict
	}

	return peer, nil
}

// peersFromCompact extracts peers from the compact form: consecutive
// 6-byte records of a big-endian IPv4 address followed by a big-endian
// port.
func peersFromCompact(compact []byte) ([]Peer, error) {
	const peerLen = 6

	if len(compact)%peerLen != 0 {
		return nil, responseErrorf(`compact "peers" has length %d, which is not a multiple of %d`, len(compact), peerLen)
	}

	peers := make([]Peer, len(compact)/peerLen)
	for i := range peers {
		record := compact[i*peerLen:]
		peers[i].IP = net.IPv4(record[0], record[1], record[2], record[3])
		peers[i].Port = binary.BigEndian.Uint16(record[4:6])
	}
	return peers, nil
}

// TrackerRequest holds the client-side parameters of a tracker announce
// request.
type TrackerRequest struct {
	PeerID [20]byte // the client's peer id
	Port   uint16   // port the client is listening on

	Uploaded   int64 // number of bytes uploaded
	Downloaded int64 // number of bytes downloaded
	Left       int64 // number of bytes left to download

	Compact bool   // request the compact peer list format
	NumWant int    // number of peers wanted, 0 for the tracker's default
	Event   string // "started", "completed" or "stopped", if any
}

// TrackerURL returns the announce GET url for the torrent's tracker with
// the request's parameters. The library performs no network I/O; sending
// the request is up to the caller.
func (t *Torrent) TrackerURL(req TrackerRequest) (string, error) {
	base, err := url.Parse(t.Announce)
	if err != nil {
		return "", err
	}

	hash := t.InfoHash()
	params := url.Values{
		"info_hash":  []string{string(hash[:])},
		"peer_id":    []string{string(req.PeerID[:])},
		"port":       []string{strconv.Itoa(int(req.Port))},
		"uploaded":   []string{strconv.FormatInt(req.Uploaded, 10)},
		"downloaded": []string{strconv.FormatInt(req.Downloaded, 10)},
		"left":       []string{strconv.FormatInt(req.Left, 10)},
	}

	if req.Compact {
		params.Set("compact", "1")
	}
	if req.NumWant > 0 {
		params.Set("numwant", strconv.Itoa(req.NumWant))
	}
	if req.Event != "" {
		params.Set("event", req.Event)
	}

	base.RawQuery = params.Encode()
	return base.String(), nil
}

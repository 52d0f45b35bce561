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

import "fmt"

// FormatError represents a schema violation in a torrent metainfo
// dictionary: a missing required key, a key of the wrong shape, or a
// broken structural invariant.
type FormatError struct {
	msg string
}

func (e *FormatError) Error() string {
	return "torrent: " + e.msg
}

func formatErrorf(format string, args ...any) *FormatError {
	return &FormatError{msg: fmt.Sprintf(format, args...)}
}

// BuildError represents an invalid TorrentBuilder configuration,
// detected before any file is opened.
type BuildError struct {
	msg string
}

func (e *BuildError) Error() string {
	return "torrent: " + e.msg
}

func buildErrorf(format string, args ...any) *BuildError {
	return &BuildError{msg: fmt.Sprintf(format, args...)}
}

// ResponseError represents a schema violation in a tracker announce or
// scrape response.
type ResponseError struct {
	msg string
}

func (e *ResponseError) Error() string {
	return "torrent: " + e.msg
}

func responseErrorf(format string, args ...any) *ResponseError {
	return &ResponseError{msg: fmt.Sprintf(format, args...)}
}

// TrackerFailure represents a well-formed tracker response carrying a
// "failure reason": the tracker understood the request and rejected it.
type TrackerFailure struct {
	Reason string
}

func (e *TrackerFailure) Error() string {
	return "torrent: tracker failure: " + e.Reason
}

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

package bencode

import (
	"bytes"
	"fmt"
)

// Encode renders v in its canonical bencode form: no whitespace, and
// dictionary pairs emitted in ascending byte-wise key order regardless
// of the runtime order of the underlying map.
func (v Value) Encode() []byte {
	var buf bytes.Buffer
	v.encode(&buf)
	return buf.Bytes()
}

func (v Value) encode(buf *bytes.Buffer) {
	switch v.kind {
	case KindString, KindBytes:
		// <length>:<raw bytes>
		fmt.Fprintf(buf, "%d:", len(v.str))
		buf.WriteString(v.str)
	case KindInteger:
		// i<number>e
		fmt.Fprintf(buf, "i%de", v.num)
	case KindList:
		// l<element>...e
		buf.WriteByte('l')
		for _, e := range v.list {
			e.encode(buf)
		}
		buf.WriteByte('e')
	case KindDict, KindRawDict:
		// d<key><value>...e
		buf.WriteByte('d')
		for _, k := range v.sortedKeys() {
			fmt.Fprintf(buf, "%d:", len(k))
			buf.WriteString(k)
			v.dict[k].encode(buf)
		}
		buf.WriteByte('e')
	default:
		panic("bencode: cannot encode an invalid value")
	}
}

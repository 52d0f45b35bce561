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
	"strconv"
	"unicode/utf8"

	"laptudirm.com/x/metainfo/pkg/bencode/scanner"
)

// Parse parses data as a sequence of top-level bencode values. Byte
// strings which are valid utf8 become KindString values and the rest
// become KindBytes; dictionaries whose keys are all valid utf8 become
// KindDict values and the rest KindRawDict. Syntax errors are reported
// as *scanner.SyntaxError.
func Parse(data []byte) ([]Value, error) {
	s := scanner.New(data)

	// tokenize and verify the bencode data
	if err := s.Scan(); err != nil {
		return nil, err
	}

	p := &parser{tokens: s.Tokens}

	var values []Value
	for !p.atEnd() {
		values = append(values, p.value())
	}

	return values, nil
}

// parser is a state machine which goes through the tokens generated by
// the scanner and assembles them into Value trees. The scanner has
// already verified the syntax, so the parser panics on any token it does
// not expect.
type parser struct {
	tokens []scanner.Token

	offset int           // offset in token stream
	curr   scanner.Token // current token
}

// syntaxPanicMsg is the message used to panic when the parser receives
// invalid tokens from the scanner without an error.
const syntaxPanicMsg = "bencode: invalid syntax without scanner error"

// value assembles the next value from the parser's token stream.
func (p *parser) value() Value {
	switch p.peek().Kind {
	case scanner.OpenDict:
		return p.dict()
	case scanner.OpenList:
		return p.list()
	case scanner.Integer:
		return p.integer()
	case scanner.ByteString:
		return p.string()
	default:
		panic(syntaxPanicMsg)
	}
}

// dict assembles a dictionary from the parser's token stream. The
// resulting Value is a KindDict if every key is valid utf8, and a
// KindRawDict otherwise.
func (p *parser) dict() Value {
	// consume the leading OpenDict token
	p.mustConsume(scanner.OpenDict)

	pairs := make(map[string]Value)
	rawKeys := false

	// loop while there is a key
	for p.consume(scanner.ByteString) {
		key := string(p.curr.Lit)
		if !utf8.ValidString(key) {
			rawKeys = true
		}

		pairs[key] = p.value()
	}

	// consume Close token
	p.mustConsume(scanner.Close)

	if rawKeys {
		return RawDict(pairs)
	}
	return Dict(pairs)
}

// list assembles a list from the parser's token stream.
func (p *parser) list() Value {
	// consume leading OpenList token
	p.mustConsume(scanner.OpenList)

	var elems []Value

	// loop while end is not reached
	for !p.consume(scanner.Close) {
		elems = append(elems, p.value())
	}

	return List(elems...)
}

// integer assembles an integer from the parser's token stream.
func (p *parser) integer() Value {
	// consume the Integer token
	p.mustConsume(scanner.Integer)

	// the scanner has range-checked the literal
	n, err := strconv.ParseInt(string(p.curr.Lit), 10, 64)
	if err != nil {
		panic(syntaxPanicMsg)
	}

	return Integer(n)
}

// string assembles a byte string from the parser's token stream. The
// resulting Value is a KindString if the bytes are valid utf8, and a
// KindBytes otherwise.
func (p *parser) string() Value {
	// consume the ByteString token
	p.mustConsume(scanner.ByteString)

	if utf8.Valid(p.curr.Lit) {
		return String(string(p.curr.Lit))
	}
	return Bytes(p.curr.Lit)
}

// mustConsume tries to consume a token of kind k. If it can't it panics
// with syntaxPanicMsg.
func (p *parser) mustConsume(k scanner.Kind) {
	if !p.consume(k) {
		panic(syntaxPanicMsg)
	}
}

// consume tries to consume a token of kind k, and returns whether it
// succeeded or not.
func (p *parser) consume(k scanner.Kind) bool {
	if !p.match(k) {
		return false
	}

	p.next()
	return true
}

// next consumes the next token from the token stream.
func (p *parser) next() {
	p.curr = p.peek()

	if !p.atEnd() {
		p.offset++
	}
}

// match checks if the next token is of kind k.
func (p *parser) match(k scanner.Kind) bool {
	return p.peek().Kind == k
}

// peek returns the next token from the token stream. It returns an
// invalid token if it reaches the end of the token stream.
func (p *parser) peek() scanner.Token {
	if p.atEnd() {
		return scanner.Token{}
	}

	return p.tokens[p.offset]
}

// atEnd checks whether the end of the token stream has been reached.
func (p *parser) atEnd() bool {
	return p.offset >= len(p.tokens)
}

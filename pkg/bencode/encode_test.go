package bencode_test

import (
	"bytes"
	"testing"

	bencodego "github.com/jackpal/bencode-go"

	"laptudirm.com/x/metainfo/pkg/bencode"
)

var encodeTests = []struct {
	in  bencode.Value
	out string
}{
	{in: bencode.Integer(0), out: "i0e"},
	{in: bencode.Integer(-42), out: "i-42e"},
	{in: bencode.String(""), out: "0:"},
	{in: bencode.String("spam"), out: "4:spam"},
	{in: bencode.Bytes([]byte{0xde, 0xad, 0xbe, 0xef}), out: "4:\xde\xad\xbe\xef"},
	{in: bencode.List(), out: "le"},
	{in: bencode.List(bencode.Integer(1), bencode.String("a")), out: "li1e1:ae"},
	{
		// keys are sorted on output regardless of map order
		in: bencode.Dict(map[string]bencode.Value{
			"b": bencode.Integer(2),
			"a": bencode.Integer(1),
		}),
		out: "d1:ai1e1:bi2ee",
	},
	{
		in: bencode.RawDict(map[string]bencode.Value{
			"\xff": bencode.Integer(1),
			"\x00": bencode.Integer(2),
		}),
		out: "d1:\x00i2e1:\xffi1ee",
	},
	{
		in: bencode.Dict(map[string]bencode.Value{
			"cat": bencode.Integer(1),
			"spam": bencode.List(
				bencode.String("a"),
				bencode.String("b"),
			),
		}),
		out: "d3:cati1e4:spaml1:a1:bee",
	},
}

func TestEncode(t *testing.T) {
	for _, test := range encodeTests {
		t.Run(test.out, func(t *testing.T) {
			if got := test.in.Encode(); !bytes.Equal(got, []byte(test.out)) {
				t.Errorf("Encode(%s): got %q, expected %q", test.in, got, test.out)
			}
		})
	}
}

// Round-trip law: parsing an encoded value yields the value back.
func TestEncodeParseRoundTrip(t *testing.T) {
	for _, test := range encodeTests {
		t.Run(test.out, func(t *testing.T) {
			values, err := bencode.Parse(test.in.Encode())
			if err != nil {
				t.Fatalf("Parse(Encode(%s)): unexpected error %v", test.in, err)
			}
			if len(values) != 1 {
				t.Fatalf("Parse(Encode(%s)): %d values, expected 1", test.in, len(values))
			}
			if !values[0].Equal(test.in) {
				t.Errorf("Parse(Encode(%s)): got %s", test.in, values[0])
			}
		})
	}
}

// Round-trip law: re-encoding parsed canonical input reproduces it.
func TestParseEncodeRoundTrip(t *testing.T) {
	inputs := []string{
		"i0e",
		"i-42e",
		"0:",
		"4:spam",
		"4:\xde\xad\xbe\xef",
		"le",
		"de",
		"li1e1:ae",
		"d1:ai1e1:bi2ee",
		"d4:infod6:lengthi1e4:name3:catee",
		"d1:\x00i2e1:\xffi1ee",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			values, err := bencode.Parse([]byte(in))
			if err != nil {
				t.Fatalf("Parse(%#v): unexpected error %v", in, err)
			}
			if len(values) != 1 {
				t.Fatalf("Parse(%#v): %d values, expected 1", in, len(values))
			}
			if got := values[0].Encode(); !bytes.Equal(got, []byte(in)) {
				t.Errorf("Encode(Parse(%#v)): got %q", in, got)
			}
		})
	}
}

// Canonical output should agree with the bencode codec the project
// historically used.
func TestEncodeMatchesReference(t *testing.T) {
	for _, test := range encodeTests {
		if test.in.Kind() == bencode.KindBytes || test.in.Kind() == bencode.KindRawDict {
			// the reference codec round-trips these as strings
			continue
		}

		t.Run(test.out, func(t *testing.T) {
			var buf bytes.Buffer
			if err := bencodego.Marshal(&buf, test.in.Unwrap()); err != nil {
				t.Fatalf("reference Marshal(%s): unexpected error %v", test.in, err)
			}
			if !bytes.Equal(buf.Bytes(), test.in.Encode()) {
				t.Errorf("Encode(%s): got %q, reference emitted %q", test.in, test.in.Encode(), buf.Bytes())
			}
		})
	}
}

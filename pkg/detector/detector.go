// Package detector implements the header-detector rule engine: an ordered
// list of rules, each gated by one or more tests against a physical file's
// size and bytes, that selects the logical byte window (and optional
// bit/byte/word transform) to hash instead of the raw file. The first rule
// whose tests all pass wins; if none match, the logical window is the
// whole file with no transform.
package detector

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/nih-at/ckmame-sub001/pkg/romhash"
)

// Operation is the byte-level transform applied to a rule's selected
// window before hashing.
type Operation int

const (
	OpNone Operation = iota
	OpBitswap
	OpByteswap
	OpWordswap
)

// Comparator is the relation a size test checks.
type Comparator int

const (
	CompareEqual Comparator = iota
	CompareLess
	CompareGreater
)

// Offset is either an absolute position from the start of the file, or a
// position measured backward from end-of-file (the data/mask tests'
// "end of file" relative read).
type Offset struct {
	FromEnd bool
	Value   int64
}

// Resolve computes the absolute byte position for a file of the given
// size.
func (o Offset) Resolve(size int64) int64 {
	if o.FromEnd {
		return size - o.Value
	}
	return o.Value
}

// EndOfFile is the sentinel end_offset meaning "through the last byte of
// the file".
func EndOfFile() Offset { return Offset{FromEnd: true, Value: 0} }

// Test is a single condition a rule checks against the physical file.
type Test interface {
	Evaluate(src io.ReaderAt, size int64) (bool, error)
}

// SizeTest compares the file's physical size, either against a literal
// using Compare, or against "is a power of two" when PowerOfTwo is set.
type SizeTest struct {
	Compare    Comparator
	Value      int64
	PowerOfTwo bool
}

func (t SizeTest) Evaluate(_ io.ReaderAt, size int64) (bool, error) {
	if t.PowerOfTwo {
		return size > 0 && size&(size-1) == 0, nil
	}
	switch t.Compare {
	case CompareEqual:
		return size == t.Value, nil
	case CompareLess:
		return size < t.Value, nil
	case CompareGreater:
		return size > t.Value, nil
	default:
		return false, fmt.Errorf("detector: unknown comparator %d", t.Compare)
	}
}

func readAt(src io.ReaderAt, offset Offset, size, length int64) ([]byte, error) {
	pos := offset.Resolve(size)
	if pos < 0 || pos+length > size {
		return nil, fmt.Errorf("detector: read of %d bytes at %d is out of range for a %d-byte file", length, pos, size)
	}
	buf := make([]byte, length)
	if length == 0 {
		return buf, nil
	}
	if _, err := src.ReadAt(buf, pos); err != nil {
		return nil, err
	}
	return buf, nil
}

// DataTest reads len(Value) bytes at Offset and compares them to Value;
// Result is the truth value the comparison must produce for the test to
// pass (so a rule can test for both "data equals X" and "data differs from
// X").
type DataTest struct {
	Offset Offset
	Value  []byte
	Result bool
}

func (t DataTest) Evaluate(src io.ReaderAt, size int64) (bool, error) {
	buf, err := readAt(src, t.Offset, size, int64(len(t.Value)))
	if err != nil {
		return false, err
	}
	return bytes.Equal(buf, t.Value) == t.Result, nil
}

// MaskOp is the bitwise combinator a MaskTest applies before comparing.
type MaskOp int

const (
	MaskAnd MaskOp = iota
	MaskOr
	MaskXor
)

// MaskTest reads len(Value) bytes at Offset, combines them with Mask
// (byte-for-byte; a nil Mask behaves as all-ones, i.e. no-op for AND, and
// is otherwise meaningless for OR/XOR so callers should supply one), and
// compares the result to Value. Result is interpreted as in DataTest.
type MaskTest struct {
	Op     MaskOp
	Offset Offset
	Mask   []byte
	Value  []byte
	Result bool
}

func (t MaskTest) Evaluate(src io.ReaderAt, size int64) (bool, error) {
	buf, err := readAt(src, t.Offset, size, int64(len(t.Value)))
	if err != nil {
		return false, err
	}
	combined := make([]byte, len(buf))
	for i, b := range buf {
		var mask byte = 0xff
		if i < len(t.Mask) {
			mask = t.Mask[i]
		}
		switch t.Op {
		case MaskAnd:
			combined[i] = b & mask
		case MaskOr:
			combined[i] = b | mask
		case MaskXor:
			combined[i] = b ^ mask
		}
	}
	return bytes.Equal(combined, t.Value) == t.Result, nil
}

// Rule selects a logical window and transform when every one of its tests
// passes.
type Rule struct {
	Start     Offset
	End       Offset
	Operation Operation
	Tests     []Test
}

func (r Rule) matches(src io.ReaderAt, size int64) (bool, error) {
	for _, t := range r.Tests {
		ok, err := t.Evaluate(src, size)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Window is the resolved (absolute) byte range and transform a matched
// rule (or the no-match default) produced.
type Window struct {
	Start, End int64
	Operation  Operation
}

// Detector is an ordered list of rules; the first whose tests all pass
// wins.
type Detector struct {
	Rules []Rule
}

// Select evaluates the rules in order against src (size bytes long) and
// returns the winning window, or the whole-file/no-transform default if no
// rule matches.
func (d *Detector) Select(src io.ReaderAt, size int64) (Window, error) {
	for _, rule := range d.Rules {
		ok, err := rule.matches(src, size)
		if err != nil {
			return Window{}, err
		}
		if ok {
			return Window{Start: rule.Start.Resolve(size), End: rule.End.Resolve(size), Operation: rule.Operation}, nil
		}
	}
	return Window{Start: 0, End: size, Operation: OpNone}, nil
}

// Hash streams the window's bytes, after applying its Operation, through a
// romhash.Updater requesting want and returns the result.
func (w Window) Hash(src io.ReaderAt, want romhash.Type) (romhash.Hashes, error) {
	length := w.End - w.Start
	if length < 0 {
		length = 0
	}
	buf := make([]byte, length)
	if length > 0 {
		if _, err := src.ReadAt(buf, w.Start); err != nil && err != io.EOF {
			return romhash.Hashes{}, err
		}
	}
	transform(buf, w.Operation)

	u := romhash.NewUpdater(want)
	u.Write(buf)
	return u.Finalize(), nil
}

func transform(buf []byte, op Operation) {
	switch op {
	case OpBitswap:
		for i, b := range buf {
			buf[i] = bitReverse(b)
		}
	case OpByteswap:
		for i := 0; i+1 < len(buf); i += 2 {
			buf[i], buf[i+1] = buf[i+1], buf[i]
		}
	case OpWordswap:
		for i := 0; i+3 < len(buf); i += 4 {
			buf[i], buf[i+1], buf[i+2], buf[i+3] = buf[i+3], buf[i+2], buf[i+1], buf[i]
		}
	}
}

func bitReverse(b byte) byte {
	var r byte
	for i := 0; i < 8; i++ {
		r <<= 1
		r |= b & 1
		b >>= 1
	}
	return r
}

// ContentHash derives a stable identifier for the detector from its
// serialized rule set, so that two DAT files sharing the same detector
// definition share a cache namespace (see pkg/cache).
func (d *Detector) ContentHash() [sha256.Size]byte {
	var buf bytes.Buffer
	for _, rule := range d.Rules {
		fmt.Fprintf(&buf, "rule start=%+v end=%+v op=%d tests=%d\n", rule.Start, rule.End, rule.Operation, len(rule.Tests))
		for _, t := range rule.Tests {
			fmt.Fprintf(&buf, "  %T %+v\n", t, t)
		}
	}
	return sha256.Sum256(buf.Bytes())
}

package detector

import (
	"bytes"
	"testing"

	"github.com/nih-at/ckmame-sub001/pkg/romhash"
)

func TestSizeTestPowerOfTwo(t *testing.T) {
	test := SizeTest{PowerOfTwo: true}
	if ok, _ := test.Evaluate(nil, 1024); !ok {
		t.Error("expected 1024 to be a power of two")
	}
	if ok, _ := test.Evaluate(nil, 1000); ok {
		t.Error("expected 1000 to not be a power of two")
	}
}

func TestDataTestAtEndOfFile(t *testing.T) {
	data := []byte("0123456789HEADER")
	src := bytes.NewReader(data)
	test := DataTest{Offset: Offset{FromEnd: true, Value: 6}, Value: []byte("HEADER"), Result: true}
	ok, err := test.Evaluate(src, int64(len(data)))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ok {
		t.Error("expected trailing HEADER marker to match")
	}
}

func TestMaskTestXor(t *testing.T) {
	src := bytes.NewReader([]byte{0xAA, 0x0F})
	test := MaskTest{Op: MaskXor, Value: []byte{0x00, 0x0F}, Mask: []byte{0xAA, 0x00}, Result: true}
	ok, err := test.Evaluate(src, 2)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ok {
		t.Error("expected xor-masked bytes to match")
	}
}

func TestDetectorSelectFirstMatchWins(t *testing.T) {
	data := append([]byte{0xDE, 0xAD, 0xBE, 0xEF}, bytes.Repeat([]byte{0}, 12)...)
	src := bytes.NewReader(data)

	d := &Detector{Rules: []Rule{
		{
			Start: Offset{Value: 4}, End: EndOfFile(), Operation: OpNone,
			Tests: []Test{DataTest{Offset: Offset{Value: 0}, Value: []byte{0xDE, 0xAD, 0xBE, 0xEF}, Result: true}},
		},
		{
			Start: Offset{Value: 0}, End: EndOfFile(), Operation: OpNone,
			Tests: []Test{SizeTest{Compare: CompareGreater, Value: 0}},
		},
	}}

	win, err := d.Select(src, int64(len(data)))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if win.Start != 4 || win.End != int64(len(data)) {
		t.Fatalf("got window %+v, want start=4 end=%d", win, len(data))
	}
}

func TestDetectorSelectNoMatchDefaultsToWholeFile(t *testing.T) {
	data := []byte("plain data")
	src := bytes.NewReader(data)
	d := &Detector{Rules: []Rule{
		{Tests: []Test{SizeTest{Compare: CompareEqual, Value: 999}}},
	}}
	win, err := d.Select(src, int64(len(data)))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if win.Start != 0 || win.End != int64(len(data)) || win.Operation != OpNone {
		t.Fatalf("got %+v, want whole-file default", win)
	}
}

func TestWindowHashByteswap(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04}
	src := bytes.NewReader(data)
	win := Window{Start: 0, End: 4, Operation: OpByteswap}

	h, err := win.Hash(src, romhash.CRC32)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !h.Has(romhash.CRC32) {
		t.Fatal("expected requested hash type to be present")
	}
}

func TestContentHashStableAcrossEqualDetectors(t *testing.T) {
	build := func() *Detector {
		return &Detector{Rules: []Rule{
			{Start: Offset{Value: 16}, End: EndOfFile(), Operation: OpNone,
				Tests: []Test{SizeTest{Compare: CompareGreater, Value: 16}}},
		}}
	}
	a, b := build(), build()
	if a.ContentHash() != b.ContentHash() {
		t.Fatal("expected two equivalently-built detectors to share a content hash")
	}

	c := &Detector{Rules: []Rule{
		{Start: Offset{Value: 32}, End: EndOfFile(), Operation: OpNone,
			Tests: []Test{SizeTest{Compare: CompareGreater, Value: 16}}},
	}}
	if a.ContentHash() == c.ContentHash() {
		t.Fatal("expected a differently-configured detector to hash differently")
	}
}

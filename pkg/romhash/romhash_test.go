package romhash

import (
	"bytes"
	"encoding/gob"
	"testing"
)

func TestUpdaterComputesAllRequestedTypes(t *testing.T) {
	data := []byte("ckmame test payload")
	u := NewUpdater(All)
	if _, err := u.Write(data); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	h := u.Finalize()

	for _, typ := range []Type{CRC32, MD5, SHA1, SHA256, Size} {
		if !h.Has(typ) {
			t.Errorf("expected %s to be present", typ)
		}
	}
	if size, ok := h.Size(); !ok || size != int64(len(data)) {
		t.Errorf("got size (%d, %v), want (%d, true)", size, ok, len(data))
	}
}

func TestCompareIntersectionSemantics(t *testing.T) {
	data := []byte("identical content")

	a := NewUpdater(CRC32 | MD5)
	a.Write(data)
	ah := a.Finalize()

	b := NewUpdater(MD5 | SHA1)
	b.Write(data)
	bh := b.Finalize()

	if got := ah.Compare(bh); got != Match {
		t.Fatalf("expected Match over the MD5/size intersection, got %v", got)
	}

	c := NewUpdater(SHA256)
	c.Write([]byte("different, longer content"))
	ch := c.Finalize()

	// ah has no SHA256 and ch has no CRC32/MD5, but both have Size, and the
	// sizes differ, so the intersection (Size) should mismatch.
	if got := ah.Compare(ch); got != Mismatch {
		t.Fatalf("expected Mismatch on differing size, got %v", got)
	}
}

func TestCompareNoCommonTypes(t *testing.T) {
	var a, b Hashes
	a.Set(CRC32, []byte{1, 2, 3, 4})
	b.Set(SHA1, bytes.Repeat([]byte{0}, 20))

	if got := a.Compare(b); got != NoCommonTypes {
		t.Fatalf("expected NoCommonTypes, got %v", got)
	}
}

func TestFromHexString(t *testing.T) {
	tests := []struct {
		hex     string
		want    Type
		wantErr bool
	}{
		{"deadbeef", CRC32, false},
		{"d41d8cd98f00b204e9800998ecf8427e", MD5, false},
		{"da39a3ee5e6b4b0d3255bfef95601890afd80709", SHA1, false},
		{"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", SHA256, false},
		{"zz", 0, true},
		{"abcd", 0, true}, // wrong length for any known algorithm
	}
	for _, tc := range tests {
		typ, _, err := FromHexString(tc.hex)
		if tc.wantErr {
			if err == nil {
				t.Errorf("FromHexString(%q): expected error", tc.hex)
			}
			continue
		}
		if err != nil {
			t.Errorf("FromHexString(%q): unexpected error: %v", tc.hex, err)
			continue
		}
		if typ != tc.want {
			t.Errorf("FromHexString(%q) = %s, want %s", tc.hex, typ, tc.want)
		}
	}
}

func TestHashesGobRoundTrip(t *testing.T) {
	u := NewUpdater(All)
	u.Write([]byte("round trip payload"))
	want := u.Finalize()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(want); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var got Hashes
	if err := gob.NewDecoder(&buf).Decode(&got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Compare(want) != Match {
		t.Fatalf("round-tripped Hashes compared %v, want Match", got.Compare(want))
	}
	if gotSize, _ := got.Size(); gotSize != 18 {
		t.Fatalf("got size %d, want 18", gotSize)
	}
}

func TestSetPanicsOnWrongLength(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on mismatched digest length")
		}
	}()
	var h Hashes
	h.Set(MD5, []byte{1, 2, 3})
}

package report

import (
	"bytes"
	"testing"
)

func TestSubjectString(t *testing.T) {
	tests := []struct {
		subject Subject
		want    string
	}{
		{Subject{Game: "pacman"}, "pacman"},
		{Subject{Archive: "pacman.zip"}, "pacman.zip"},
		{Subject{Archive: "pacman.zip", Member: "pacman.6e"}, "pacman.zip/pacman.6e"},
	}
	for _, tc := range tests {
		if got := tc.subject.String(); got != tc.want {
			t.Errorf("Subject%+v.String() = %q, want %q", tc.subject, got, tc.want)
		}
	}
}

func TestWriterLine(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	if err := w.Line(Subject{Archive: "pacman.zip", Member: "pacman.6e"}, VerbCorrect()); err != nil {
		t.Fatalf("Line returned error: %v", err)
	}
	if err := w.Line(Subject{Archive: "pacman.zip", Member: "pacman.6f"}, VerbWrongCRC("deadbeef")); err != nil {
		t.Fatalf("Line returned error: %v", err)
	}

	got := buf.String()
	want := "pacman.zip/pacman.6e: correct\npacman.zip/pacman.6f: wrong crc (deadbeef)\n"
	if got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestVerbVocabulary(t *testing.T) {
	cases := map[string]string{
		VerbCorrect():                              "correct",
		VerbMissing():                               "missing",
		VerbWrongName("x"):                          "wrong name (x)",
		VerbBestBadDump():                           "best bad dump",
		VerbShouldBeInIsIn("a.zip", "b.zip"):        "should be in a.zip, is in b.zip",
		VerbUnknown():                               "unknown",
		VerbNotUsed():                               "not used",
		VerbUsedInClone("parent.zip"):               "used in clone parent.zip",
		VerbDelete():                                "delete",
		VerbRename("a", "b"):                        "rename a to b",
		VerbMoveUnknown("x"):                        "move unknown x",
		VerbAddFrom("x", "y.zip"):                   "add x from y.zip",
	}
	for got, want := range cases {
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}

// Package report renders the fixer/verifier's findings as the textual
// diagnostic lines described by the data model: one line per finding,
// prefixed by the game, archive, or archive/member it concerns, followed by
// a fixed verb. Dry-run and fix.do share this formatting so that a plan
// preview and its eventual execution read identically, which is what lets a
// user trust a dry run.
package report

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
)

// Writer renders diagnostic lines straight to an underlying io.Writer, one
// per Line call. It carries no state across lines: callers
// supply the full prefix and verb for each finding.
type Writer struct {
	out io.Writer
}

// New wraps w as a report Writer.
func New(w io.Writer) *Writer {
	return &Writer{out: w}
}

// Subject identifies what a diagnostic line is about: a game, an archive, or
// a specific member within an archive.
type Subject struct {
	Game    string
	Archive string
	Member  string
}

// String renders the subject's prefix, matching the three prefix forms: a
// bare game name, an archive name, or "archive/member".
func (s Subject) String() string {
	switch {
	case s.Archive != "" && s.Member != "":
		return fmt.Sprintf("%s/%s", s.Archive, s.Member)
	case s.Archive != "":
		return s.Archive
	default:
		return s.Game
	}
}

// Line writes "<subject>: <verb>" to the underlying writer.
func (w *Writer) Line(subject Subject, verb string) error {
	_, err := fmt.Fprintf(w.out, "%s: %s\n", subject, verb)
	return err
}

// Linef writes "<subject>: <format>" with the given arguments, for verbs
// that carry a parenthesized or substituted value.
func (w *Writer) Linef(subject Subject, format string, args ...interface{}) error {
	return w.Line(subject, fmt.Sprintf(format, args...))
}

// The verb constructors below each correspond to one entry in the fixed
// verb vocabulary. Keeping them as functions rather than inline format
// strings means the wording can't drift between the dry-run path and the
// fix.do path.

func VerbCorrect() string { return "correct" }

func VerbMissing() string { return "missing" }

func VerbWrongName(got string) string {
	return fmt.Sprintf("wrong name (%s)", got)
}

func VerbShort(size int64) string {
	return fmt.Sprintf("short (%s)", humanize.Comma(size))
}

func VerbTooLongUnfixable(size int64) string {
	return fmt.Sprintf("too long, unfixable (%s)", humanize.Comma(size))
}

func VerbWrongCRC(got string) string {
	return fmt.Sprintf("wrong crc (%s)", got)
}

func VerbTooLongValidSubsection(offset, size int64) string {
	return fmt.Sprintf("too long, valid subsection at byte %s (%s)", humanize.Comma(offset), humanize.Comma(size))
}

func VerbBestBadDump() string { return "best bad dump" }

func VerbShouldBeInIsIn(shouldBe, is string) string {
	return fmt.Sprintf("should be in %s, is in %s", shouldBe, is)
}

func VerbUnknown() string { return "unknown" }

func VerbNotUsed() string { return "not used" }

func VerbUsedInClone(clone string) string {
	return fmt.Sprintf("used in clone %s", clone)
}

func VerbDelete() string { return "delete" }

func VerbRename(from, to string) string {
	return fmt.Sprintf("rename %s to %s", from, to)
}

func VerbMoveUnknown(name string) string {
	return fmt.Sprintf("move unknown %s", name)
}

func VerbAddFrom(name, source string) string {
	return fmt.Sprintf("add %s from %s", name, source)
}


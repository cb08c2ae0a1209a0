package deletelist

import "testing"

func TestMarkRollback(t *testing.T) {
	l := New()
	l.Push(KindSuperfluous, Entry{Archive: "a.zip", Name: "rom0.bin"})
	mark := l.Mark()
	l.Push(KindSuperfluous, Entry{Archive: "a.zip", Name: "rom1.bin"})
	l.Push(KindNeeded, Entry{Archive: "b.zip", Name: "rom0.bin"})

	l.RollbackToMark(mark)

	if l.Len(KindSuperfluous) != 1 {
		t.Fatalf("superfluous len = %d, want 1", l.Len(KindSuperfluous))
	}
	if l.Len(KindNeeded) != 0 {
		t.Fatalf("needed len = %d, want 0", l.Len(KindNeeded))
	}
}

func TestExecuteBatchesByArchive(t *testing.T) {
	l := New()
	l.Push(KindSuperfluous, Entry{Archive: "b.zip", Name: "rom0.bin"})
	l.Push(KindExtra, Entry{Archive: "a.zip", Name: "rom2.bin"})
	l.Push(KindNeeded, Entry{Archive: "a.zip", Name: "rom1.bin"})

	var order []string
	counts := map[string]int{}
	err := l.Execute(func(b Batch) error {
		order = append(order, b.Archive)
		counts[b.Archive] = len(b.Entries)
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(order) != 2 || order[0] != "a.zip" || order[1] != "b.zip" {
		t.Fatalf("unexpected archive order: %v", order)
	}
	if counts["a.zip"] != 2 {
		t.Fatalf("a.zip batch size = %d, want 2", counts["a.zip"])
	}
}

package transcript

import (
	"testing"

	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
)

func apply(a *Assembler, events ...domain.StreamEvent) {
	for _, ev := range events {
		a.Apply(ev)
	}
}

func TestAssembler_ContinuationJoinsDirectly(t *testing.T) {
	a := NewAssembler()
	apply(a,
		domain.MessageEvent("kant", "Duty "),
		domain.MessageEvent("kant", "matters."),
	)

	entries := a.Entries()
	if len(entries) != 1 {
		t.Fatalf("Entries() count = %d, want 1", len(entries))
	}
	if entries[0].SpeakerID != "kant" {
		t.Errorf("SpeakerID = %q, want kant", entries[0].SpeakerID)
	}
	if entries[0].Text != "Duty matters." {
		t.Errorf("Text = %q, want %q", entries[0].Text, "Duty matters.")
	}
}

func TestAssembler_NoSeparatorInserted(t *testing.T) {
	a := NewAssembler()
	apply(a,
		domain.MessageEvent("hume", "Cus"),
		domain.MessageEvent("hume", ""),
		domain.MessageEvent("hume", "tom"),
	)

	if got := a.Entries()[0].Text; got != "Custom" {
		t.Errorf("Text = %q, want Custom", got)
	}
}

func TestAssembler_AlternatingSpeakers(t *testing.T) {
	a := NewAssembler()
	speakers := []string{domain.ModeratorID, "kant", "hume", "kant", domain.ModeratorID}
	for _, s := range speakers {
		a.Apply(domain.MessageEvent(s, s+" speaks"))
	}

	entries := a.Entries()
	if len(entries) != len(speakers) {
		t.Fatalf("Entries() count = %d, want %d", len(entries), len(speakers))
	}
	for i, s := range speakers {
		if entries[i].SpeakerID != s {
			t.Errorf("entries[%d].SpeakerID = %q, want %q", i, entries[i].SpeakerID, s)
		}
		if entries[i].Ordinal != i {
			t.Errorf("entries[%d].Ordinal = %d, want %d", i, entries[i].Ordinal, i)
		}
	}
}

func TestAssembler_RunsCollapse(t *testing.T) {
	a := NewAssembler()
	apply(a,
		domain.MessageEvent("a", "1"),
		domain.MessageEvent("a", "2"),
		domain.MessageEvent("b", "3"),
		domain.MessageEvent("b", "4"),
		domain.MessageEvent("b", "5"),
		domain.MessageEvent("a", "6"),
	)

	entries := a.Entries()
	want := []string{"12", "345", "6"}
	if len(entries) != len(want) {
		t.Fatalf("Entries() count = %d, want %d", len(entries), len(want))
	}
	for i, w := range want {
		if entries[i].Text != w {
			t.Errorf("entries[%d].Text = %q, want %q", i, entries[i].Text, w)
		}
	}
}

func TestAssembler_Change(t *testing.T) {
	a := NewAssembler()

	c, ok := a.Apply(domain.MessageEvent("kant", "Duty "))
	if !ok || !c.Appended {
		t.Errorf("first Apply() = %+v, %v; want appended", c, ok)
	}
	c, ok = a.Apply(domain.MessageEvent("kant", "matters."))
	if !ok || c.Appended {
		t.Errorf("continuation Apply() = %+v, %v; want not appended", c, ok)
	}
	if c.Entry.Text != "Duty matters." {
		t.Errorf("Change.Entry.Text = %q, want %q", c.Entry.Text, "Duty matters.")
	}

	if _, ok := a.Apply(domain.DoneEvent()); ok {
		t.Error("Apply(done) ok = true, want false")
	}
}

func TestAssembler_EntriesIsCopy(t *testing.T) {
	a := NewAssembler()
	a.Apply(domain.MessageEvent("kant", "Duty"))

	snapshot := a.Entries()
	a.Apply(domain.MessageEvent("kant", " matters."))

	if snapshot[0].Text != "Duty" {
		t.Errorf("snapshot mutated to %q", snapshot[0].Text)
	}
}

func TestAssembler_CurrentSpeaker(t *testing.T) {
	a := NewAssembler()
	if a.CurrentSpeaker() != "" {
		t.Errorf("CurrentSpeaker() = %q, want empty", a.CurrentSpeaker())
	}

	a.Apply(domain.MessageEvent("kant", "x"))
	a.Apply(domain.MessageEvent("hume", "y"))
	if a.CurrentSpeaker() != "hume" {
		t.Errorf("CurrentSpeaker() = %q, want hume", a.CurrentSpeaker())
	}

	a.ClearSpeaker()
	if a.CurrentSpeaker() != "" {
		t.Errorf("CurrentSpeaker() after clear = %q, want empty", a.CurrentSpeaker())
	}
	if a.Len() != 2 {
		t.Errorf("Len() = %d, want 2", a.Len())
	}

	a.Reset()
	if a.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", a.Len())
	}
}

func TestFold_ContinuationLeavesInputUntouched(t *testing.T) {
	prev := []domain.TranscriptEntry{
		{Ordinal: 0, SpeakerID: domain.ModeratorID, Text: "Welcome."},
		{Ordinal: 1, SpeakerID: "kant", Text: "Duty "},
	}

	got, c := Fold(prev, "kant", "matters.")

	if prev[1].Text != "Duty " {
		t.Errorf("input entry mutated to %q", prev[1].Text)
	}
	if got[1].Text != "Duty matters." || c.Appended {
		t.Errorf("Fold() = %q appended=%v, want continuation %q", got[1].Text, c.Appended, "Duty matters.")
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

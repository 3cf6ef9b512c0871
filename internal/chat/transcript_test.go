package chat_test

import (
	"testing"

	"github.com/omochice/toy-chat-client/internal/chat"
)

func TestTranscript_MostRecentFirst(t *testing.T) {
	tr := chat.NewTranscript(0)

	tr.Append(chat.DisplayLine{Author: "Ann", Text: "first"})
	tr.Append(chat.DisplayLine{Author: "Bob", Text: "second"})

	lines := tr.Lines()
	if len(lines) != 2 {
		t.Fatalf("Lines() len = %d, want 2", len(lines))
	}
	if lines[0].Author != "Bob" {
		t.Errorf("Lines()[0] = %+v, want newest line first", lines[0])
	}

	want := "Bob: second\nAnn: first\n"
	if got := tr.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestTranscript_Limit(t *testing.T) {
	tr := chat.NewTranscript(2)

	for _, text := range []string{"a", "b", "c"} {
		tr.Append(chat.DisplayLine{Author: "x", Text: text})
	}

	if got := tr.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	lines := tr.Lines()
	if lines[0].Text != "c" || lines[1].Text != "b" {
		t.Errorf("Lines() = %+v, want [c b]", lines)
	}
}

func TestTranscript_LinesIsCopy(t *testing.T) {
	tr := chat.NewTranscript(0)
	tr.Append(chat.DisplayLine{Author: "Ann", Text: "hi"})

	lines := tr.Lines()
	lines[0].Text = "changed"

	if got := tr.Lines()[0].Text; got != "hi" {
		t.Errorf("Lines() leaked internal slice, got %q", got)
	}
}

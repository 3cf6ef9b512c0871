package chat_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/omochice/toy-chat-client/internal/chat"
	"github.com/omochice/toy-chat-client/pkg/protocol"
)

func newDispatcher() *chat.Dispatcher {
	return chat.NewDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func decode(t *testing.T, frame string) protocol.Envelope {
	t.Helper()
	env, err := protocol.DecodeText(frame)
	if err != nil {
		t.Fatalf("DecodeText(%s) error = %v", frame, err)
	}
	return env
}

func TestDispatcher_Message(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  chat.DisplayLine
		ok    bool
	}{
		{
			name:  "chat message",
			frame: `{"type":"message","data":{"author":"Bob","text":"hi"}}`,
			want:  chat.DisplayLine{Author: "Bob", Text: "hi"},
			ok:    true,
		},
		{
			name:  "extra members are ignored",
			frame: `{"type":"message","data":{"author":"Ann","text":"yo","time":1582300000000,"color":"red"}}`,
			want:  chat.DisplayLine{Author: "Ann", Text: "yo"},
			ok:    true,
		},
		{
			name:  "missing text",
			frame: `{"type":"message","data":{"author":"Bob"}}`,
		},
		{
			name:  "non-string author",
			frame: `{"type":"message","data":{"author":false,"text":"hi"}}`,
		},
		{
			name:  "data is not an object",
			frame: `{"type":"message","data":"hi"}`,
		},
	}

	d := newDispatcher()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := d.Dispatch(decode(t, tt.frame))
			if ok != tt.ok {
				t.Fatalf("Dispatch() ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("Dispatch() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDispatcher_IgnoresOtherTypes(t *testing.T) {
	frames := []string{
		`{"type":"history","data":[{"author":"Bob","text":"hi"}]}`,
		`{"type":"color","data":"green"}`,
		`{"type":"typing","data":{"author":"Bob","text":"hi"}}`,
	}

	d := newDispatcher()
	for _, frame := range frames {
		if line, ok := d.Dispatch(decode(t, frame)); ok {
			t.Errorf("Dispatch(%s) = %+v, want no line", frame, line)
		}
	}
}

func TestDispatcher_Handle(t *testing.T) {
	d := newDispatcher()
	d.Handle("notice", func(env protocol.Envelope) (chat.DisplayLine, bool) {
		text, ok := env.Field("text")
		return chat.DisplayLine{Author: "server", Text: text}, ok
	})

	got, ok := d.Dispatch(decode(t, `{"type":"notice","data":{"text":"restarting"}}`))
	if !ok {
		t.Fatal("Dispatch() ok = false for registered type")
	}
	if got.String() != "server: restarting" {
		t.Errorf("Dispatch() = %q, want %q", got.String(), "server: restarting")
	}
}

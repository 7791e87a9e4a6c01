package moderation

import "testing"

func TestFilterFlagged(t *testing.T) {
	f := NewFilter([]string{"darn", " Heck ", ""})

	tests := []struct {
		name    string
		message string
		want    bool
	}{
		{name: "clean message", message: "hello there", want: false},
		{name: "exact word", message: "darn", want: true},
		{name: "mixed case", message: "oh DaRn it", want: true},
		{name: "substring match", message: "darnation", want: true},
		{name: "trimmed entry", message: "what the heck", want: true},
		{name: "empty message", message: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Flagged(tt.message); got != tt.want {
				t.Errorf("Flagged(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}

func TestNewFilterFallsBackToDefaults(t *testing.T) {
	f := NewFilter(nil)

	if !f.Flagged("SHIT happens") {
		t.Error("expected default block list to flag message")
	}
	if f.Flagged("nice weather") {
		t.Error("expected clean message to pass default block list")
	}
}

func TestNilFilterNeverFlags(t *testing.T) {
	var f *Filter
	if f.Flagged("anything") {
		t.Error("nil filter flagged a message")
	}
}

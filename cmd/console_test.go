package cmd

import "testing"

func TestResolveText(t *testing.T) {
	tests := []struct {
		name string
		flag string
		args []string
		want string
	}{
		{name: "args joined", args: []string{"M", "160"}, want: "M 160"},
		{name: "flag wins", flag: " S 1.5 ", args: []string{"M", "160"}, want: "S 1.5"},
		{name: "blank", args: []string{" "}, want: ""},
		{name: "none", want: ""},
	}

	for _, tt := range tests {
		consoleText = tt.flag
		if got := resolveText(tt.args); got != tt.want {
			t.Fatalf("%s: resolveText = %q, want %q", tt.name, got, tt.want)
		}
	}
	consoleText = ""
}

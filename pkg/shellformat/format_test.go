package shellformat

import "testing"

func TestCommand(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		args []string
		want string
	}{
		{
			name: "plain words stay bare",
			cmd:  "openclaw",
			args: []string{"agent", "--agent", "main"},
			want: "openclaw agent --agent main",
		},
		{
			name: "message with spaces is quoted",
			cmd:  "openclaw",
			args: []string{"agent", "--message", "task stuck for 3 hours"},
			want: "openclaw agent --message 'task stuck for 3 hours'",
		},
		{
			name: "single quote inside message",
			cmd:  "notify",
			args: []string{"it's stuck"},
			want: `notify "it's stuck"`,
		},
		{
			name: "no args",
			cmd:  "true",
			want: "true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Command(tt.cmd, tt.args...)
			if got != tt.want {
				t.Errorf("Command() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"collapses spacing", "echo   hello    world", "echo hello world"},
		{"redirect spacing", "echo hi >out.txt", "echo hi > out.txt"},
		{"empty input", "   ", ""},
		{"parse error returns input", "echo 'unterminated", "echo 'unterminated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

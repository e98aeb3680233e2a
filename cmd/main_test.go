package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestNormalizeCmd(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
		skip []string
	}{
		{
			name: "matches only",
			args: []string{"normalize", "jwara", "khansi", "xyz"},
			want: []string{"jwara\tFever", "khansi\tCough"},
			skip: []string{"xyz"},
		},
		{
			name: "all",
			args: []string{"normalize", "--all", "xyz"},
			want: []string{"xyz\t-"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			cmd := rootCmd()
			cmd.SetOut(&out)
			cmd.SetArgs(tt.args)
			if err := cmd.Execute(); err != nil {
				t.Fatalf("execute: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out.String(), w) {
					t.Errorf("expected %q in output %q", w, out.String())
				}
			}
			for _, s := range tt.skip {
				if strings.Contains(out.String(), s) {
					t.Errorf("unexpected %q in output %q", s, out.String())
				}
			}
		})
	}
}

func TestNormalizeCmd_RequiresArgs(t *testing.T) {
	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"normalize"})
	if err := cmd.Execute(); err == nil {
		t.Error("expected error without phrases")
	}
}

package main

import (
	"testing"
	"unicode/utf8"
)

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		filter  string
		want    string
		ok      bool
	}{
		{
			name:    "final transcript",
			payload: `{"eventType":"consultation.transcript.final","consultationId":"c-1","utteranceId":"c-1-utt-1","speaker":"patient","text":"teen din se bukhar"}`,
			want:    "[c-1] consultation.transcript.final c-1-utt-1 patient: teen din se bukhar",
			ok:      true,
		},
		{
			name:    "analysis completed",
			payload: `{"eventType":"consultation.analysis.completed","consultationId":"c-1","result":{"diagnosis":{"primary":"Viral fever"}}}`,
			want:    `[c-1] consultation.analysis.completed diagnosis="Viral fever"`,
			ok:      true,
		},
		{
			name:    "analysis failed",
			payload: `{"eventType":"consultation.analysis.failed","consultationId":"c-1","error":"timeout"}`,
			want:    "[c-1] consultation.analysis.failed timeout",
			ok:      true,
		},
		{
			name:    "filtered out",
			payload: `{"eventType":"consultation.transcript.final","consultationId":"c-2","text":"x"}`,
			filter:  "c-1",
		},
		{
			name:    "not json",
			payload: `garbage`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := formatEvent([]byte(tt.payload), tt.filter)
			if ok != tt.ok || got != tt.want {
				t.Errorf("formatEvent() = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"abcdef", 3, "abc..."},
		{"ab", 3, "ab"},
		{"बुखार है", 2, "बु..."},
		{"बुखार", 5, "बुखार"},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.maxLen)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.maxLen)
		}
	}
}

package symptoms

import (
	"reflect"
	"testing"
)

func TestNormalizePhrase(t *testing.T) {
	tests := []struct {
		phrase string
		want   string
	}{
		{"jwara", "Fever"},
		{"ज्वर", "Fever"},
		{"fever", "Fever"},
		{"High FEVER since three days", "Fever"},
		{"bukhar", "Fever"},
		{"బాగా జ్వరం వచ్చింది", "Fever"},
		{"காய்ச்சல்", "Fever"},
		{"জ্বর", "Fever"},
		{"khansi", "Cough"},
		{"खांसी", "Cough"},
		{"இருமல்", "Cough"},
		{"sir dard", "Headache"},
		{"सिर दर्द", "Headache"},
		{"తలనొప్పి", "Headache"},
		{"pet dard", "Abdominal Pain"},
		{"stomach pain", "Abdominal Pain"},
		{"বমি বমি ভাব", "Nausea"},
		{"বমি", "Vomiting"},
		{"उल्टी", "Vomiting"},
		{"feeling cold at night", "Chills"},
		{"runny nose", "Common Cold"},
		{"जुकाम", "Common Cold"},
		{"loose motions", "Diarrhea"},
		{"saans phoolna", "Breathlessness"},
		{"चक्कर आना", "Dizziness"},
		{"kamzori", "Weakness"},
		{"पेशाब में जलन", "Burning Urination"},
		{"can't sleep", "Insomnia"},
	}

	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			got, ok := NormalizePhrase(tt.phrase)
			if tt.want == "" {
				if ok {
					t.Errorf("NormalizePhrase(%q) = %q, want no match", tt.phrase, got)
				}
				return
			}
			if !ok || got != tt.want {
				t.Errorf("NormalizePhrase(%q) = %q, %v; want %q", tt.phrase, got, ok, tt.want)
			}
		})
	}
}

func TestNormalizePhrase_NoMatch(t *testing.T) {
	for _, p := range []string{"", "   ", "patient is otherwise well", "coldplay"} {
		if got, ok := NormalizePhrase(p); ok {
			t.Errorf("NormalizePhrase(%q) = %q, want no match", p, got)
		}
	}
}

func TestNormalizeSymptoms(t *testing.T) {
	tests := []struct {
		name     string
		regional []string
		english  []string
		want     []string
	}{
		{
			name:     "regional and english agree",
			regional: []string{"jwara"},
			english:  []string{"Fever", "Cough"},
			want:     []string{"Fever", "Cough"},
		},
		{
			name:     "case insensitive dedup",
			regional: []string{"बुखार", "jwaram"},
			english:  []string{"FEVER"},
			want:     []string{"Fever"},
		},
		{
			name:     "unmatched english kept verbatim at end",
			regional: []string{"khansi"},
			english:  []string{"Hiccups", "cough"},
			want:     []string{"Cough", "Hiccups"},
		},
		{
			name:     "unmatched regional dropped",
			regional: []string{"kuch aur"},
			english:  nil,
			want:     []string{},
		},
		{
			name:     "blank english ignored",
			regional: nil,
			english:  []string{" ", "Fever"},
			want:     []string{"Fever"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeSymptoms(tt.regional, tt.english)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeSymptoms() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTable_FirstMatchWins(t *testing.T) {
	table := compile([]rule{
		{"Specific", []string{`\bchest pain\b`}},
		{"General", []string{`\bpain\b`}},
	})

	if got, _ := table.NormalizePhrase("chest pain"); got != "Specific" {
		t.Errorf("expected Specific, got %s", got)
	}
	if got, _ := table.NormalizePhrase("knee pain"); got != "General" {
		t.Errorf("expected General, got %s", got)
	}
}

func TestDefault_LabelsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, l := range Default.Labels() {
		if seen[l] {
			t.Errorf("duplicate label %q", l)
		}
		seen[l] = true
	}
	if len(seen) < 20 {
		t.Errorf("expected at least 20 concepts, got %d", len(seen))
	}
}

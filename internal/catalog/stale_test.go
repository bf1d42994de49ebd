package catalog

import (
	"reflect"
	"testing"
)

func TestCompare(t *testing.T) {
	recorded := []DocumentRecord{
		{Name: "copd.pdf", Fingerprint: "1"},
		{Name: "asthma.pdf", Fingerprint: "2"},
		{Name: "tb.pdf", Fingerprint: "3"},
	}

	tests := []struct {
		name      string
		current   map[string]string
		want      Staleness
		wantStale bool
	}{
		{
			name:    "unchanged",
			current: map[string]string{"copd.pdf": "1", "asthma.pdf": "2", "tb.pdf": "3"},
			want:    Staleness{Added: []string{}, Changed: []string{}, Removed: []string{}},
		},
		{
			name:    "added changed removed",
			current: map[string]string{"copd.pdf": "1", "asthma.pdf": "9", "pneumonia.pdf": "4", "cf.pdf": "5"},
			want: Staleness{
				Added:   []string{"cf.pdf", "pneumonia.pdf"},
				Changed: []string{"asthma.pdf"},
				Removed: []string{"tb.pdf"},
			},
			wantStale: true,
		},
		{
			name:      "corpus emptied",
			current:   map[string]string{},
			want:      Staleness{Added: []string{}, Changed: []string{}, Removed: []string{"asthma.pdf", "copd.pdf", "tb.pdf"}},
			wantStale: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compare(recorded, tt.current)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Compare() = %+v, want %+v", got, tt.want)
			}
			if got.Stale() != tt.wantStale {
				t.Errorf("Stale() = %v, want %v", got.Stale(), tt.wantStale)
			}
		})
	}
}

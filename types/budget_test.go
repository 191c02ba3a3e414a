package types

import (
	"reflect"
	"testing"
)

func TestReadBudget_Merge_StricterWins(t *testing.T) {
	tests := []struct {
		name    string
		request ReadBudget
		defaults ReadBudget
		want    ReadBudget
	}{
		{
			name:     "request stricter on bytes",
			request:  ReadBudget{MaxFiles: 8, MaxTotalBytes: 5000},
			defaults: ReadBudget{MaxFiles: 8, MaxTotalBytes: 20000},
			want:     ReadBudget{MaxFiles: 8, MaxTotalBytes: 5000},
		},
		{
			name:     "default stricter on files",
			request:  ReadBudget{MaxFiles: 50, MaxTotalBytes: 5000},
			defaults: ReadBudget{MaxFiles: 4, MaxTotalBytes: 20000},
			want:     ReadBudget{MaxFiles: 4, MaxTotalBytes: 5000},
		},
		{
			name:     "unset side defers",
			request:  ReadBudget{},
			defaults: ReadBudget{MaxFiles: 4, MaxTotalBytes: 20000},
			want:     ReadBudget{MaxFiles: 4, MaxTotalBytes: 20000},
		},
		{
			name:     "both unset stays unlimited",
			request:  ReadBudget{},
			defaults: ReadBudget{},
			want:     ReadBudget{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.request.Merge(tt.defaults)
			if got.MaxFiles != tt.want.MaxFiles || got.MaxTotalBytes != tt.want.MaxTotalBytes {
				t.Errorf("Merge() = {files:%d bytes:%d}, want {files:%d bytes:%d}",
					got.MaxFiles, got.MaxTotalBytes, tt.want.MaxFiles, tt.want.MaxTotalBytes)
			}
		})
	}
}

func TestReadBudget_Merge_UnionsAllowlists(t *testing.T) {
	a := ReadBudget{AllowedPaths: []string{"runs/*/capsules/*.md", "docs/*.md"}}
	b := ReadBudget{AllowedPaths: []string{"docs/*.md", "runs/*/manifests/*.json"}}

	got := a.Merge(b).AllowedPaths
	want := []string{"runs/*/capsules/*.md", "docs/*.md", "runs/*/manifests/*.json"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("allowlist union = %v, want %v", got, want)
	}
}

func TestReadBudget_Unlimited(t *testing.T) {
	if !(ReadBudget{}).Unlimited() {
		t.Error("zero budget should be unlimited")
	}
	if (ReadBudget{MaxFiles: 1}).Unlimited() {
		t.Error("budget with max_files set is not unlimited")
	}
	if (ReadBudget{MaxTotalBytes: 1}).Unlimited() {
		t.Error("budget with max_total_bytes set is not unlimited")
	}
}

func TestReadBudget_Validate(t *testing.T) {
	if err := (ReadBudget{MaxFiles: -1}).Validate(); err == nil {
		t.Error("negative max_files should be rejected")
	}
	if err := (ReadBudget{MaxTotalBytes: -1}).Validate(); err == nil {
		t.Error("negative max_total_bytes should be rejected")
	}
	if err := (ReadBudget{MaxFiles: 2, MaxTotalBytes: 100}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

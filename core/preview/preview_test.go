package preview

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveTarget(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOk bool
	}{
		{
			name:   "presentation",
			raw:    "https://docs.google.com/presentation/d/XYZ/edit",
			want:   "https://docs.google.com/presentation/d/XYZ/preview",
			wantOk: true,
		},
		{
			name:   "spreadsheet",
			raw:    "https://docs.google.com/spreadsheets/d/1a-B_c/edit#gid=0",
			want:   "https://docs.google.com/spreadsheets/d/1a-B_c/preview",
			wantOk: true,
		},
		{
			name:   "document",
			raw:    "https://docs.google.com/document/d/abc123/edit?usp=sharing",
			want:   "https://docs.google.com/document/d/abc123/preview",
			wantOk: true,
		},
		{
			name:   "other docs host path defaults to document",
			raw:    "https://docs.google.com/forms/d/f0rm/viewform",
			want:   "https://docs.google.com/document/d/f0rm/preview",
			wantOk: true,
		},
		{
			name:   "drive file",
			raw:    "https://drive.google.com/file/d/FILE42/view",
			want:   "https://drive.google.com/file/d/FILE42/preview",
			wantOk: true,
		},
		{
			name:   "query parameter",
			raw:    "https://drive.google.com/open?id=Q_1-x",
			want:   "https://drive.google.com/file/d/Q_1-x/preview",
			wantOk: true,
		},
		{
			name:   "path form wins over query form",
			raw:    "https://drive.google.com/file/d/PATH/view?id=QUERY",
			want:   "https://drive.google.com/file/d/PATH/preview",
			wantOk: true,
		},
		{name: "no id", raw: "https://example.com/no-id-here"},
		{name: "empty", raw: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveTarget(tt.raw)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		want Kind
	}{
		{"photo.JPG", KindImage},
		{"scan.png", KindImage},
		{"hw1.pdf", KindPDF},
		{"essay.docx", KindDocument},
		{"notes.txt", KindFile},
		{"noext", KindFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.name))
		})
	}
}

func TestTarget(t *testing.T) {
	link := ForLink("f1", "HW1.link", " https://docs.google.com/presentation/d/XYZ/edit\n")
	assert.Equal(t, KindLink, link.Kind)
	assert.Equal(t, "https://docs.google.com/presentation/d/XYZ/edit", link.Link)
	assert.Contains(t, link.URL, "XYZ")
	assert.True(t, link.Previewable())

	dead := ForLink("f2", "HW2.link", "https://example.com/no-id-here")
	assert.Empty(t, dead.URL)
	assert.False(t, dead.Previewable())

	assert.True(t, ForFile("f3", "hw.pdf").Previewable())
	assert.False(t, ForFile("f4", "hw.zip").Previewable())
}

package acgme

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseYear(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		want    string
		wantErr bool
	}{
		{
			name: "skips placeholder row",
			html: `<table><tr><th>Academic Year</th><th>Status</th></tr>
				<tr><td>-</td><td>x</td></tr>
				<tr><td> 2020 - 2021 </td><td>Continued</td></tr>
				<tr><td>2019 - 2020</td><td>Initial</td></tr></table>`,
			want: "2020 - 2021",
		},
		{
			name: "first data row wins",
			html: `<table><tr><td>Year</td></tr><tr><td>2011 - 2012</td></tr><tr><td>2010 - 2011</td></tr></table>`,
			want: "2011 - 2012",
		},
		{
			name:    "header only",
			html:    `<table><tr><th>Academic Year</th></tr></table>`,
			wantErr: true,
		},
		{
			name:    "only empty and dash rows",
			html:    `<table><tr><th>Year</th></tr><tr><td></td></tr><tr><td>-</td></tr><tr><th>x</th></tr></table>`,
			wantErr: true,
		},
		{
			name:    "no table",
			html:    `<p>nothing</p>`,
			wantErr: true,
		},
		{
			name: "first table wins when it has a year",
			html: `<table><tr><th>Year</th></tr><tr><td>2001 - 2002</td></tr></table>
				<table><tr><th>Year</th></tr><tr><td>1999 - 2000</td></tr></table>`,
			want: "2001 - 2002",
		},
		{
			name: "header-only table before history table",
			html: `<table><tr><th>Program</th></tr></table>
				<table><tr><th>Academic Year</th></tr><tr><td>-</td></tr><tr><td>2005 - 2006</td></tr></table>`,
			want: "2005 - 2006",
		},
		{
			name: "layout table without data cells before history table",
			html: `<table><tr><th>Menu</th></tr><tr><th>Search</th></tr></table>
				<table><tr><td>2012 - 2013</td></tr></table>`,
			want: "2012 - 2013",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseYear(tt.html)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTableReader_Success(t *testing.T) {
	page := newFakePage()
	page.html = `<table><tr><th>Year</th></tr><tr><td>-</td></tr><tr><td>2020 - 2021</td></tr></table>`
	reader := NewTableReader(0, Artifacts{Dir: t.TempDir()}, nil)

	res := reader.Read(context.Background(), page, "123")

	assert.True(t, res.OK)
	assert.Equal(t, "2020 - 2021", res.Year)
	assert.Empty(t, page.screenshots)
}

func TestTableReader_HeaderOnlyCapturesScreenshot(t *testing.T) {
	dir := t.TempDir()
	page := newFakePage()
	page.html = `<table><tr><th>Academic Year</th></tr></table>`
	reader := NewTableReader(0, Artifacts{Dir: dir}, nil)

	res := reader.Read(context.Background(), page, "123")

	assert.False(t, res.OK)
	want := filepath.Join(dir, "debug_acgme_123.png")
	assert.Equal(t, want, res.Screenshot)
	assert.Equal(t, []string{want}, page.screenshots)
}

func TestTableReader_TableNeverAppears(t *testing.T) {
	page := newFakePage()
	page.waitErr = context.DeadlineExceeded
	reader := NewTableReader(0, Artifacts{Dir: t.TempDir()}, nil)

	res := reader.Read(context.Background(), page, "9")

	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Screenshot)
	assert.Zero(t, countCalls(page.calls, "html"))
}

func TestTableReader_ScreenshotFailureLeavesNoArtifact(t *testing.T) {
	page := newFakePage()
	page.html = `<table></table>`
	page.screenshotErr = errors.New("target closed")
	reader := NewTableReader(0, Artifacts{Dir: t.TempDir()}, nil)

	res := reader.Read(context.Background(), page, "9")

	assert.False(t, res.OK)
	assert.Empty(t, res.Screenshot)
}

func TestArtifacts(t *testing.T) {
	a := Artifacts{Dir: "out"}
	assert.Equal(t, filepath.Join("out", "debug_acgme_42.png"), a.Screenshot("42"))
	assert.Equal(t, filepath.Join("out", "debug_acgme_42.html"), a.Markup("42"))
	assert.Equal(t, filepath.Join(".", "debug_acgme_a_b.png"), Artifacts{}.Screenshot("a/b"))
}

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileMeta(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		dept    string
		sub     string
		ym      string
		wantErr bool
	}{
		{"marker stripped", "watch/Sales_AcmeCorp_2024年5月_WEB.xlsx", "Sales", "AcmeCorp", "2024-05", false},
		{"lower case marker", "Sales_AcmeCorp_2024年5月_web.csv", "Sales", "AcmeCorp", "2024-05", false},
		{"japanese names", "/in/営業部_山田工業_2023年12月請求.xlsx", "営業部", "山田工業", "2023-12", false},
		{"underscores in subcontractor", "A_B_C_2024年1月.xlsx", "A", "B_C", "2024-01", false},
		{"no month", "Sales_AcmeCorp_2024年.xlsx", "", "", "", true},
		{"bad month", "Sales_AcmeCorp_2024年13月.xlsx", "", "", "", true},
		{"no underscores", "invoice.xlsx", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseFileMeta(tt.path, []string{"WEB"})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrFilenameParse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.dept, m.Department)
			assert.Equal(t, tt.sub, m.Subcontractor)
			assert.Equal(t, tt.ym, m.YearMonth())
			assert.Equal(t, tt.path, m.Path)
		})
	}
}

func TestFileMetaHelpers(t *testing.T) {
	m := FileMeta{Path: "a.xlsx", Year: 2024, Month: 5}
	assert.Equal(t, "2024", m.YearString())
	assert.Equal(t, "a.xlsx", m.Label())
	m.Sheet = "S1"
	assert.Equal(t, "a.xlsx#S1", m.Label())

	assert.Equal(t, "", FileMeta{}.YearMonth())
}

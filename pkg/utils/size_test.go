package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{input: "4096", want: 4096},
		{input: "100B", want: 100},
		{input: "1KB", want: 1024},
		{input: "1k", want: 1024},
		{input: "64MB", want: 64 << 20},
		{input: " 2 GB ", want: 2 << 30},
		{input: "1.5G", want: 3 << 29},
		{input: "1TB", want: 1 << 40},
		{input: "0", want: 0},
		{input: "", wantErr: true},
		{input: "MB", wantErr: true},
		{input: "ten MB", wantErr: true},
		{input: "-1MB", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBytes(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KB", FormatBytes(1024))
	assert.Equal(t, "64.0 MB", FormatBytes(64<<20))
	assert.Equal(t, "1.5 GB", FormatBytes(3<<29))
}

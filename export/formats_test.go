package export_test

import (
	"testing"
	"time"

	"github.com/c360studio/matchroom/export"
	"github.com/c360studio/matchroom/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFormatInfo(t *testing.T) {
	formats := []export.Format{export.FormatJSON, export.FormatJSONZstd}
	for _, format := range formats {
		t.Run(string(format), func(t *testing.T) {
			info, ok := export.GetFormatInfo(format)
			require.True(t, ok)
			assert.Equal(t, format, info.Name)
			assert.NotEmpty(t, info.MIMEType)
			assert.NotEmpty(t, info.Extension)
		})
	}

	_, ok := export.GetFormatInfo("xml")
	assert.False(t, ok)
}

func TestParseFormat(t *testing.T) {
	f, err := export.ParseFormat("json+zstd")
	require.NoError(t, err)
	assert.Equal(t, export.FormatJSONZstd, f)

	_, err = export.ParseFormat("yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json, json+zstd")
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    export.Format
		wantErr bool
	}{
		{"backup.json", export.FormatJSON, false},
		{"/tmp/dir/backup.JSON", export.FormatJSON, false},
		{"backup.json.zst", export.FormatJSONZstd, false},
		{"backup.zst", "", true},
		{"backup.txt", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := export.FormatFromPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	b := &export.Bundle{
		Version:    export.SchemaVersion,
		ExportDate: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Rooms:      []storage.Room{{ID: "r1", Name: "Office"}},
	}

	plain, err := export.Encode(b, export.FormatJSON)
	require.NoError(t, err)

	compressed, err := export.Encode(b, export.FormatJSONZstd)
	require.NoError(t, err)
	assert.NotEqual(t, plain, compressed)

	decoded, err := export.Decode(compressed, export.FormatJSONZstd)
	require.NoError(t, err)
	assert.JSONEq(t, string(plain), string(decoded))

	got, err := export.Validate(decoded)
	require.NoError(t, err)
	assert.Equal(t, "Office", got.Rooms[0].Name)

	_, err = export.Decode([]byte("not zstd"), export.FormatJSONZstd)
	assert.Error(t, err)

	_, err = export.Encode(b, "xml")
	assert.Error(t, err)
}

func TestFileName(t *testing.T) {
	date := time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC)
	tests := []struct {
		name   string
		bundle *export.Bundle
		format export.Format
		want   string
	}{
		{"full", &export.Bundle{ExportDate: date}, export.FormatJSON, "matchroom-backup-2024-03-01.json"},
		{"full compressed", &export.Bundle{ExportDate: date}, export.FormatJSONZstd, "matchroom-backup-2024-03-01.json.zst"},
		{
			"room",
			&export.Bundle{ExportDate: date, Room: &storage.Room{ID: "r1", Name: "Office Ping Pong!"}},
			export.FormatJSON,
			"matchroom-room-office-ping-pong-2024-03-01.json",
		},
		{
			"room name without letters",
			&export.Bundle{ExportDate: date, Room: &storage.Room{ID: "r1", Name: "!!!"}},
			export.FormatJSON,
			"matchroom-room-r1-2024-03-01.json",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, export.FileName(tt.bundle, tt.format))
		})
	}
}

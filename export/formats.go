package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/klauspost/compress/zstd"
)

// Format identifies a bundle file encoding.
type Format string

const (
	FormatJSON     Format = "json"
	FormatJSONZstd Format = "json+zstd"
)

// FormatInfo provides metadata about a bundle format.
type FormatInfo struct {
	// Name is the format identifier.
	Name Format

	// MIMEType is the standard MIME type.
	MIMEType string

	// Extension is the file extension (with dot).
	Extension string

	// Description describes the format.
	Description string
}

// FormatRegistry contains metadata for all supported formats.
var FormatRegistry = map[Format]FormatInfo{
	FormatJSON: {
		Name:        FormatJSON,
		MIMEType:    "application/json",
		Extension:   ".json",
		Description: "Indented JSON bundle",
	},
	FormatJSONZstd: {
		Name:        FormatJSONZstd,
		MIMEType:    "application/zstd",
		Extension:   ".json.zst",
		Description: "JSON bundle compressed with Zstandard",
	},
}

// GetFormatInfo returns metadata for a format.
func GetFormatInfo(format Format) (FormatInfo, bool) {
	info, ok := FormatRegistry[format]
	return info, ok
}

// Formats lists the registered format names, sorted.
func Formats() []string {
	names := make([]string, 0, len(FormatRegistry))
	for f := range FormatRegistry {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}

// ParseFormat resolves a format name.
func ParseFormat(name string) (Format, error) {
	if _, ok := FormatRegistry[Format(name)]; !ok {
		return "", fmt.Errorf("unknown format %q (supported: %s)", name, strings.Join(Formats(), ", "))
	}
	return Format(name), nil
}

// FormatFromPath detects the format from a file name. The longest matching
// extension wins, so "x.json.zst" is compressed JSON.
func FormatFromPath(path string) (Format, error) {
	var best FormatInfo
	for _, info := range FormatRegistry {
		if strings.HasSuffix(strings.ToLower(path), info.Extension) && len(info.Extension) > len(best.Extension) {
			best = info
		}
	}
	if best.Name == "" {
		return "", fmt.Errorf("unrecognized bundle file extension: %s", path)
	}
	return best.Name, nil
}

// Encode serializes a bundle in the given format.
func Encode(b *Bundle, format Format) ([]byte, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal bundle: %w", err)
	}

	switch format {
	case FormatJSON:
		return data, nil
	case FormatJSONZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	}
	return nil, fmt.Errorf("unknown format %q", format)
}

// Decode returns the raw JSON document held in data.
func Decode(data []byte, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return data, nil
	case FormatJSONZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress bundle: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown format %q", format)
}

// FileName returns the conventional file name for a bundle:
// matchroom-backup-2024-03-01.json for full exports and
// matchroom-room-<room-slug>-2024-03-01.json for single rooms.
func FileName(b *Bundle, format Format) string {
	ext := FormatRegistry[FormatJSON].Extension
	if info, ok := GetFormatInfo(format); ok {
		ext = info.Extension
	}
	date := b.ExportDate.UTC().Format(time.DateOnly)

	if b.Room != nil {
		name := slug.Make(b.Room.Name)
		if name == "" {
			name = b.Room.ID
		}
		return fmt.Sprintf("matchroom-room-%s-%s%s", name, date, ext)
	}
	return fmt.Sprintf("matchroom-backup-%s%s", date, ext)
}

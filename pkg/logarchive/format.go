package logarchive

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/paulschiretz/pgl-series/pkg/util"
)

// Format is the container a previous run log is compressed into.
type Format string

const (
	Zip Format = "zip"
	Gz  Format = "gz"
	Zst Format = "zst"
)

var formatToString = map[Format]string{
	Zip: "zip",
	Gz:  "gz",
	Zst: "zst",
}

var stringToFormat = util.InvertMap(formatToString)

func (f Format) String() string {
	if str, ok := formatToString[f]; ok {
		return str
	}
	return fmt.Sprintf("unknown_archive_format(%s)", string(f))
}

// Extension returns the suffix appended to an archived log file.
func (f Format) Extension() string {
	return "." + f.String()
}

// ParseFormat parses a string into a Format.
func ParseFormat(s string) (Format, error) {
	if format, ok := stringToFormat[s]; ok {
		return format, nil
	}
	return "", fmt.Errorf("invalid log archive format: %q. Must be 'zip', 'gz', or 'zst'", s)
}

// MarshalJSON implements the json.Marshaler interface for Format.
func (f Format) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Format.
func (f *Format) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("log archive format should be a string, got %s", data)
	}
	format, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = format
	return nil
}

// Level represents the desired trade-off between speed and size of the compression.
type Level string

const (
	Default Level = "default"
	Fastest Level = "fastest"
	Better  Level = "better"
	Best    Level = "best"
)

var levelToString = map[Level]string{
	Default: "default",
	Fastest: "fastest",
	Better:  "better",
	Best:    "best",
}

var stringToLevel = util.InvertMap(levelToString)

func (l Level) String() string {
	if str, ok := levelToString[l]; ok {
		return str
	}
	return string(Default)
}

// ParseLevel parses a string into a compression Level.
// It defaults to default level if the string is empty.
func ParseLevel(s string) (Level, error) {
	if s == "" {
		return Default, nil
	}
	if l, ok := stringToLevel[s]; ok {
		return l, nil
	}
	return "", fmt.Errorf("invalid compression level: %q. Must be 'default', 'fastest', 'better', or 'best'", s)
}

// MarshalJSON implements the json.Marshaler interface.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("compression level should be a string, got %s", data)
	}
	level, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = level
	return nil
}

func (l Level) flate() int {
	switch l {
	case Fastest:
		return flate.BestSpeed
	case Better:
		return 6
	case Best:
		return flate.BestCompression
	default:
		return flate.DefaultCompression
	}
}

func (l Level) gzip() int {
	switch l {
	case Fastest:
		return pgzip.BestSpeed
	case Best:
		return pgzip.BestCompression
	default:
		return pgzip.DefaultCompression
	}
}

func (l Level) zstd() zstd.EncoderLevel {
	switch l {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

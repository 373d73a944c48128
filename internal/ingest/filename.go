package ingest

import (
	"path/filepath"
	"strings"
	"time"
)

// timestampTokens is the number of leading "_" separated tokens holding the
// capture date and time.
const timestampTokens = 2

// TimestampLayout is the capture time prefix of an extraction file name, in
// local time.
const TimestampLayout = "20060102_150405"

// Identity is the natural key of an extraction, plus the capture time taken
// from its file name. CapturedAt is zero when the prefix is not a valid
// timestamp.
type Identity struct {
	Source     string
	Key        string
	CapturedAt time.Time
}

func (id Identity) String() string {
	return id.Source + "/" + id.Key
}

// ParseFilename splits an extraction filename of the form
// YYYYMMDD_HHMMSS_Source_Name_Key.ext into its source and key. The source
// may itself contain underscores; the key is the last token. It reports
// false when the name has too few tokens.
func ParseFilename(name string) (Identity, bool) {
	parts := strings.Split(filepath.Base(name), "_")
	if len(parts) < 4 {
		return Identity{}, false
	}

	remaining := parts[timestampTokens:]
	key, _, _ := strings.Cut(remaining[len(remaining)-1], ".")
	source := strings.Join(remaining[:len(remaining)-1], "_")
	if key == "" || source == "" {
		return Identity{}, false
	}
	id := Identity{Source: source, Key: key}
	if t, err := time.ParseInLocation(TimestampLayout, parts[0]+"_"+parts[1], time.Local); err == nil {
		id.CapturedAt = t
	}
	return id, true
}

// baseName strips the extension from a file name.
func baseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

package cache

import (
	"bytes"
	"encoding/gob"
	"time"
)

// IndexVersion is incremented when the entry format changes.
const IndexVersion = 1

// KeySeparator separates package name from version in index keys.
const KeySeparator = '\x00'

// Entry describes one cached package archive.
type Entry struct {
	Name    string
	Version string
	Option  string
	Archive string // file name under the archives directory
	Size    int64
	Created int64 // UnixNano
}

// CreatedAt returns when the entry was added.
func (e *Entry) CreatedAt() time.Time {
	return time.Unix(0, e.Created)
}

// Encode serializes the entry using gob.
func (e *Entry) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes data into the entry.
func (e *Entry) Decode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(e)
}

// MakeKey creates an index key. Format: <name>\x00<version>
func MakeKey(name, version string) []byte {
	return []byte(name + string(KeySeparator) + version)
}

// ParseKey splits an index key into package name and version.
func ParseKey(key []byte) (name, version string) {
	idx := bytes.IndexByte(key, KeySeparator)
	if idx == -1 {
		return string(key), ""
	}
	return string(key[:idx]), string(key[idx+1:])
}

// MakeKeyPrefix returns the prefix shared by every version of name.
func MakeKeyPrefix(name string) []byte {
	return []byte(name + string(KeySeparator))
}

package blobstore

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// BlobAttributes is the metadata record kept for every blob. A record is
// written in full or not at all; readers never observe a torn record.
type BlobAttributes struct {
	CreationTime  time.Time
	Size          int64
	SHA1          string
	Headers       map[string]string
	Deleted       bool
	DeletedReason string
}

// Clone returns a deep copy.
func (a *BlobAttributes) Clone() *BlobAttributes {
	if a == nil {
		return nil
	}
	c := *a
	if a.Headers != nil {
		c.Headers = make(map[string]string, len(a.Headers))
		for k, v := range a.Headers {
			c.Headers[k] = v
		}
	}
	return &c
}

// Properties record field names. Original headers are stored under the same
// record with the headerPrefix to disambiguate them from system fields.
const (
	propCreationTime  = "creationTime"
	propSize          = "size"
	propSHA1          = "sha1"
	propDeleted       = "deleted"
	propDeletedReason = "deletedReason"

	headerPrefix = "@"
)

// MarshalProperties encodes the record as the flat key=value text format
// used for .properties companion objects and the bootstrap marker. Keys are
// sorted so the encoding is deterministic.
func (a *BlobAttributes) MarshalProperties() []byte {
	props := map[string]string{
		propCreationTime: strconv.FormatInt(a.CreationTime.UnixMilli(), 10),
		propSize:         strconv.FormatInt(a.Size, 10),
		propSHA1:         a.SHA1,
	}
	if a.Deleted {
		props[propDeleted] = "true"
		if a.DeletedReason != "" {
			props[propDeletedReason] = a.DeletedReason
		}
	}
	for k, v := range a.Headers {
		props[headerPrefix+k] = v
	}
	return marshalProperties(props)
}

// UnmarshalProperties decodes a .properties companion record.
func UnmarshalProperties(data []byte) (*BlobAttributes, error) {
	props, err := parseProperties(data)
	if err != nil {
		return nil, err
	}

	millis, err := strconv.ParseInt(props[propCreationTime], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", propCreationTime, err)
	}
	size, err := strconv.ParseInt(props[propSize], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", propSize, err)
	}

	attrs := &BlobAttributes{
		CreationTime:  time.UnixMilli(millis).UTC(),
		Size:          size,
		SHA1:          props[propSHA1],
		Deleted:       props[propDeleted] == "true",
		DeletedReason: props[propDeletedReason],
	}
	for k, v := range props {
		if strings.HasPrefix(k, headerPrefix) {
			if attrs.Headers == nil {
				attrs.Headers = make(map[string]string)
			}
			attrs.Headers[strings.TrimPrefix(k, headerPrefix)] = v
		}
	}
	return attrs, nil
}

func marshalProperties(props map[string]string) []byte {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(props[k])
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// parseProperties reads flat key=value lines. Values may themselves contain
// '='; only the first one splits.
func parseProperties(data []byte) (map[string]string, error) {
	props := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("malformed properties line %q", line)
		}
		props[k] = v
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return props, nil
}

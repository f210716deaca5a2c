package deb

import (
	"strconv"
	"strings"
	"time"
)

// Layout of an ar member header. Each field is left-aligned text padded
// with spaces to its width; the header ends with headerTerminator.
//
// Reference: https://pubs.opengroup.org/onlinepubs/9699919799/utilities/ar.html
const (
	// ArchiveMagic is the global signature opening every ar archive.
	ArchiveMagic = "!<arch>\n"

	// HeaderSize is the encoded size of a member header, terminator included.
	HeaderSize = 60

	headerTerminator = "`\n"

	defaultOwnerID  = "0"
	defaultGroupID  = "0"
	defaultFileMode = "100644"
)

// headerField describes one fixed-width header field.
type headerField struct {
	name    string
	width   int
	base    int // 0 for free text, otherwise the radix the value must parse in
	value   func(*MemberHeader) *string
	initial string
}

var headerFields = []headerField{
	{name: "name", width: 16, value: func(h *MemberHeader) *string { return &h.Name }},
	{name: "timestamp", width: 12, base: 10, value: func(h *MemberHeader) *string { return &h.Timestamp }},
	{name: "ownerId", width: 6, base: 10, value: func(h *MemberHeader) *string { return &h.OwnerID }, initial: defaultOwnerID},
	{name: "groupId", width: 6, base: 10, value: func(h *MemberHeader) *string { return &h.GroupID }, initial: defaultGroupID},
	{name: "fileMode", width: 8, base: 8, value: func(h *MemberHeader) *string { return &h.FileMode }, initial: defaultFileMode},
	{name: "size", width: 10, base: 10, value: func(h *MemberHeader) *string { return &h.Size }},
}

// MemberHeader holds the textual fields of an ar member header.
//
// Empty fields take their defaults when encoded: Timestamp is the current
// time in epoch seconds, OwnerID and GroupID are "0" and FileMode is
// "100644". Name and Size are required.
type MemberHeader struct {
	Name      string
	Timestamp string
	OwnerID   string
	GroupID   string
	FileMode  string // octal
	Size      string
}

// NewMemberHeader returns a header for a regular file member named name
// holding size bytes, stamped with modTime (now if zero).
func NewMemberHeader(name string, size int64, modTime time.Time) MemberHeader {
	h := MemberHeader{Name: name, Size: strconv.FormatInt(size, 10)}
	if !modTime.IsZero() {
		h.Timestamp = strconv.FormatInt(modTime.Unix(), 10)
	}
	return h
}

// Encode validates the header and returns its HeaderSize bytes encoding.
// A field that is not a non-negative integer where one is expected, or
// that is longer than its width, yields a *FieldError.
func (h MemberHeader) Encode() ([]byte, error) {
	if h.Name == "" {
		return nil, &FieldError{Field: "name", Reason: "is required"}
	}
	if h.Size == "" {
		return nil, &FieldError{Field: "size", Reason: "is required"}
	}
	if h.Timestamp == "" {
		h.Timestamp = strconv.FormatInt(time.Now().Unix(), 10)
	}

	var b strings.Builder
	b.Grow(HeaderSize)
	for _, f := range headerFields {
		v := *f.value(&h)
		if v == "" {
			v = f.initial
		}
		if f.base != 0 {
			if n, err := strconv.ParseInt(v, f.base, 64); err != nil || n < 0 {
				return nil, &FieldError{Field: f.name, Value: v, Reason: "must be a non-negative integer"}
			}
		}
		if len(v) > f.width {
			return nil, &FieldError{Field: f.name, Value: v, Reason: "must be at most " + strconv.Itoa(f.width) + " characters"}
		}
		b.WriteString(v)
		b.WriteString(strings.Repeat(" ", f.width-len(v)))
	}
	b.WriteString(headerTerminator)
	return []byte(b.String()), nil
}

// SizeInt returns Size as an integer.
func (h MemberHeader) SizeInt() (int64, error) {
	n, err := strconv.ParseInt(h.Size, 10, 64)
	if err != nil || n < 0 {
		return 0, &FieldError{Field: "size", Value: h.Size, Reason: "must be a non-negative integer"}
	}
	return n, nil
}

// DecodeHeader parses an encoded member header, trimming the padding of
// every field. It is the inverse of MemberHeader.Encode.
func DecodeHeader(b []byte) (MemberHeader, error) {
	var h MemberHeader
	if len(b) != HeaderSize {
		return h, &FieldError{Field: "header", Value: string(b), Reason: "must be exactly " + strconv.Itoa(HeaderSize) + " bytes"}
	}
	if string(b[HeaderSize-len(headerTerminator):]) != headerTerminator {
		return h, &FieldError{Field: "terminator", Value: string(b[HeaderSize-len(headerTerminator):]), Reason: "must be \"`\\n\""}
	}
	off := 0
	for _, f := range headerFields {
		*f.value(&h) = strings.TrimRight(string(b[off:off+f.width]), " ")
		off += f.width
	}
	return h, nil
}

// Copyright 2015 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restdata

import (
	"encoding/base64"
)

// urlSafe decides whether a counter ID can appear in a URL path
// segment as-is.  The empty ID and IDs starting with "-" are never
// safe, since they would be ambiguous with encoded IDs.
func urlSafe(id string) bool {
	if id == "" || id[0] == '-' {
		return false
	}
	for _, c := range id {
		switch {
		// These characters are "unreserved"
		// in RFC 3986 section 2.3, plus ":"
		case c == '-', c == '.', c == '_', c == '~', c == ':',
			(c >= 'a' && c <= 'z'),
			(c >= 'A' && c <= 'Z'),
			(c >= '0' && c <= '9'):
			continue
		default:
			return false
		}
	}
	return true
}

// EncodeID examines a counter ID, and if it cannot be directly
// inserted into a URL as-is, base64 encodes it.  More specifically,
// the encoded ID begins with - and uses the URL-safe base64 alphabet
// with no padding.
func EncodeID(id string) string {
	if urlSafe(id) {
		return id
	}
	return "-" + base64.RawURLEncoding.EncodeToString([]byte(id))
}

// DecodeID is the dual of EncodeID.  Returns ErrBadRequest if the
// string begins with - and the remainder of the string isn't
// actually base64 encoded.
func DecodeID(segment string) (string, error) {
	if len(segment) == 0 || segment[0] != '-' {
		return segment, nil
	}
	bytes, err := base64.RawURLEncoding.DecodeString(segment[1:])
	if err != nil {
		return "", ErrBadRequest{Err: err}
	}
	return string(bytes), nil
}

// Copyright 2015 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restdata

import (
	"io"
	"mime"

	"github.com/ugorji/go/codec"
)

// Decode tries to decode a restdata object from a reader, such as an
// HTTP request or response.  out must be a pointer type.
func Decode(contentType string, r io.Reader, out interface{}) error {
	if contentType == "" {
		// RFC 7231 section 3.1.1.5
		// We could also consider http.DetectContentType()
		contentType = "application/octet-stream"
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ErrBadRequest{Err: err}
	}

	// Promote to more specific types
	switch mediaType {
	case "text/json", "application/json", JSONMediaType, V1JSONMediaType:
		mediaType = V1JSONMediaType

	default:
		return ErrUnsupportedMediaType{Type: mediaType}
	}

	// Actually decode the object based on the selected type.
	switch mediaType {
	case V1JSONMediaType:
		decoder := codec.NewDecoder(r, JSONHandle())
		err = decoder.Decode(out)
		if err != nil {
			err = ErrBadRequest{Err: err}
		}
	default:
		err = ErrUnsupportedMediaType{Type: mediaType}
	}
	return err
}

// Encode writes a restdata object to w as V1JSONMediaType.
func Encode(w io.Writer, in interface{}) error {
	return codec.NewEncoder(w, JSONHandle()).Encode(in)
}

// JSONHandle returns the codec handle for the JSON media types.
func JSONHandle() *codec.JsonHandle {
	return &codec.JsonHandle{}
}

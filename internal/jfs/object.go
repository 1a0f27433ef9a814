package jfs

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Object is the tagged union decoded from a backend XML document:
// exactly one of *File or *Folder. A document rooted at <error> is
// surfaced as a *BackendError error value instead.
type Object interface {
	// DeletedAt returns the soft-delete timestamp, if any. An object
	// carrying one is still returned by the backend but must be
	// treated as absent by read-path operations.
	DeletedAt() *time.Time
}

// DecodeObject decodes a backend XML document. The first recognized
// root element of file, folder or error wins; any other leading tag is
// treated as an insignificant wrapper and scanned through. Reaching the
// end of the document first is ErrUnexpectedEOF.
func DecodeObject(data []byte) (Object, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil, ErrUnexpectedEOF
		}
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "file":
			log.Trace().Str("action", "decode").Str("root", "file").Msg("decoding file")
			return decodeFile(dec, start)
		case "folder":
			log.Trace().Str("action", "decode").Str("root", "folder").Msg("decoding folder")
			return decodeFolder(dec, start)
		case "error":
			log.Trace().Str("action", "decode").Str("root", "error").Msg("decoding error")
			be, err := decodeBackendError(dec)
			if err != nil {
				return nil, err
			}
			return nil, be
		default:
			log.Trace().Str("action", "decode").Str("root", start.Name.Local).Msg("unrecognized root, scanning on")
		}
	}
}

// elementText collects the character data of the current element up to
// its end tag. Nested elements are skipped wholesale.
func elementText(dec *xml.Decoder) (string, error) {
	var buf bytes.Buffer
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return "", ErrUnexpectedEOF
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if err := dec.Skip(); err != nil {
				return "", err
			}
		case xml.CharData:
			buf.Write(t)
		case xml.EndElement:
			return string(bytes.TrimSpace(buf.Bytes())), nil
		}
	}
}

func elementInt(dec *xml.Decoder) (int64, error) {
	s, err := elementText(dec)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(s, 10, 64)
}

func elementTime(dec *xml.Decoder) (*time.Time, error) {
	s, err := elementText(dec)
	if err != nil {
		return nil, err
	}
	t, err := ParseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// skipElement consumes the current element and its whole subtree.
func skipElement(dec *xml.Decoder) error {
	if err := dec.Skip(); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrUnexpectedEOF
		}
		return err
	}
	return nil
}

func attrTime(value string) (*time.Time, error) {
	t, err := ParseTime(value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

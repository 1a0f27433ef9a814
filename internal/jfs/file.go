package jfs

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"time"

	"github.com/rs/zerolog/log"
)

// TransferState is the backend's per-revision upload state.
type TransferState int

const (
	TransferIncomplete TransferState = iota
	TransferCompleted
)

func (s TransferState) String() string {
	if s == TransferCompleted {
		return "COMPLETED"
	}
	return "INCOMPLETE"
}

// ParseTransferState converts the backend's state token.
func ParseTransferState(s string) (TransferState, error) {
	switch s {
	case "COMPLETED":
		return TransferCompleted, nil
	case "INCOMPLETE":
		return TransferIncomplete, nil
	}
	return 0, fmt.Errorf("jfs: unknown transfer state %q", s)
}

// File is a single file object. Only the current revision's fields are
// modeled; the revision history is skipped during decode.
type File struct {
	Name        string
	UUID        string
	RequestTime *time.Time
	Abspath     string
	Revision    int64
	State       TransferState
	Created     *time.Time
	Modified    *time.Time
	Updated     *time.Time
	MIME        string
	// Size is zero while a transfer is incomplete; the backend omits
	// the element in that case.
	Size    int64
	MD5     string
	Deleted *time.Time
}

func (f *File) DeletedAt() *time.Time { return f.Deleted }

// fileTags is the closed child-tag schema for <file>. A nil handler
// means the element introduces children handled by this same table
// (the revision wrappers); anything absent from the table is a hard
// decode failure.
var fileTags map[string]func(*File, *xml.Decoder) error

func init() {
	fileTags = map[string]func(*File, *xml.Decoder) error{
		// Wrappers around the revision fields; their children are
		// dispatched through this table as they appear.
		"currentRevision": nil,
		"latestRevision":  nil,

		// Duplicate of abspath, and history we do not model.
		"path":      func(_ *File, d *xml.Decoder) error { return skipElement(d) },
		"revisions": func(_ *File, d *xml.Decoder) error { return skipElement(d) },

		"abspath": func(f *File, d *xml.Decoder) error {
			s, err := elementText(d)
			f.Abspath = s
			return err
		},
		"number": func(f *File, d *xml.Decoder) error {
			n, err := elementInt(d)
			if err != nil {
				return fmt.Errorf("jfs: parse file revision: %w", err)
			}
			f.Revision = n
			return nil
		},
		"state": func(f *File, d *xml.Decoder) error {
			s, err := elementText(d)
			if err != nil {
				return err
			}
			f.State, err = ParseTransferState(s)
			return err
		},
		"created": func(f *File, d *xml.Decoder) error {
			t, err := elementTime(d)
			f.Created = t
			return err
		},
		"modified": func(f *File, d *xml.Decoder) error {
			t, err := elementTime(d)
			f.Modified = t
			return err
		},
		"updated": func(f *File, d *xml.Decoder) error {
			t, err := elementTime(d)
			f.Updated = t
			return err
		},
		"mime": func(f *File, d *xml.Decoder) error {
			s, err := elementText(d)
			if err != nil {
				return err
			}
			mt, _, err := mime.ParseMediaType(s)
			if err != nil {
				return fmt.Errorf("jfs: parse mime %q: %w", s, err)
			}
			f.MIME = mt
			return nil
		},
		"size": func(f *File, d *xml.Decoder) error {
			n, err := elementInt(d)
			if err != nil {
				return fmt.Errorf("jfs: parse file size: %w", err)
			}
			f.Size = n
			return nil
		},
		"md5": func(f *File, d *xml.Decoder) error {
			s, err := elementText(d)
			f.MD5 = s
			return err
		},
	}
}

// decodeFile decodes a <file> element whose start tag has already been
// consumed.
func decodeFile(dec *xml.Decoder, start xml.StartElement) (*File, error) {
	f := &File{}
	for _, a := range start.Attr {
		switch a.Name.Local {
		case "name":
			f.Name = a.Value
		case "uuid":
			f.UUID = a.Value
		case "time":
			t, err := attrTime(a.Value)
			if err != nil {
				return nil, err
			}
			f.RequestTime = t
		case "deleted":
			t, err := attrTime(a.Value)
			if err != nil {
				return nil, err
			}
			f.Deleted = t
		case "host":
			// ignored
		default:
			log.Trace().Str("action", "decode").Str("attr", a.Name.Local).Msg("unhandled file attribute")
		}
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil, ErrUnexpectedEOF
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			h, ok := fileTags[t.Name.Local]
			if !ok {
				return nil, &UnexpectedTagError{Tag: t.Name.Local}
			}
			if h == nil {
				continue
			}
			if err := h(f, dec); err != nil {
				return nil, err
			}
		case xml.EndElement:
			// Revision wrappers close here too; only </file> ends us.
			if t.Name.Local == "file" {
				return f, nil
			}
		}
	}
}

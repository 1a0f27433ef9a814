package jfs

import (
	"encoding/xml"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog/log"
)

// Folder is a directory object. It exclusively owns its child
// sequences; the tree never contains back-references.
type Folder struct {
	Name        string
	RequestTime *time.Time
	Deleted     *time.Time
	Abspath     string
	Files       []File
	Folders     []Folder
}

func (f *Folder) DeletedAt() *time.Time { return f.Deleted }

// decodeFolder decodes a <folder> element whose start tag has already
// been consumed. Self-closing folders come out empty.
func decodeFolder(dec *xml.Decoder, start xml.StartElement) (*Folder, error) {
	f := &Folder{}
	for _, a := range start.Attr {
		switch a.Name.Local {
		case "name":
			f.Name = a.Value
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
			log.Trace().Str("action", "decode").Str("attr", a.Name.Local).Msg("unhandled folder attribute")
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
			switch t.Name.Local {
			case "abspath":
				s, err := elementText(dec)
				if err != nil {
					return nil, err
				}
				f.Abspath = s
			case "folders":
				subs, err := decodeFolderList(dec)
				if err != nil {
					return nil, err
				}
				f.Folders = subs
			case "files":
				files, err := decodeFileList(dec)
				if err != nil {
					return nil, err
				}
				f.Files = files
			case "path", "metadata":
				// path mirrors abspath; metadata is summary counters.
				if err := skipElement(dec); err != nil {
					return nil, err
				}
			default:
				return nil, &UnexpectedTagError{Tag: t.Name.Local}
			}
		case xml.EndElement:
			if t.Name.Local == "folder" {
				return f, nil
			}
		}
	}
}

// decodeFolderList reads <folder> items until </folders>, preserving
// order of appearance.
func decodeFolderList(dec *xml.Decoder) ([]Folder, error) {
	var out []Folder
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
			if t.Name.Local != "folder" {
				return nil, &UnexpectedTagError{Tag: t.Name.Local}
			}
			sub, err := decodeFolder(dec, t)
			if err != nil {
				return nil, err
			}
			out = append(out, *sub)
		case xml.EndElement:
			return out, nil
		}
	}
}

// decodeFileList reads <file> items until </files>, preserving order.
func decodeFileList(dec *xml.Decoder) ([]File, error) {
	var out []File
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
			if t.Name.Local != "file" {
				return nil, &UnexpectedTagError{Tag: t.Name.Local}
			}
			file, err := decodeFile(dec, t)
			if err != nil {
				return nil, err
			}
			out = append(out, *file)
		case xml.EndElement:
			return out, nil
		}
	}
}

// decodeBackendError decodes an <error> document body. Only code,
// message and reason are retained; the schema is closed like the rest.
func decodeBackendError(dec *xml.Decoder) (*BackendError, error) {
	be := &BackendError{}
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
			switch t.Name.Local {
			case "code":
				n, err := elementInt(dec)
				if err != nil {
					return nil, err
				}
				be.Code = int(n)
			case "message":
				s, err := elementText(dec)
				if err != nil {
					return nil, err
				}
				be.Message = s
			case "reason":
				s, err := elementText(dec)
				if err != nil {
					return nil, err
				}
				be.Reason = s
			case "cause", "hostname", "x-id":
				if err := skipElement(dec); err != nil {
					return nil, err
				}
			default:
				return nil, &UnexpectedTagError{Tag: t.Name.Local}
			}
		case xml.EndElement:
			if t.Name.Local == "error" {
				log.Debug().
					Str("action", "decode").
					Int("code", be.Code).
					Str("reason", be.Reason).
					Msg("backend error document")
				return be, nil
			}
		}
	}
}

// Package attachments implements the Attachment Pipeline: turning a
// downloaded Telegram photo or document into a backend content block,
// and coalescing Telegram media-group (album) updates into one batch.
package attachments

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ContentBlock mirrors the shape the backend agent SDK expects for
// multimodal input: either an image block (base64 data), a document block
// (base64 data + a title, used for PDFs), or a text block (plain string,
// used both for the user's message text and for decoded text documents).
type ContentBlock struct {
	Type      string // "image", "document", "text"
	MediaType string // MIME type, set for image/document
	Data      string // base64 payload, set for image/document
	Title     string // set for document
	Text      string // set for text
}

// Attachment is one processed attachment ready to become a content block.
type Attachment struct {
	Filename  string
	Size      int64
	MediaType string
	Block     ContentBlock
}

// Query bundles the user's free text with zero or more processed
// attachments, matching claude-coder's Query.to_content_blocks ordering:
// text first, then each attachment.
type Query struct {
	Text        string
	Attachments []Attachment
}

// ToContentBlocks projects a Query into the backend content-block list.
func (q Query) ToContentBlocks() []ContentBlock {
	blocks := make([]ContentBlock, 0, len(q.Attachments)+1)
	if q.Text != "" {
		blocks = append(blocks, ContentBlock{Type: "text", Text: q.Text})
	}
	for _, a := range q.Attachments {
		blocks = append(blocks, a.Block)
	}
	return blocks
}

// UnsupportedAttachmentError is returned when a document can't be resolved
// to any supported content-block shape.
type UnsupportedAttachmentError struct {
	Filename string
	MIMEType string
}

func (e *UnsupportedAttachmentError) Error() string {
	ext := fileExtension(e.Filename)
	return fmt.Sprintf("Can't process .%s files. Try sending as PDF or pasting the content as text.", ext)
}

// imageSignature is one magic-byte prefix used to sniff image formats
// regardless of the MIME type Telegram reports.
type imageSignature struct {
	mediaType string
	prefix    []byte
}

var imageSignatures = []imageSignature{
	{"image/png", []byte("\x89PNG\r\n\x1a\n")},
	{"image/jpeg", []byte("\xff\xd8\xff")},
	{"image/gif", []byte("GIF87a")},
	{"image/gif", []byte("GIF89a")},
	{"image/webp", []byte("RIFF")}, // followed by "....WEBP"; prefix check below refines it
}

// DetectImageMediaType sniffs data's magic bytes and returns the image MIME
// type, or "" if data doesn't look like a known image format.
func DetectImageMediaType(data []byte) string {
	for _, sig := range imageSignatures {
		if !bytes.HasPrefix(data, sig.prefix) {
			continue
		}
		if sig.mediaType == "image/webp" {
			if len(data) < 12 || !bytes.Equal(data[8:12], []byte("WEBP")) {
				continue
			}
		}
		return sig.mediaType
	}
	return ""
}

// textExtensions are file extensions treated as plain text even when the
// reported MIME type is generic (e.g. application/octet-stream).
var textExtensions = map[string]bool{
	"py": true, "js": true, "ts": true, "jsx": true, "tsx": true, "java": true,
	"cpp": true, "c": true, "h": true, "hpp": true, "cs": true, "go": true,
	"rs": true, "rb": true, "php": true, "swift": true, "kt": true, "scala": true,
	"r": true, "jl": true, "lua": true, "pl": true, "sh": true, "bash": true,
	"zsh": true, "fish": true, "ps1": true, "bat": true, "cmd": true, "md": true,
	"txt": true, "rst": true, "adoc": true, "json": true, "yml": true, "yaml": true,
	"toml": true, "xml": true, "ini": true, "cfg": true, "conf": true, "env": true,
	"html": true, "css": true, "scss": true, "sass": true, "less": true, "vue": true,
	"svelte": true, "csv": true, "tsv": true, "log": true, "sql": true,
	"dockerfile": true, "makefile": true, "cmake": true, "lock": true,
	"gitignore": true, "gitattributes": true, "editorconfig": true,
}

func fileExtension(filename string) string {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 || idx == len(filename)-1 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}

// ProcessPhoto builds an image content block from downloaded photo bytes,
// defaulting to image/jpeg (Telegram's own photo encoding) when the magic
// bytes don't match a known signature.
func ProcessPhoto(data []byte) Attachment {
	mediaType := DetectImageMediaType(data)
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	ext := strings.TrimPrefix(mediaType, "image/")
	filename := "photo." + ext
	return Attachment{
		Filename:  filename,
		Size:      int64(len(data)),
		MediaType: mediaType,
		Block: ContentBlock{
			Type:      "image",
			MediaType: mediaType,
			Data:      base64.StdEncoding.EncodeToString(data),
		},
	}
}

// ProcessDocument resolves data (with reported filename/mimeType from
// Telegram) into a content block, following the strict five-step order
// from claude-coder's attachments.py:_process_document — magic-byte image
// detection first, then the stated MIME type, then PDF, then text, then a
// last-resort UTF-8 decode attempt, erroring only if nothing matches.
func ProcessDocument(filename, mimeType string, data []byte) (Attachment, error) {
	// Step 1: magic bytes say image, regardless of the stated MIME type.
	if mt := DetectImageMediaType(data); mt != "" {
		return Attachment{
			Filename: filename, Size: int64(len(data)), MediaType: mt,
			Block: ContentBlock{Type: "image", MediaType: mt, Data: base64.StdEncoding.EncodeToString(data)},
		}, nil
	}

	// Step 2: the stated MIME type says image.
	if strings.HasPrefix(mimeType, "image/") {
		return Attachment{
			Filename: filename, Size: int64(len(data)), MediaType: mimeType,
			Block: ContentBlock{Type: "image", MediaType: mimeType, Data: base64.StdEncoding.EncodeToString(data)},
		}, nil
	}

	// Step 3: PDF, by MIME type or magic bytes.
	if mimeType == "application/pdf" || bytes.HasPrefix(data, []byte("%PDF-")) {
		return Attachment{
			Filename: filename, Size: int64(len(data)), MediaType: "application/pdf",
			Block: ContentBlock{
				Type: "document", MediaType: "application/pdf",
				Data: base64.StdEncoding.EncodeToString(data), Title: filename,
			},
		}, nil
	}

	// Step 4: text, by MIME type or known extension.
	ext := fileExtension(filename)
	if strings.HasPrefix(mimeType, "text/") || mimeType == "application/json" || textExtensions[ext] {
		if utf8.Valid(data) {
			return Attachment{
				Filename: filename, Size: int64(len(data)), MediaType: "text/plain",
				Block: ContentBlock{Type: "text", Text: string(data)},
			}, nil
		}
	}

	// Step 5: last-resort UTF-8 decode attempt.
	if utf8.Valid(data) {
		return Attachment{
			Filename: filename, Size: int64(len(data)), MediaType: "text/plain",
			Block: ContentBlock{Type: "text", Text: string(data)},
		}, nil
	}

	return Attachment{}, &UnsupportedAttachmentError{Filename: filename, MIMEType: mimeType}
}

package attachments

import (
	"testing"
	"time"
)

func TestDetectImageMediaType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", []byte("\x89PNG\r\n\x1a\nrest"), "image/png"},
		{"jpeg", []byte("\xff\xd8\xffrest"), "image/jpeg"},
		{"gif87a", []byte("GIF87arest"), "image/gif"},
		{"gif89a", []byte("GIF89arest"), "image/gif"},
		{"webp", append([]byte("RIFF1234WEBPrest")), "image/webp"},
		{"riff but not webp", []byte("RIFF1234AVI rest"), ""},
		{"plain text", []byte("hello world"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectImageMediaType(tt.data); got != tt.want {
				t.Errorf("DetectImageMediaType(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestProcessDocument_MagicBytesOverrideMIME(t *testing.T) {
	data := []byte("\x89PNG\r\n\x1a\nrest")
	a, err := ProcessDocument("file.txt", "text/plain", data)
	if err != nil {
		t.Fatal(err)
	}
	if a.Block.Type != "image" || a.Block.MediaType != "image/png" {
		t.Fatalf("expected magic bytes to win, got %+v", a.Block)
	}
}

func TestProcessDocument_PDFByMagicBytes(t *testing.T) {
	data := []byte("%PDF-1.4 rest of file")
	a, err := ProcessDocument("file.bin", "application/octet-stream", data)
	if err != nil {
		t.Fatal(err)
	}
	if a.Block.Type != "document" || a.Block.MediaType != "application/pdf" || a.Block.Title != "file.bin" {
		t.Fatalf("unexpected block: %+v", a.Block)
	}
}

func TestProcessDocument_TextByExtension(t *testing.T) {
	a, err := ProcessDocument("main.go", "application/octet-stream", []byte("package main"))
	if err != nil {
		t.Fatal(err)
	}
	if a.Block.Type != "text" || a.Block.Text != "package main" {
		t.Fatalf("unexpected block: %+v", a.Block)
	}
}

func TestProcessDocument_LastResortUTF8(t *testing.T) {
	a, err := ProcessDocument("notes.xyz", "application/octet-stream", []byte("plain utf8 text"))
	if err != nil {
		t.Fatal(err)
	}
	if a.Block.Type != "text" {
		t.Fatalf("unexpected block: %+v", a.Block)
	}
}

func TestProcessDocument_UnsupportedBinary(t *testing.T) {
	data := []byte{0xff, 0xfe, 0x00, 0x01, 0x02, 0xc3, 0x28}
	_, err := ProcessDocument("data.bin", "application/octet-stream", data)
	if err == nil {
		t.Fatal("expected UnsupportedAttachmentError")
	}
	if _, ok := err.(*UnsupportedAttachmentError); !ok {
		t.Fatalf("wrong error type: %T", err)
	}
}

func TestQuery_ToContentBlocks_TextFirst(t *testing.T) {
	q := Query{
		Text: "caption",
		Attachments: []Attachment{
			{Block: ContentBlock{Type: "image", MediaType: "image/png", Data: "abc"}},
		},
	}
	blocks := q.ToContentBlocks()
	if len(blocks) != 2 || blocks[0].Type != "text" || blocks[1].Type != "image" {
		t.Fatalf("unexpected blocks: %+v", blocks)
	}
}

func TestMediaGroupCollector_SingleUpdateReadyImmediately(t *testing.T) {
	c := NewMediaGroupCollector(50 * time.Millisecond)
	batch := c.Add(Update{Payload: "solo"})
	if len(batch) != 1 {
		t.Fatalf("expected immediate single-item batch, got %+v", batch)
	}
}

func TestMediaGroupCollector_AlbumCoalescesAfterTimeout(t *testing.T) {
	c := NewMediaGroupCollector(30 * time.Millisecond)
	if batch := c.Add(Update{MediaGroupID: "g1", Payload: "one"}); batch != nil {
		t.Fatalf("expected nil for buffered album item, got %+v", batch)
	}
	if batch := c.Add(Update{MediaGroupID: "g1", Payload: "two"}); batch != nil {
		t.Fatalf("expected nil for buffered album item, got %+v", batch)
	}

	if _, ok := c.PopReady("g1"); ok {
		t.Fatal("expected not ready before timeout")
	}

	time.Sleep(80 * time.Millisecond)

	batch, ok := c.PopReady("g1")
	if !ok {
		t.Fatal("expected batch ready after timeout")
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 buffered items, got %d", len(batch))
	}

	if _, ok := c.PopReady("g1"); ok {
		t.Fatal("expected PopReady to clear the batch")
	}
}

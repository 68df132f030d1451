package archive

import (
	"encoding/binary"
	"testing"
)

func TestSniffRAR4Magic(t *testing.T) {
	head := append([]byte{0x52, 0x61, 0x72, 0x21, 0x1a, 0x07, 0x00}, make([]byte, 64)...)
	f := Sniff(head)
	if f.Format != FormatRAR4 {
		t.Errorf("expected FormatRAR4, got %v", f.Format)
	}
}

func TestSniffRAR5Magic(t *testing.T) {
	head := append([]byte{0x52, 0x61, 0x72, 0x21, 0x1a, 0x07, 0x01, 0x00}, make([]byte, 64)...)
	f := Sniff(head)
	if f.Format != FormatRAR5 {
		t.Errorf("expected FormatRAR5, got %v", f.Format)
	}
}

func Test7zMagic(t *testing.T) {
	head := append([]byte{0x37, 0x7a, 0xbc, 0xaf, 0x27, 0x1c}, make([]byte, 32)...)
	f := Sniff(head)
	if f.Format != Format7z {
		t.Errorf("expected Format7z, got %v", f.Format)
	}
	if !f.Compressed {
		t.Error("expected 7z to always be marked Compressed")
	}
}

func TestSniffNoneOnUnrecognizedHeader(t *testing.T) {
	head := []byte("not an archive header at all")
	f := Sniff(head)
	if f.Format != FormatNone {
		t.Errorf("expected FormatNone, got %v", f.Format)
	}
}

func TestSniffEmptyBuffer(t *testing.T) {
	f := Sniff(nil)
	if f.Format != FormatNone {
		t.Errorf("expected FormatNone for empty input, got %v", f.Format)
	}
}

// rar4FileHeaderBlock builds one RAR4 file-header block (HEAD_TYPE 0x74)
// with the given HEAD_FLAGS, method byte, and file name.
func rar4FileHeaderBlock(flags uint16, method byte, name string) []byte {
	headSize := uint16(rar4FileHeaderFixed + len(name))
	b := make([]byte, headSize)
	b[2] = rar4FileHeaderType
	binary.LittleEndian.PutUint16(b[3:5], flags)
	binary.LittleEndian.PutUint16(b[5:7], headSize)
	b[rar4MethodOff] = method
	binary.LittleEndian.PutUint16(b[rar4NameSizeOff:rar4NameSizeOff+2], uint16(len(name)))
	copy(b[rar4FileHeaderFixed:], name)
	return b
}

func TestSniffRAR4StoredWithVideoEntry(t *testing.T) {
	head := append(append([]byte{}, rar4Magic...), rar4FileHeaderBlock(0, rar4MethodStore, "movie.mkv")...)
	f := Sniff(head)
	if !f.Stored || f.Compressed || f.Nested {
		t.Fatalf("got %+v, want Stored only", f)
	}
}

func TestSniffRAR4NestedArchiveEntryOnly(t *testing.T) {
	head := append(append([]byte{}, rar4Magic...), rar4FileHeaderBlock(0, rar4MethodStore, "movie.r00")...)
	f := Sniff(head)
	if !f.Nested || f.Stored {
		t.Fatalf("got %+v, want Nested only", f)
	}
}

func TestSniffRAR4CompressedMethod(t *testing.T) {
	head := append(append([]byte{}, rar4Magic...), rar4FileHeaderBlock(0, 0x33, "movie.mkv")...)
	f := Sniff(head)
	if !f.Compressed || f.Stored {
		t.Fatalf("got %+v, want Compressed only", f)
	}
}

func TestSniffRAR4EncryptedFlag(t *testing.T) {
	head := append(append([]byte{}, rar4Magic...), rar4FileHeaderBlock(rar4FileHeaderCrypt, rar4MethodStore, "movie.mkv")...)
	f := Sniff(head)
	if !f.Encrypted {
		t.Fatalf("got %+v, want Encrypted", f)
	}
}

func TestSniffRAR4SolidFlag(t *testing.T) {
	head := append(append([]byte{}, rar4Magic...), rar4FileHeaderBlock(rar4FileHeaderSolid, rar4MethodStore, "movie.mkv")...)
	f := Sniff(head)
	if !f.Solid {
		t.Fatalf("got %+v, want Solid", f)
	}
}

// rar5FileHeaderBlock builds one RAR5 block of type 2 (file header) with a
// store-method CompressionInfo and the given file name. All vints used here
// fit in a single byte.
func rar5FileHeaderBlock(name string) []byte {
	body := []byte{
		rar5FileHeaderType, // HeaderType
		0,                  // HeaderFlags
		0,                  // FileFlags
		0,                  // UnpackedSize
		0,                  // Attributes
		0,                  // CompressionInfo (method 0 == store, solid bit clear)
		0,                  // HostOS
		byte(len(name)),    // NameLength
	}
	body = append(body, []byte(name)...)

	block := make([]byte, 4) // CRC32, unparsed
	block = append(block, byte(len(body)))
	block = append(block, body...)
	return block
}

func TestSniffRAR5FileHeaderAloneIsNotNested(t *testing.T) {
	head := append(append([]byte{}, rar5Magic...), rar5FileHeaderBlock("movie.mkv")...)
	f := Sniff(head)
	if f.Nested {
		t.Fatalf("got %+v, a plain file-header block must not set Nested", f)
	}
	if !f.Stored {
		t.Fatalf("got %+v, want Stored for a store-method video entry", f)
	}
}

func TestSniffRAR5NestedArchiveEntryOnly(t *testing.T) {
	head := append(append([]byte{}, rar5Magic...), rar5FileHeaderBlock("movie.part01.rar")...)
	f := Sniff(head)
	if !f.Nested {
		t.Fatalf("got %+v, want Nested for an archive-only entry", f)
	}
}

func TestHasNestedArchiveSignatureDetectsArchiveNamesWithoutVideo(t *testing.T) {
	head := []byte("movie.r00 movie.r01 movie.r02")
	if !HasNestedArchiveSignature(head) {
		t.Fatal("expected nested archive signature to be detected")
	}
}

func TestHasNestedArchiveSignatureIgnoredWhenVideoPresent(t *testing.T) {
	head := []byte("movie.r00 movie.mkv")
	if HasNestedArchiveSignature(head) {
		t.Fatal("expected no nested archive signature when a video entry is also present")
	}
}

func TestHasNestedArchiveSignatureFalseWithoutArchiveTokens(t *testing.T) {
	head := []byte("movie.mkv sample.nfo")
	if HasNestedArchiveSignature(head) {
		t.Fatal("expected no nested archive signature without archive-shaped tokens")
	}
}

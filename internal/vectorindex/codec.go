package vectorindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/xxxsen/scribe/internal/model"
)

// Index file layout, little endian:
//
//	magic "SCIX" | version u16 | dimension u32 | count u32
//	per chunk: id str | source str | hasPage u8 | page i32 | offset u32 | text str | dimension x f32
//
// str is a u32 byte length followed by the bytes.
var indexMagic = [4]byte{'S', 'C', 'I', 'X'}

const (
	indexVersion  uint16 = 1
	maxStringSize        = 16 << 20
)

// Encode writes idx in the index file format.
func Encode(w io.Writer, idx *Index) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(indexMagic[:]); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	header := []interface{}{indexVersion, uint32(idx.Dimension()), uint32(idx.Len())}
	for _, v := range header {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	buf := make([]byte, idx.Dimension()*4)
	for _, c := range idx.Chunks() {
		if err := writeString(bw, c.ID); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if err := writeString(bw, c.Source); err != nil {
			return fmt.Errorf("write source: %w", err)
		}
		var hasPage uint8
		var page int32
		if c.Page != nil {
			hasPage = 1
			page = int32(*c.Page)
		}
		if err := binary.Write(bw, binary.LittleEndian, hasPage); err != nil {
			return fmt.Errorf("write page flag: %w", err)
		}
		if err := binary.Write(bw, binary.LittleEndian, page); err != nil {
			return fmt.Errorf("write page: %w", err)
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(c.Offset)); err != nil {
			return fmt.Errorf("write offset: %w", err)
		}
		if err := writeString(bw, c.Text); err != nil {
			return fmt.Errorf("write text: %w", err)
		}
		for i, f := range c.Vector {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
		}
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return bw.Flush()
}

// Decode reads an index written by Encode.
func Decode(r io.Reader) (*Index, error) {
	br := bufio.NewReader(r)
	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != indexMagic {
		return nil, fmt.Errorf("not an index file")
	}
	var version uint16
	var dim, n uint32
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version != indexVersion {
		return nil, fmt.Errorf("unsupported index version %d", version)
	}
	if err := binary.Read(br, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read dimension: %w", err)
	}
	if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	idx := New(int(dim))
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		var c model.Chunk
		var err error
		if c.ID, err = readString(br); err != nil {
			return nil, fmt.Errorf("read id: %w", err)
		}
		if c.Source, err = readString(br); err != nil {
			return nil, fmt.Errorf("read source: %w", err)
		}
		var hasPage uint8
		var page int32
		var offset uint32
		if err := binary.Read(br, binary.LittleEndian, &hasPage); err != nil {
			return nil, fmt.Errorf("read page flag: %w", err)
		}
		if err := binary.Read(br, binary.LittleEndian, &page); err != nil {
			return nil, fmt.Errorf("read page: %w", err)
		}
		if hasPage != 0 {
			c.Page = model.IntPtr(int(page))
		}
		if err := binary.Read(br, binary.LittleEndian, &offset); err != nil {
			return nil, fmt.Errorf("read offset: %w", err)
		}
		c.Offset = int(offset)
		if c.Text, err = readString(br); err != nil {
			return nil, fmt.Errorf("read text: %w", err)
		}
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("read vector: %w", err)
		}
		c.Vector = make([]float32, dim)
		for j := range c.Vector {
			c.Vector[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4:]))
		}
		if err := idx.Add(c); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func writeString(w io.Writer, s string) error {
	if len(s) > maxStringSize {
		return fmt.Errorf("string of %d bytes exceeds limit", len(s))
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > maxStringSize {
		return "", fmt.Errorf("string of %d bytes exceeds limit", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

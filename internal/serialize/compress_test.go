package serialize

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	c, err := NewCompressor()
	if err != nil {
		t.Fatalf("NewCompressor failed: %v", err)
	}
	defer c.Close()

	d, err := NewDecompressor()
	if err != nil {
		t.Fatalf("NewDecompressor failed: %v", err)
	}
	defer d.Close()

	data := []byte(strings.Repeat(`{"columnId":"gender","operator":"EQ","searchTerms":["male"]}`, 50))

	compressed, err := c.Compress(data)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if len(compressed) >= len(data) {
		t.Errorf("expected compressed size < %d, got %d", len(data), len(compressed))
	}
	if !IsCompressed(compressed) {
		t.Error("expected ZStandard frame header")
	}

	out, err := d.Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("expected round trip to preserve data")
	}
}

func TestCompressEmpty(t *testing.T) {
	c, err := NewCompressor()
	if err != nil {
		t.Fatalf("NewCompressor failed: %v", err)
	}
	defer c.Close()

	out, err := c.Compress(nil)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected empty output, got %d bytes", len(out))
	}
}

func TestIsCompressedPlain(t *testing.T) {
	if IsCompressed([]byte(`{"filters":[]}`)) {
		t.Error("expected plain JSON not to be detected as compressed")
	}
	if IsCompressed(nil) {
		t.Error("expected nil not to be detected as compressed")
	}
}

func TestDecompressInvalid(t *testing.T) {
	d, err := NewDecompressor()
	if err != nil {
		t.Fatalf("NewDecompressor failed: %v", err)
	}
	defer d.Close()

	if _, err := d.Decompress([]byte{0x28, 0xB5, 0x2F, 0xFD, 0x00}); err == nil {
		t.Error("expected error for truncated frame")
	}
}

func TestCompressConcurrent(t *testing.T) {
	c, err := NewCompressor()
	if err != nil {
		t.Fatalf("NewCompressor failed: %v", err)
	}
	defer c.Close()

	d, err := NewDecompressor()
	if err != nil {
		t.Fatalf("NewDecompressor failed: %v", err)
	}
	defer d.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			data := []byte(strings.Repeat("page", n+1))
			compressed, err := c.Compress(data)
			if err != nil {
				errs <- err
				return
			}
			out, err := d.Decompress(compressed)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(out, data) {
				errs <- fmt.Errorf("round trip %d: data mismatch", n)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent round trip failed: %v", err)
	}
}

func TestDecompressRejectsOversizedState(t *testing.T) {
	c, err := NewCompressor()
	if err != nil {
		t.Fatalf("NewCompressor failed: %v", err)
	}
	defer c.Close()

	d, err := NewDecompressor()
	if err != nil {
		t.Fatalf("NewDecompressor failed: %v", err)
	}
	defer d.Close()

	compressed, err := c.Compress(make([]byte, MaxDecodedSize+1))
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if _, err := d.Decompress(compressed); err == nil {
		t.Error("expected error for state larger than MaxDecodedSize")
	}
}

package memfd

import (
	"bytes"
	"io"
	"testing"
)

func TestDupToMemfd(t *testing.T) {
	content := []byte("sealed content")
	f, err := DupToMemfd("test", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("DupToMemfd: %v", err)
	}
	defer f.Close()

	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("content = %q, want %q", got, content)
	}

	// 密封后不可写
	if _, err := f.Write([]byte("x")); err == nil {
		t.Error("write to sealed memfd should fail")
	}
}

package chunker

import (
	"fmt"
	"reflect"
	"testing"
)

func fileList(n int) []string {
	files := make([]string, 0, n)
	for i := 0; i < n; i++ {
		files = append(files, fmt.Sprintf("/src/com/example/File%03d.java", i))
	}
	return files
}

func TestSplit(t *testing.T) {
	chunks, err := Split(fileList(123), 50)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3", len(chunks))
	}

	wantSizes := []int{50, 50, 23}
	for i, chunk := range chunks {
		if chunk.FileCount != wantSizes[i] {
			t.Errorf("chunk %d FileCount = %d, want %d", i, chunk.FileCount, wantSizes[i])
		}
		if len(chunk.Files) != wantSizes[i] {
			t.Errorf("chunk %d len(Files) = %d, want %d", i, len(chunk.Files), wantSizes[i])
		}
		wantID := fmt.Sprintf("chunk-%d", i+1)
		if chunk.ID != wantID {
			t.Errorf("chunk %d ID = %s, want %s", i, chunk.ID, wantID)
		}
		if chunk.Index != i+1 {
			t.Errorf("chunk %d Index = %d, want %d", i, chunk.Index, i+1)
		}
	}
}

func TestSplit_PreservesOrder(t *testing.T) {
	files := fileList(7)
	chunks, err := Split(files, 3)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	var flat []string
	for _, c := range chunks {
		flat = append(flat, c.Files...)
	}
	if !reflect.DeepEqual(flat, files) {
		t.Errorf("flattened chunks %v != input %v", flat, files)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	files := fileList(42)

	a, err := Split(files, 10)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	b, err := Split(files, 10)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	if !reflect.DeepEqual(a, b) {
		t.Error("two Split calls with identical inputs differ")
	}
}

func TestSplit_ZeroFiles(t *testing.T) {
	chunks, err := Split(nil, 50)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("len(chunks) = %d, want 0", len(chunks))
	}
}

func TestSplit_InvalidChunkSize(t *testing.T) {
	for _, size := range []int{0, -1, -50} {
		if _, err := Split(fileList(3), size); err == nil {
			t.Errorf("Split with chunk size %d should fail", size)
		}
	}
}

func TestSplit_DoesNotAliasInput(t *testing.T) {
	files := fileList(4)
	chunks, err := Split(files, 2)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	files[0] = "mutated"
	if chunks[0].Files[0] == "mutated" {
		t.Error("chunk files should not alias the input slice")
	}
}

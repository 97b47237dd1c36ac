package transcription

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/adimov-eth/transcribe/internal/types"
)

// fakeProbe returns a fixed duration
type fakeProbe struct {
	duration float64
	err      error
}

func (f *fakeProbe) Duration(path string) (float64, error) {
	return f.duration, f.err
}

// touchRunner simulates ffmpeg by creating the output file. The
// output path is the second-to-last argument (before "-y").
type touchRunner struct {
	failAfter int // fail the call once this many chunks exist (0 = never)
	calls     int
}

func (r *touchRunner) Run(name string, args ...string) (string, string, error) {
	r.calls++
	if r.failAfter > 0 && r.calls > r.failAfter {
		return "", "ffmpeg error", errors.New("exit status 1")
	}
	outPath := args[len(args)-2]
	if err := os.WriteFile(outPath, []byte("chunk"), 0644); err != nil {
		return "", "", err
	}
	return "", "", nil
}

func testAudioFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "episode.mp3")
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSplitSegmentMath(t *testing.T) {
	// 48-minute source with a 20-minute window: 3 segments of
	// 20, 20, and 8 minutes
	path := testAudioFile(t)
	ck := &Chunker{
		chunkDuration: 1200,
		probe:         &fakeProbe{duration: 2880},
		runner:        &touchRunner{},
	}

	chunks, err := ck.Split(path, "")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3", len(chunks))
	}

	wantStarts := []float64{0, 1200, 2400}
	wantDurations := []float64{1200, 1200, 480}
	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Errorf("chunk %d index = %d", i, chunk.Index)
		}
		if chunk.StartTime != wantStarts[i] {
			t.Errorf("chunk %d start = %v, want %v", i, chunk.StartTime, wantStarts[i])
		}
		if chunk.Duration != wantDurations[i] {
			t.Errorf("chunk %d duration = %v, want %v", i, chunk.Duration, wantDurations[i])
		}
		if filepath.Ext(chunk.Path) != ".mp3" {
			t.Errorf("chunk %d did not preserve extension: %s", i, chunk.Path)
		}
		if _, err := os.Stat(chunk.Path); err != nil {
			t.Errorf("chunk %d file missing: %v", i, err)
		}
	}

	wantDir := filepath.Join(filepath.Dir(path), "episode_chunks")
	if filepath.Dir(chunks[0].Path) != wantDir {
		t.Errorf("chunk dir = %s, want %s", filepath.Dir(chunks[0].Path), wantDir)
	}
}

func TestSplitExactMultiple(t *testing.T) {
	path := testAudioFile(t)
	ck := &Chunker{
		chunkDuration: 600,
		probe:         &fakeProbe{duration: 1800},
		runner:        &touchRunner{},
	}

	chunks, err := ck.Split(path, "")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3", len(chunks))
	}
	if last := chunks[2]; last.Duration != 600 {
		t.Errorf("last duration = %v, want 600", last.Duration)
	}
}

func TestSplitFailureReturnsPartialChunks(t *testing.T) {
	path := testAudioFile(t)
	ck := &Chunker{
		chunkDuration: 600,
		probe:         &fakeProbe{duration: 1800},
		runner:        &touchRunner{failAfter: 2},
	}

	chunks, err := ck.Split(path, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if code := types.ErrorCode(err); code != types.CodeChunk {
		t.Errorf("error code = %q, want %q", code, types.CodeChunk)
	}
	// The chunks created before the failure come back so the caller
	// can clean them up
	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2", len(chunks))
	}
	for _, chunk := range chunks {
		if _, err := os.Stat(chunk.Path); err != nil {
			t.Errorf("partial chunk missing: %v", err)
		}
	}
}

func TestSplitProbeFailure(t *testing.T) {
	ck := &Chunker{
		chunkDuration: 600,
		probe:         &fakeProbe{err: types.NewError(types.CodeDuration, "boom")},
		runner:        &touchRunner{},
	}

	_, err := ck.Split(testAudioFile(t), "")
	if code := types.ErrorCode(err); code != types.CodeDuration {
		t.Fatalf("error code = %q, want %q", code, types.CodeDuration)
	}
}

func TestCleanupRemovesChunksAndDirectory(t *testing.T) {
	path := testAudioFile(t)
	ck := &Chunker{
		chunkDuration: 600,
		probe:         &fakeProbe{duration: 1800},
		runner:        &touchRunner{},
	}

	chunks, err := ck.Split(path, "")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	chunkDir := filepath.Dir(chunks[0].Path)

	ck.Cleanup(chunks)

	for _, chunk := range chunks {
		if _, err := os.Stat(chunk.Path); !os.IsNotExist(err) {
			t.Errorf("chunk still exists: %s", chunk.Path)
		}
	}
	if _, err := os.Stat(chunkDir); !os.IsNotExist(err) {
		t.Errorf("chunk directory still exists: %s", chunkDir)
	}
}

func TestCleanupToleratesMissingFiles(t *testing.T) {
	ck := NewChunker(600, &fakeProbe{duration: 1800})
	// Must not panic or error on files that are already gone
	ck.Cleanup([]ChunkInfo{{Path: filepath.Join(t.TempDir(), "gone", "chunk_0.mp3")}})
}

func TestFileSizeMB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mp3")
	if err := os.WriteFile(path, make([]byte, 2*1024*1024), 0644); err != nil {
		t.Fatal(err)
	}

	ck := NewChunker(600, &fakeProbe{})
	size, err := ck.FileSizeMB(path)
	if err != nil {
		t.Fatalf("FileSizeMB: %v", err)
	}
	if size != 2 {
		t.Errorf("size = %v, want 2", size)
	}
}

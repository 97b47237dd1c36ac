package transcription

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/adimov-eth/transcribe/internal/types"
)

// DefaultMaxFileSize is the direct-upload ceiling in bytes (25MB)
const DefaultMaxFileSize = 25 * 1024 * 1024

// DefaultLanguage is the recognition language hint used when none is set
const DefaultLanguage = "en"

// Recognizer converts one audio file into text
type Recognizer interface {
	Transcribe(audioPath, language string) (string, error)
	Model() string
}

// Splitter produces, measures and removes media segments
type Splitter interface {
	Split(path string, outputDir string) ([]ChunkInfo, error)
	Cleanup(chunks []ChunkInfo)
	FileSizeMB(path string) (float64, error)
}

// EngineConfig controls the chunk-vs-direct decision and metadata
type EngineConfig struct {
	MaxFileSize      int64
	SupportedFormats []string
	Language         string
}

// TranscribeOptions are per-call overrides applied to one source
type TranscribeOptions struct {
	Language string
}

// Engine drives the transcription of one audio source end to end,
// splitting oversized files into segments and reassembling the text
type Engine struct {
	recognizer Recognizer
	chunker    Splitter
	probe      durationProber
	config     EngineConfig
}

// NewEngine creates a transcription engine. The recognizer must be
// backed by a valid credential; a missing one is a CONFIG_ERROR.
func NewEngine(recognizer Recognizer, chunker Splitter, probe durationProber, config EngineConfig) *Engine {
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = DefaultMaxFileSize
	}
	if len(config.SupportedFormats) == 0 {
		config.SupportedFormats = DefaultSupportedFormats
	}
	if config.Language == "" {
		config.Language = DefaultLanguage
	}
	return &Engine{
		recognizer: recognizer,
		chunker:    chunker,
		probe:      probe,
		config:     config,
	}
}

// Transcribe processes one audio source and returns its transcript.
// Files above the size threshold are split into segments that are
// transcribed strictly in index order; any created segments are
// cleaned up exactly once on every exit path.
func (e *Engine) Transcribe(source types.AudioSource, opts TranscribeOptions) (result *types.TranscriptionResult, err error) {
	log.Printf("Processing: %s", source.Name)

	ext := strings.ToLower(filepath.Ext(source.Path))
	if !ValidateFormat(source.Path, e.config.SupportedFormats) {
		return nil, types.NewError(types.CodeFormat,
			fmt.Sprintf("unsupported format: %s, supported formats: %s",
				ext, strings.Join(e.config.SupportedFormats, ", ")))
	}

	if _, statErr := os.Stat(source.Path); statErr != nil {
		return nil, types.NewError(types.CodeFile, "file not found: "+source.Path)
	}

	language := opts.Language
	if language == "" {
		language = e.config.Language
	}

	sizeMB, err := e.chunker.FileSizeMB(source.Path)
	if err != nil {
		return nil, types.WrapError(types.CodeFile, err, "failed to stat file: %v", err)
	}
	log.Printf("File size: %.2f MB", sizeMB)

	var chunks []ChunkInfo
	defer func() {
		if len(chunks) > 0 {
			e.chunker.Cleanup(chunks)
		}
	}()

	var transcript string
	if int64(sizeMB*1024*1024) > e.config.MaxFileSize {
		// Large file, split and transcribe each segment in order
		chunks, err = e.chunker.Split(source.Path, "")
		if err != nil {
			return nil, err
		}

		transcripts := make([]string, 0, len(chunks))
		for i, chunk := range chunks {
			log.Printf("Transcribing chunk %d/%d...", i+1, len(chunks))
			chunkTranscript, err := e.recognizer.Transcribe(chunk.Path, language)
			if err != nil {
				return nil, err
			}
			transcripts = append(transcripts, chunkTranscript)
		}
		transcript = strings.Join(transcripts, "\n\n")
	} else {
		log.Println("Sending to recognition service...")
		transcript, err = e.recognizer.Transcribe(source.Path, language)
		if err != nil {
			return nil, err
		}
	}

	duration, err := e.probe.Duration(source.Path)
	if err != nil {
		return nil, err
	}

	return &types.TranscriptionResult{
		Text: transcript,
		Metadata: &types.Metadata{
			Duration: duration,
			Language: language,
			Model:    e.recognizer.Model(),
		},
	}, nil
}

// TranscribeToFile transcribes the source and writes the plain text
// to outputPath, or to a path derived from the source when empty
func (e *Engine) TranscribeToFile(source types.AudioSource, outputPath string, opts TranscribeOptions) (string, error) {
	result, err := e.Transcribe(source, opts)
	if err != nil {
		return "", err
	}

	if outputPath == "" {
		ext := filepath.Ext(source.Path)
		outputPath = strings.TrimSuffix(source.Path, ext) + "_transcript.txt"
	}

	if err := os.WriteFile(outputPath, []byte(result.Text), 0644); err != nil {
		return "", fmt.Errorf("failed to write transcript: %v", err)
	}

	log.Printf("Transcript saved to: %s", outputPath)
	return outputPath, nil
}

package semindex

import (
	"strings"

	"github.com/dshills/codequery/internal/codeindex"
	"github.com/dshills/codequery/internal/scan"
)

// Chunk is one embeddable unit of a file: a declaration with its body for
// source files, a paragraph for documentation.
type Chunk struct {
	File      string
	StartLine int // 1-based
	EndLine   int
	Name      string // declaration name, empty for paragraphs
	Text      string
}

// maxChunkLines bounds a single chunk so one huge function cannot blow the
// embedding request size
const maxChunkLines = 120

// chunkFile splits a file into embeddable units. Source files chunk by
// declaration, documentation by paragraph; anything else is skipped.
func chunkFile(path string, content []byte) []Chunk {
	if scan.IsBinaryContent(content) {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")

	switch scan.Classify(path) {
	case scan.ClassSource:
		return chunkDeclarations(path, content, lines)
	case scan.ClassDoc:
		return chunkParagraphs(path, lines)
	}
	return nil
}

func chunkDeclarations(path string, content []byte, lines []string) []Chunk {
	decls, err := codeindex.Extract(path, content)
	if err != nil || len(decls) == 0 {
		// Unparseable source still gets one whole-file chunk so it stays
		// findable.
		return wholeFileChunk(path, lines)
	}

	var chunks []Chunk
	for _, decl := range decls {
		if decl.Kind == codeindex.DeclImport {
			continue
		}
		start := decl.Line
		end := decl.EndLine
		if end < start {
			end = start
		}
		if end-start+1 > maxChunkLines {
			end = start + maxChunkLines - 1
		}
		if start < 1 || start > len(lines) {
			continue
		}
		if end > len(lines) {
			end = len(lines)
		}
		text := strings.Join(lines[start-1:end], "\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			File:      path,
			StartLine: start,
			EndLine:   end,
			Name:      decl.Name,
			Text:      text,
		})
	}
	if len(chunks) == 0 {
		return wholeFileChunk(path, lines)
	}
	return chunks
}

// chunkParagraphs splits documentation on blank lines
func chunkParagraphs(path string, lines []string) []Chunk {
	var chunks []Chunk
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		text := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, Chunk{
				File:      path,
				StartLine: start + 1,
				EndLine:   end,
				Text:      text,
			})
		}
		start = -1
	}
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
		}
	}
	flush(len(lines))
	return chunks
}

func wholeFileChunk(path string, lines []string) []Chunk {
	end := len(lines)
	if end > maxChunkLines {
		end = maxChunkLines
	}
	text := strings.Join(lines[:end], "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []Chunk{{File: path, StartLine: 1, EndLine: end, Text: text}}
}

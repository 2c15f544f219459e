package scan

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Language identifies a source language the structural parser understands
type Language string

const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangRuby       Language = "ruby"
	LangUnknown    Language = "unknown"
)

var extToLanguage = map[string]Language{
	".go":  LangGo,
	".py":  LangPython,
	".pyi": LangPython,
	".js":  LangJavaScript,
	".jsx": LangJavaScript,
	".mjs": LangJavaScript,
	".cjs": LangJavaScript,
	".ts":  LangTypeScript,
	".tsx": LangTypeScript,
	".rb":  LangRuby,
}

// DetectLanguage maps a path to a parseable language, or LangUnknown
func DetectLanguage(path string) Language {
	if lang, ok := extToLanguage[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return LangUnknown
}

// FileClass groups files by broad role for filtering
type FileClass string

const (
	ClassSource FileClass = "source"
	ClassDoc    FileClass = "doc"
	ClassConfig FileClass = "config"
	ClassOther  FileClass = "other"
)

var extToClass = map[string]FileClass{
	".go": ClassSource, ".py": ClassSource, ".pyi": ClassSource,
	".js": ClassSource, ".jsx": ClassSource, ".mjs": ClassSource, ".cjs": ClassSource,
	".ts": ClassSource, ".tsx": ClassSource,
	".rb": ClassSource, ".java": ClassSource, ".kt": ClassSource,
	".c": ClassSource, ".h": ClassSource, ".cpp": ClassSource, ".cc": ClassSource, ".hpp": ClassSource,
	".cs": ClassSource, ".rs": ClassSource, ".php": ClassSource, ".swift": ClassSource,
	".sh": ClassSource, ".bash": ClassSource, ".sql": ClassSource,

	".md": ClassDoc, ".mdx": ClassDoc, ".rst": ClassDoc, ".txt": ClassDoc, ".adoc": ClassDoc,

	".json": ClassConfig, ".yaml": ClassConfig, ".yml": ClassConfig,
	".toml": ClassConfig, ".ini": ClassConfig, ".cfg": ClassConfig,
	".env": ClassConfig, ".xml": ClassConfig,
}

// Classify maps a path to its file class by extension
func Classify(path string) FileClass {
	if class, ok := extToClass[strings.ToLower(filepath.Ext(path))]; ok {
		return class
	}
	return ClassOther
}

// binaryProbeSize is how much of a file's head IsBinaryContent inspects
const binaryProbeSize = 512

// IsBinaryContent reports whether data looks binary: a null byte or an
// invalid UTF-8 sequence in the leading chunk. Binary files are skipped by
// searches, not errored.
func IsBinaryContent(data []byte) bool {
	probe := data
	if len(probe) > binaryProbeSize {
		probe = probe[:binaryProbeSize]
	}
	for _, b := range probe {
		if b == 0 {
			return true
		}
	}
	// A probe that splits a multi-byte rune at the cut point is still
	// valid text; only reject when the invalid sequence is not at the end.
	if len(probe) == binaryProbeSize {
		for !utf8.Valid(probe) && len(probe) > binaryProbeSize-utf8.UTFMax {
			probe = probe[:len(probe)-1]
		}
	}
	return !utf8.Valid(probe)
}

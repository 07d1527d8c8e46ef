package handlers

import (
	"fmt"
	"html"
	"regexp"

	"codejudge/internal/language"
)

const (
	maxFiles     = 10
	maxStdinLen  = 10000
	maxCodeChars = 50000
)

var filenamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// Filename shapes that are never acceptable even when the charset matches.
var forbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.\.`),
	regexp.MustCompile(`^/`),
	regexp.MustCompile(`^~`),
	regexp.MustCompile(`\.pyc$`),
	regexp.MustCompile(`\.class$`),
	regexp.MustCompile(`\.exe$`),
	regexp.MustCompile(`\.dll$`),
	regexp.MustCompile(`\.so$`),
	regexp.MustCompile(`\.sh$`),
}

// validateSubmission checks the language and the file set against the
// service limits. maxFileSize and maxTotalSize come from configuration.
func validateSubmission(files map[string]string, lang string, maxFileSize, maxTotalSize int) error {
	if !language.IsSupported(lang) {
		return fmt.Errorf("unsupported language: %s", lang)
	}
	if len(files) == 0 {
		return fmt.Errorf("at least one file is required")
	}
	if len(files) > maxFiles {
		return fmt.Errorf("too many files: %d (max %d)", len(files), maxFiles)
	}

	total := 0
	for name, content := range files {
		if err := validateFilename(name); err != nil {
			return err
		}
		size := len(content)
		if size > maxFileSize {
			return fmt.Errorf("file %s exceeds size limit (%d > %d bytes)", name, size, maxFileSize)
		}
		total += size
	}
	if total > maxTotalSize {
		return fmt.Errorf("total file size exceeds limit (%d > %d bytes)", total, maxTotalSize)
	}
	return nil
}

func validateFilename(name string) error {
	if name == "" {
		return fmt.Errorf("empty filename")
	}
	if !filenamePattern.MatchString(name) {
		return fmt.Errorf("invalid filename: %s", name)
	}
	for _, p := range forbiddenPatterns {
		if p.MatchString(name) {
			return fmt.Errorf("forbidden filename: %s", name)
		}
	}
	return nil
}

// sanitizeStdin truncates and HTML-escapes user-supplied stdin.
func sanitizeStdin(stdin string) string {
	if len(stdin) > maxStdinLen {
		stdin = stdin[:maxStdinLen]
	}
	return html.EscapeString(stdin)
}

// truncateFiles caps each file's content at the per-file character limit.
func truncateFiles(files map[string]string) map[string]string {
	out := make(map[string]string, len(files))
	for name, content := range files {
		if len(content) > maxCodeChars {
			content = content[:maxCodeChars]
		}
		out[name] = content
	}
	return out
}

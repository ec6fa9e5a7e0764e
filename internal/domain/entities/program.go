package entities

import (
	"regexp"
	"strings"
	"time"
)

var inlineComment = regexp.MustCompile(`\([^)]*\)`)

// Program - загруженная G-code программа. После сохранения не изменяется:
// повторная загрузка под тем же именем создает новое значение.
type Program struct {
	Name       string    `json:"name"`
	Content    string    `json:"content"`
	Lines      []string  `json:"lines"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// NewProgram разбирает текст программы на строки, пригодные для отправки в контроллер.
func NewProgram(name, content string) *Program {
	return &Program{
		Name:       name,
		Content:    content,
		Lines:      SplitLines(content),
		UploadedAt: time.Now(),
	}
}

// SplitLines удаляет комментарии (";" до конца строки и "( ... )") и пустые строки.
func SplitLines(content string) []string {
	raw := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if idx := strings.IndexByte(line, ';'); idx >= 0 {
			line = line[:idx]
		}
		line = inlineComment.ReplaceAllString(line, " ")
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

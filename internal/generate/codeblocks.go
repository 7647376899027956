package generate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/DeafMist/docs-radar/backend/internal/models"
)

var fencePattern = regexp.MustCompile("```([\\w+#-]*)[^\\n]*\\n([\\s\\S]*?)```")

var extensions = map[string]string{
	"python":     ".py",
	"javascript": ".js",
	"typescript": ".ts",
	"java":       ".java",
	"ruby":       ".rb",
	"php":        ".php",
	"go":         ".go",
	"rust":       ".rs",
	"c":          ".c",
	"cpp":        ".cpp",
	"csharp":     ".cs",
	"swift":      ".swift",
	"kotlin":     ".kt",
	"scala":      ".scala",
	"r":          ".r",
	"julia":      ".jl",
	"shell":      ".sh",
	"sql":        ".sql",
	"html":       ".html",
	"css":        ".css",
	"json":       ".json",
	"yaml":       ".yaml",
	"xml":        ".xml",
	"markdown":   ".md",
	"text":       ".txt",
}

var aliases = map[string]string{
	"py":     "python",
	"js":     "javascript",
	"ts":     "typescript",
	"golang": "go",
	"rb":     "ruby",
	"c++":    "cpp",
	"cs":     "csharp",
	"c#":     "csharp",
	"sh":     "shell",
	"bash":   "shell",
	"zsh":    "shell",
	"yml":    "yaml",
	"md":     "markdown",
}

// FileExtension maps a fence language to a file extension, ".txt" when unknown.
func FileExtension(language string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if canonical, ok := aliases[lang]; ok {
		lang = canonical
	}
	if ext, ok := extensions[lang]; ok {
		return ext
	}
	return ".txt"
}

// ExtractCodeBlocks returns the fenced code blocks found in markdown text in
// order of appearance. The first block is named integration<ext>, later ones
// integration_<n><ext>.
func ExtractCodeBlocks(text string) []models.CodeBlock {
	matches := fencePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	blocks := make([]models.CodeBlock, 0, len(matches))
	for i, m := range matches {
		lang := strings.ToLower(m[1])
		if lang == "" {
			lang = "text"
		}
		name := "integration" + FileExtension(lang)
		if i > 0 {
			name = fmt.Sprintf("integration_%d%s", i, FileExtension(lang))
		}
		blocks = append(blocks, models.CodeBlock{
			Language: lang,
			Code:     strings.TrimSpace(m[2]),
			Filename: name,
		})
	}
	return blocks
}

package ingest

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/rallygraph/pkg/types"
)

// ParsedFile is a Markdown or plain-text source ready for extraction.
type ParsedFile struct {
	// RelativePath is the path relative to the ingest root.
	RelativePath string

	// Title comes from frontmatter "title", then the first H1, then the
	// file name.
	Title string

	// Content is the body with frontmatter removed and wiki links resolved
	// to their display text.
	Content string

	// Subject is the entity type declared by frontmatter "type", if any.
	// The document title then also names an entity of that type.
	Subject types.EntityType

	// Frontmatter holds the parsed YAML frontmatter.
	Frontmatter map[string]interface{}
}

// ParseFile parses a single source file. relativePath names the file for
// titles and error messages.
func ParseFile(content []byte, relativePath string) (*ParsedFile, error) {
	fm, body, err := splitFrontmatter(string(content))
	if err != nil {
		return nil, fmt.Errorf("ingest: frontmatter in %s: %w", relativePath, err)
	}

	title := extractString(fm, "title")
	if title == "" {
		title = extractH1(body)
	}
	if title == "" {
		title = titleFromPath(relativePath)
	}

	pf := &ParsedFile{
		RelativePath: relativePath,
		Title:        title,
		Content:      strings.TrimSpace(StripWikiLinks(body)),
		Frontmatter:  fm,
	}
	if t := types.EntityType(extractString(fm, "type")); t.IsValid() && t != types.EntityGeneric {
		pf.Subject = t
	}
	return pf, nil
}

// splitFrontmatter separates YAML frontmatter (between --- delimiters) from
// the body. Without frontmatter it returns an empty map and the full text.
func splitFrontmatter(text string) (map[string]interface{}, string, error) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, "", err
	}

	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return map[string]interface{}{}, text, nil
	}

	closeIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		return map[string]interface{}{}, text, nil
	}

	fm := make(map[string]interface{})
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:closeIdx], "\n")), &fm); err != nil {
		return nil, "", fmt.Errorf("invalid YAML: %w", err)
	}
	return fm, strings.Join(lines[closeIdx+1:], "\n"), nil
}

// titleFromPath derives a readable title from the file name.
func titleFromPath(rel string) string {
	base := filepath.Base(rel)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "_", " ")
	return strings.TrimSpace(name)
}

// extractH1 returns the text of the first ATX level-one heading.
func extractH1(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}

func extractString(fm map[string]interface{}, key string) string {
	if s, ok := fm[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

package extract

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"tabrag/internal/domain"
)

const maxLineSize = 4 * 1024 * 1024

// extractJSONL yields one document per non-blank line.
// Lines that are not valid JSON are skipped and counted.
func extractJSONL(file domain.SourceFile) (domain.Extraction, error) {
	f, err := os.Open(file.AbsPath)
	if err != nil {
		return domain.Extraction{}, err
	}
	defer f.Close()

	var ex domain.Extraction
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		line++

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			ex.Skipped++
			continue
		}

		title, text := recordFromJSON(value)
		if strings.TrimSpace(text) == "" {
			continue
		}
		ex.Documents = append(ex.Documents, domain.Document{
			SourcePath: file.Path,
			Index:      line,
			Title:      title,
			Text:       text,
		})
	}
	if err := scanner.Err(); err != nil {
		return domain.Extraction{}, err
	}
	return ex, nil
}

// recordFromJSON picks the text of a record: title+content, content alone,
// or every field as "key: value" in key order.
func recordFromJSON(value any) (title, text string) {
	obj, ok := value.(map[string]any)
	if !ok {
		return "", scalarText(value)
	}

	content := strings.TrimSpace(scalarText(obj["content"]))
	title = strings.TrimSpace(scalarText(obj["title"]))
	switch {
	case title != "" && content != "":
		return title, "Title: " + title + "\n" + content
	case content != "":
		return "", content
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v := scalarText(obj[k])
		if v == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
	}
	return title, b.String()
}

func scalarText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64, bool:
		return fmt.Sprint(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

package index

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/plugin-index/plugin-index/pkg/registry"
)

const (
	readmeTitle     = "# Binary Ninja Plugins\n\n"
	readmeHeader    = "| PluginName | Author | Last Updated | License | Type | Description |\n"
	readmeSeparator = "|------------|--------|--------------|---------|----------|-------------|\n"
)

var cellReplacer = strings.NewReplacer(
	"|", `\|`,
	"\r\n", "<br>",
	"\n", "<br>",
	"\r", "<br>",
)

func cell(s string) string {
	return cellReplacer.Replace(s)
}

func sortedTypes(r *registry.Record) string {
	types := append([]string(nil), r.Type...)
	sort.Strings(types)
	return strings.Join(types, ", ")
}

// RenderReadme renders the Markdown listing, one row per record in index order.
func RenderReadme(idx registry.Index) []byte {
	var buf bytes.Buffer
	buf.WriteString(readmeTitle)
	buf.WriteString(readmeHeader)
	buf.WriteString(readmeSeparator)
	for _, r := range idx {
		fmt.Fprintf(&buf, "|[%s](%s)|[%s](%s)|%d|[%s](%s/LICENSE)|%s|%s|\n",
			cell(r.Name), r.ProjectURL,
			cell(r.Author), r.AuthorURL,
			r.LastUpdated,
			cell(r.LicenseName()), r.Path,
			cell(sortedTypes(r)),
			cell(r.Description),
		)
	}
	buf.WriteString("\n\n")
	return buf.Bytes()
}

func WriteReadme(path string, idx registry.Index) ([]byte, error) {
	data := RenderReadme(idx)
	if err := writeFileAtomic(path, data); err != nil {
		return nil, fmt.Errorf("could not write readme: %w", err)
	}
	return data, nil
}

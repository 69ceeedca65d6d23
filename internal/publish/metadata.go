package publish

import (
	"encoding/json"
	"sort"
	"strings"

	"boshdata/internal/zenodo"
)

const (
	defaultAuthor   = "Anonymous"
	bulkTitle       = "Boutiques execution data-set"
	recordTitle     = "Boutiques execution record"
	dataDescription = "Boutiques execution records"
)

// buildMetadata describes one deposition. Records whose summary names a tool add a
// "tool: <name>" keyword; records that do not parse add nothing.
func buildMetadata(author string, names []string, contents map[string][]byte) zenodo.Metadata {
	author = strings.TrimSpace(author)
	if author == "" {
		author = defaultAuthor
	}

	title := bulkTitle
	if len(names) == 1 {
		title = recordTitle + " " + names[0]
	}

	keywords := []string{"Boutiques", "execution-record"}
	tools := map[string]struct{}{}
	for _, n := range names {
		if t := toolName(contents[n]); t != "" {
			tools[t] = struct{}{}
		}
	}
	toolKeywords := make([]string, 0, len(tools))
	for t := range tools {
		toolKeywords = append(toolKeywords, "tool: "+t)
	}
	sort.Strings(toolKeywords)

	return zenodo.Metadata{
		UploadType:  "dataset",
		Title:       title,
		Description: dataDescription,
		Creators:    []zenodo.Creator{{Name: author}},
		Keywords:    append(keywords, toolKeywords...),
	}
}

func toolName(record []byte) string {
	var r struct {
		Summary struct {
			Name string `json:"name"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(record, &r); err != nil {
		return ""
	}
	return strings.TrimSpace(r.Summary.Name)
}

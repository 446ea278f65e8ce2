package pipeline

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// tableRefRe matches schema-qualified table references after FROM or JOIN.
var tableRefRe = regexp.MustCompile(`(?i)(?:FROM|JOIN)\s+([a-zA-Z_][a-zA-Z0-9_]*\.[a-zA-Z_][a-zA-Z0-9_]*)`)

// friendlyTableNames maps physical tables to the labels shown to users.
var friendlyTableNames = map[string]string{
	"public.companies":                    "Companies Master Data",
	"public.documents_01_14":              "Company Documents",
	"public.companies_documents_join":     "Company Documents",
	"communications.emails_silver":        "Email Communications",
	"communications.phone_call_silver":    "Phone Calls",
	"communications.phone_message_silver": "SMS Messages",
}

// extractDataSources lists the user-facing names of tables referenced by
// the query, deduplicated and sorted.
func extractDataSources(sql string) []string {
	seen := make(map[string]bool)
	for _, match := range tableRefRe.FindAllStringSubmatch(sql, -1) {
		table := strings.ToLower(match[1])
		name, ok := friendlyTableNames[table]
		if !ok {
			name = table
		}
		seen[name] = true
	}

	if len(seen) == 0 {
		return nil
	}

	sources := make([]string, 0, len(seen))
	for name := range seen {
		sources = append(sources, name)
	}
	sort.Strings(sources)
	return sources
}

// summarizeResult produces the one-line metadata summary attached to
// successful outcomes.
func summarizeResult(result QueryResult, sources []string, attempts int) string {
	var b strings.Builder

	switch result.Count {
	case 0:
		b.WriteString("No matching records")
	case 1:
		b.WriteString("1 record")
	default:
		fmt.Fprintf(&b, "%d records", result.Count)
	}

	if len(sources) > 0 {
		fmt.Fprintf(&b, " from %s", strings.Join(sources, ", "))
	}

	if attempts > 1 {
		fmt.Fprintf(&b, " (after %d attempts)", attempts)
	}

	return b.String()
}

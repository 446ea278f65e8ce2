package skill

import (
	"embed"
	"strconv"
	"strings"
)

//go:embed contexts/*.md
var contextsFS embed.FS

var contexts = map[Skill]string{}

func init() {
	for _, s := range All() {
		data, err := contextsFS.ReadFile("contexts/" + string(s) + ".md")
		if err != nil {
			panic("skill: missing context for " + string(s) + ": " + err.Error())
		}
		contexts[s] = strings.TrimSpace(string(data))
	}
}

// Context returns the skill-scoped schema context used as the system prompt
// for SQL generation, with the tenant identifier injected.
func Context(s Skill, companyID int64) string {
	c, ok := contexts[s]
	if !ok {
		c = contexts[General]
	}
	return strings.ReplaceAll(c, "{{COMPANY_ID}}", strconv.FormatInt(companyID, 10))
}

package governance

import (
	"context"
	"regexp"
	"strings"
)

// Rule names reported in SQL rejections.
const (
	RuleSelectOnly = "select_only"
	RuleDenylist   = "denylist"
	RuleTables     = "allowed_tables"
	RuleComplexity = "complexity"
)

const (
	DefaultMaxSQLLength = 1000
	DefaultMaxParens    = 20
	DefaultMaxSelects   = 3
)

// DeniedSQLTokens are matched as case-insensitive substrings anywhere in the query text.
var DeniedSQLTokens = []string{
	// writes and DDL
	"drop", "delete", "update", "insert", "alter", "create", "truncate", "grant", "revoke",
	// comments, statement chaining, result splicing
	"--", "/*", "*/", ";", "union",
	// schema introspection
	"information_schema", "pg_catalog", "pg_tables", "pg_class", "pg_namespace", "pg_user",
	"pg_shadow", "pg_roles", "pg_authid", "sqlite_master",
	// timing side channels
	"pg_sleep", "sleep(", "benchmark(", "waitfor",
}

var (
	selectPrefix = regexp.MustCompile(`^select\b`)
	selectWord   = regexp.MustCompile(`\bselect\b`)
)

// SQLGuard accepts only bounded, read-only SELECT statements over the allowed tables.
type SQLGuard struct {
	tables map[string]bool
	deny   *DefaultPolicyEngine

	MaxLength  int
	MaxParens  int
	MaxSelects int
}

func NewSQLGuard(tables []string) *SQLGuard {
	g := &SQLGuard{
		tables:     make(map[string]bool, len(tables)),
		deny:       NewDefaultPolicyEngine(),
		MaxLength:  DefaultMaxSQLLength,
		MaxParens:  DefaultMaxParens,
		MaxSelects: DefaultMaxSelects,
	}
	for _, t := range tables {
		g.tables[strings.ToLower(t)] = true
	}
	g.deny.DenySubstrings(DeniedSQLTokens...)
	return g
}

// Validate applies the rules in order and returns the normalized query: surrounding
// whitespace and a single trailing semicolon removed.
func (g *SQLGuard) Validate(query string) (string, error) {
	q := strings.TrimSpace(query)
	q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	lower := strings.ToLower(q)

	if !selectPrefix.MatchString(lower) {
		return "", reject(RuleSelectOnly, "only SELECT queries are allowed")
	}

	res, _ := g.deny.Evaluate(context.Background(), Request{Tool: "execute_sql", Arguments: lower})
	if res.Effect == EffectDeny {
		return "", reject(RuleDenylist, "query contains forbidden token %q", res.Match)
	}

	if targets, hasFrom := tableTargets(lower); hasFrom {
		if len(targets) == 0 {
			return "", reject(RuleTables, "query must read from an allowed table")
		}
		for _, t := range targets {
			if !g.tables[t] {
				return "", reject(RuleTables, "table %q is not allowed", t)
			}
		}
	}

	if len(q) > g.MaxLength {
		return "", reject(RuleComplexity, "query is %d characters, limit is %d", len(q), g.MaxLength)
	}
	if n := strings.Count(q, "("); n > g.MaxParens {
		return "", reject(RuleComplexity, "query has %d parentheses, limit is %d", n, g.MaxParens)
	}
	if n := len(selectWord.FindAllStringIndex(lower, -1)); n > g.MaxSelects {
		return "", reject(RuleComplexity, "query nests %d SELECTs, limit is %d", n, g.MaxSelects)
	}

	return q, nil
}

// Allowed reports whether table is one of the guarded datasets.
func (g *SQLGuard) Allowed(table string) bool {
	return g.tables[strings.ToLower(table)]
}

type sqlToken struct {
	text   string
	quoted bool
}

// tokenize splits lower-cased SQL into words, double-quoted identifiers and the
// punctuation "(", ")" and ",". String literals are dropped.
func tokenize(q string) []sqlToken {
	var out []sqlToken
	for i := 0; i < len(q); {
		c := q[i]
		switch {
		case c == '\'':
			j := strings.IndexByte(q[i+1:], '\'')
			if j < 0 {
				return out
			}
			i += j + 2
		case c == '"':
			j := strings.IndexByte(q[i+1:], '"')
			if j < 0 {
				out = append(out, sqlToken{text: q[i+1:], quoted: true})
				return out
			}
			out = append(out, sqlToken{text: q[i+1 : i+1+j], quoted: true})
			i += j + 2
		case c == '(' || c == ')' || c == ',':
			out = append(out, sqlToken{text: string(c)})
			i++
		case isWordByte(c):
			j := i
			for j < len(q) && isWordByte(q[j]) {
				j++
			}
			out = append(out, sqlToken{text: q[i:j]})
			i = j
		default:
			i++
		}
	}
	return out
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

// queryScope is one parenthesis level. Only levels that open with SELECT read tables;
// FROM inside EXTRACT, TRIM or SUBSTRING is an argument keyword.
type queryScope struct {
	query  bool
	inFrom bool
}

var fromListEnd = map[string]bool{
	"where": true, "group": true, "having": true, "order": true, "limit": true,
	"offset": true, "fetch": true, "window": true, "for": true,
}

// tableTargets returns every relation named after FROM, JOIN or a comma in a FROM list,
// at any query level. Derived tables are skipped; their inner queries are scanned.
func tableTargets(lower string) (targets []string, hasFrom bool) {
	toks := tokenize(lower)
	stack := []queryScope{{query: true}}
	expectTable := false

	for i, tok := range toks {
		if expectTable {
			expectTable = false
			if !tok.quoted && (tok.text == "lateral" || tok.text == "only") {
				expectTable = true
				continue
			}
			if tok.quoted || tok.text != "(" {
				targets = append(targets, tok.text)
				continue
			}
		}
		if tok.quoted {
			continue
		}

		top := &stack[len(stack)-1]
		switch tok.text {
		case "(":
			sub := i+1 < len(toks) && !toks[i+1].quoted && toks[i+1].text == "select"
			stack = append(stack, queryScope{query: sub})
		case ")":
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case "from":
			if top.query {
				hasFrom = true
				top.inFrom = true
				expectTable = true
			}
		case "join":
			if top.query {
				expectTable = true
			}
		case ",":
			if top.query && top.inFrom {
				expectTable = true
			}
		default:
			if fromListEnd[tok.text] {
				top.inFrom = false
			}
		}
	}
	return targets, hasFrom
}

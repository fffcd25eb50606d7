package syncer

import (
	"bufio"
	"path/filepath"
	"sort"
	"strings"
)

// sourceExtensions lists the file types the tracker follows. Grouping only
// needs a rough static view, so the set favors common languages over
// completeness.
var sourceExtensions = map[string]bool{
	".go":    true,
	".py":    true,
	".js":    true,
	".jsx":   true,
	".ts":    true,
	".tsx":   true,
	".java":  true,
	".kt":    true,
	".rb":    true,
	".rs":    true,
	".c":     true,
	".h":     true,
	".cc":    true,
	".cpp":   true,
	".hpp":   true,
	".cs":    true,
	".swift": true,
	".php":   true,
	".scala": true,
	".sh":    true,
	".sql":   true,
	".proto": true,
}

func isSourceFile(path string) bool {
	return sourceExtensions[strings.ToLower(filepath.Ext(path))]
}

func isTestFile(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	return strings.HasSuffix(base, "_test.go") ||
		strings.HasPrefix(base, "test_") ||
		strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.")
}

// maxScanLine bounds line length during extraction; minified bundles can
// carry megabyte lines
const maxScanLine = 64 * 1024

// extractImports scans for import-like statements across languages. It is a
// heuristic line scan, not a parser; the grouping service tolerates noise.
func extractImports(content string) []string {
	seen := make(map[string]bool)
	var imports []string
	add := func(imp string) {
		imp = strings.Trim(imp, `"'`+"`;() \t")
		if imp == "" || seen[imp] {
			return
		}
		seen[imp] = true
		imports = append(imports, imp)
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 4096), maxScanLine)

	inGoImportBlock := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if inGoImportBlock {
			if line == ")" {
				inGoImportBlock = false
				continue
			}
			// Drop an alias prefix if present
			if fields := strings.Fields(line); len(fields) > 0 {
				add(fields[len(fields)-1])
			}
			continue
		}

		switch {
		case line == "import (":
			inGoImportBlock = true

		case strings.HasPrefix(line, "import "):
			rest := strings.TrimPrefix(line, "import ")
			// "import x from 'mod'" keeps the module, "import a, b" keeps both
			if idx := strings.Index(rest, " from "); idx >= 0 {
				add(rest[idx+len(" from "):])
			} else {
				for _, part := range strings.Split(rest, ",") {
					if fields := strings.Fields(part); len(fields) > 0 {
						add(fields[0])
					}
				}
			}

		case strings.HasPrefix(line, "from ") && strings.Contains(line, " import "):
			mod := line[len("from "):strings.Index(line, " import ")]
			add(mod)

		case strings.Contains(line, "require("):
			rest := line[strings.Index(line, "require(")+len("require("):]
			if end := strings.IndexAny(rest, ")"); end >= 0 {
				add(rest[:end])
			}

		case strings.HasPrefix(line, "#include"):
			add(strings.Trim(strings.TrimPrefix(line, "#include"), " <>\"\t"))

		case strings.HasPrefix(line, "use ") && strings.HasSuffix(line, ";"):
			add(strings.TrimSuffix(strings.TrimPrefix(line, "use "), ";"))
		}
	}

	sort.Strings(imports)
	return imports
}

// declarationPrefixes maps declaration keywords to the position of the
// declared name in the remaining fields
var declarationPrefixes = []string{
	"func ", "type ", "class ", "def ", "function ", "interface ", "struct ",
	"const ", "var ",
}

// extractIdentifiers scans for top-level declaration names
func extractIdentifiers(content string) []string {
	seen := make(map[string]bool)
	var idents []string

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 4096), maxScanLine)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		for _, prefix := range declarationPrefixes {
			if !strings.HasPrefix(line, prefix) {
				continue
			}
			rest := strings.TrimSpace(strings.TrimPrefix(line, prefix))
			// Methods: skip the Go receiver clause
			if strings.HasPrefix(rest, "(") {
				if end := strings.Index(rest, ")"); end >= 0 {
					rest = strings.TrimSpace(rest[end+1:])
				}
			}
			name := declarationName(rest)
			if name != "" && !seen[name] {
				seen[name] = true
				idents = append(idents, name)
			}
			break
		}
	}

	sort.Strings(idents)
	return idents
}

// declarationName trims a declaration tail down to the bare identifier
func declarationName(rest string) string {
	end := 0
	for end < len(rest) {
		c := rest[end]
		if c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
			end > 0 && c >= '0' && c <= '9' {
			end++
			continue
		}
		break
	}
	return rest[:end]
}

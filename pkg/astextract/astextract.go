// Package astextract locates an application's declarative block inside a
// Rust source file using a tree-sitter grammar, the way pkg/uast's DSL
// parser drives go-tree-sitter-bare against a go-sitter-forest grammar,
// generalized here from a generic mapping-rule walk to one fixed search:
// an `#[app(...)]` attribute followed by a `mod` item.
package astextract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/alexaandru/go-sitter-forest/rust"
	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/tracescope/tracescope/pkg/tracerr"
)

// dispatchersPattern matches the `dispatchers = [...]` clause inside a
// Declaration's raw Arguments text.
var dispatchersPattern = regexp.MustCompile(`dispatchers\s*=\s*\[([^\]]*)\]`)

// ParseDispatchers extracts the software-task dispatcher interrupt names
// from a declaration's raw argument text, e.g.
// "device = pac, dispatchers = [SPI1, SPI2]" yields ["SPI1", "SPI2"].
func ParseDispatchers(arguments string) []string {
	m := dispatchersPattern.FindStringSubmatch(arguments)
	if m == nil {
		return nil
	}

	var names []string

	for _, part := range strings.Split(m[1], ",") {
		name := strings.TrimSpace(part)
		if name != "" {
			names = append(names, name)
		}
	}

	return names
}

// ErrArgumentsMissing is returned when no `#[app(...)]` declaration is found.
var ErrArgumentsMissing = errors.New("astextract: no app(...) declaration found")

// attributeName is the only declaration spelling accepted. Alternate
// spellings, e.g. `#[rtic::app(...)]`, are rejected deliberately.
const attributeName = "app"

// Declaration is the application's declarative block: the attribute's
// argument text and the byte range of the following module body, both
// preserved verbatim so a downstream parser can re-walk the body tokens
// under task-binding semantics.
type Declaration struct {
	Arguments  string
	BodyStart  uint
	BodyEnd    uint
	BodySource []byte
	ModuleName string
}

var (
	rustLanguage     *sitter.Language
	rustLanguageOnce sync.Once
)

func loadRustLanguage() *sitter.Language {
	rustLanguageOnce.Do(func() {
		rustLanguage = sitter.NewLanguage(rust.GetLanguage())
	})

	return rustLanguage
}

// ExtractFile reads path and extracts its application declaration.
func ExtractFile(path string) (Declaration, error) {
	source, err := os.ReadFile(path) //nolint:gosec // path is operator-configured, not request input
	if err != nil {
		return Declaration{}, tracerr.SourceError(fmt.Sprintf("read %s", path), err)
	}

	return Extract(source)
}

// Extract scans source for a top-level `#[app(...)] mod <name> { ... }`
// item and returns its declarative arguments and body token range.
func Extract(source []byte) (Declaration, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(loadRustLanguage())

	tree, err := parser.ParseString(context.Background(), nil, source)
	if err != nil {
		return Declaration{}, tracerr.SourceError("tokenize rust source", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.IsNull() {
		return Declaration{}, tracerr.SourceError("tokenize rust source", errors.New("empty parse tree"))
	}

	for i := range root.NamedChildCount() {
		child := root.NamedChild(i)
		if child.Type() != "attribute_item" {
			continue
		}

		args, ok := matchAppAttribute(child, source)
		if !ok {
			continue
		}

		mod := nextNamedSibling(root, i)
		if mod.IsNull() || mod.Type() != "mod_item" {
			continue
		}

		body := mod.ChildByFieldName("body")
		if body.IsNull() {
			continue
		}

		name := mod.ChildByFieldName("name")

		return Declaration{
			Arguments:  args,
			BodyStart:  body.StartByte(),
			BodyEnd:    body.EndByte(),
			BodySource: source,
			ModuleName: nodeText(name, source),
		}, nil
	}

	return Declaration{}, ErrArgumentsMissing
}

// matchAppAttribute reports whether item is `#[app(...)]` and, if so,
// returns the text between its parentheses.
func matchAppAttribute(item sitter.Node, source []byte) (string, bool) {
	for i := range item.NamedChildCount() {
		attr := item.NamedChild(i)
		if attr.Type() != "attribute" {
			continue
		}

		path := attr.ChildByFieldName("path")
		if path.IsNull() || nodeText(path, source) != attributeName {
			continue
		}

		tokenTree := attr.ChildByFieldName("arguments")
		if tokenTree.IsNull() {
			return "", false
		}

		return innerTokenText(tokenTree, source), true
	}

	return "", false
}

// nextNamedSibling returns root's named child immediately following index i.
func nextNamedSibling(root sitter.Node, i uint) sitter.Node {
	if i+1 >= root.NamedChildCount() {
		return sitter.Node{}
	}

	return root.NamedChild(i + 1)
}

// innerTokenText strips the outermost "(" and ")" delimiters from a
// token-tree node's text.
func innerTokenText(tokenTree sitter.Node, source []byte) string {
	text := nodeText(tokenTree, source)
	if len(text) >= 2 {
		return text[1 : len(text)-1]
	}

	return ""
}

func nodeText(n sitter.Node, source []byte) string {
	if n.IsNull() {
		return ""
	}

	start, end := n.StartByte(), n.EndByte()
	if end > uint(len(source)) {
		return ""
	}

	return string(source[start:end])
}

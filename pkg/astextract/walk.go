package astextract

import (
	"context"
	"regexp"

	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/tracescope/tracescope/pkg/tracerr"
)

// Item is one `fn` or `mod` item found while walking a Declaration's
// body, in source order, alongside whether the item itself carries the
// tracing attribute (an ancestor's attribute is not inherited), and which interrupt (if any)
// a `#[task(binds = ...)]` attribute bound it to.
type Item struct {
	IsFn     bool // false means it's a mod item
	Name     string
	Traced   bool
	Binds    string // empty unless the item carries #[task(binds = X)]
	Children []Item // only populated for mod items
}

// traceAttributeName is the attribute that marks a function for
// instrumentation; its presence (with no arguments) is all that matters.
const traceAttributeName = "trace"

// taskAttributeName is the attribute binding a hardware task to an
// interrupt, e.g. `#[task(binds = TIM2)]`.
const taskAttributeName = "task"

// bindsPattern extracts the interrupt name out of a task attribute's
// argument text, e.g. "binds = TIM2" yields "TIM2".
var bindsPattern = regexp.MustCompile(`binds\s*=\s*(\w+)`)

// Walk re-parses d's body range and returns its fn/mod items in source
// order, recursing into nested mod items.
func (d Declaration) Walk() ([]Item, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(loadRustLanguage())

	tree, err := parser.ParseString(context.Background(), nil, d.BodySource)
	if err != nil {
		return nil, tracerr.SourceError("re-tokenize application body", err)
	}
	defer tree.Close()

	body := findNodeByRange(tree.RootNode(), d.BodyStart, d.BodyEnd)
	if body.IsNull() {
		return nil, tracerr.SourceError("locate application body", nil)
	}

	return walkItems(body, d.BodySource), nil
}

func findNodeByRange(n sitter.Node, start, end uint) sitter.Node {
	if n.StartByte() == start && n.EndByte() == end {
		return n
	}

	for i := range n.NamedChildCount() {
		if found := findNodeByRange(n.NamedChild(i), start, end); !found.IsNull() {
			return found
		}
	}

	return sitter.Node{}
}

// walkItems scans body's named children in order. Each attribute_item is
// remembered until the next fn/mod item consumes it (Rust attributes are
// always immediately-preceding siblings of the item they annotate).
func walkItems(body sitter.Node, source []byte) []Item {
	var (
		items        []Item
		pendingTrace bool
		pendingBinds string
	)

	for i := range body.NamedChildCount() {
		child := body.NamedChild(i)

		switch child.Type() {
		case "attribute_item":
			if attributeText(child, source) == traceAttributeName {
				pendingTrace = true
			}

			if binds, ok := taskBindsArgument(child, source); ok {
				pendingBinds = binds
			}

			continue
		case "function_item":
			name := nodeText(child.ChildByFieldName("name"), source)
			items = append(items, Item{IsFn: true, Name: name, Traced: pendingTrace, Binds: pendingBinds})
		case "mod_item":
			name := nodeText(child.ChildByFieldName("name"), source)

			modBody := child.ChildByFieldName("body")

			var children []Item
			if !modBody.IsNull() {
				children = walkItems(modBody, source)
			}

			items = append(items, Item{IsFn: false, Name: name, Traced: pendingTrace, Children: children})
		default:
			pendingTrace = false
			pendingBinds = ""

			continue
		}

		pendingTrace = false
		pendingBinds = ""
	}

	return items
}

// taskBindsArgument reports whether item is `#[task(binds = X)]` and, if
// so, returns the bound interrupt name X.
func taskBindsArgument(item sitter.Node, source []byte) (string, bool) {
	for i := range item.NamedChildCount() {
		attr := item.NamedChild(i)
		if attr.Type() != "attribute" {
			continue
		}

		path := attr.ChildByFieldName("path")
		if path.IsNull() || nodeText(path, source) != taskAttributeName {
			continue
		}

		tokenTree := attr.ChildByFieldName("arguments")
		if tokenTree.IsNull() {
			continue
		}

		m := bindsPattern.FindStringSubmatch(innerTokenText(tokenTree, source))
		if m == nil {
			continue
		}

		return m[1], true
	}

	return "", false
}

// attributeText returns the path name of a simple, argument-less
// attribute, e.g. "trace" for `#[trace]`.
func attributeText(item sitter.Node, source []byte) string {
	for i := range item.NamedChildCount() {
		attr := item.NamedChild(i)
		if attr.Type() != "attribute" {
			continue
		}

		path := attr.ChildByFieldName("path")
		if path.IsNull() {
			continue
		}

		return nodeText(path, source)
	}

	return ""
}

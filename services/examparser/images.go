package examparser

import (
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var htmlImgSrcRe = regexp.MustCompile(`(?i)<img[^>]*\ssrc\s*=\s*["']([^"']+)["']`)

// CollectImageRefs returns the distinct image destinations referenced by
// markdown image syntax or inline <img> tags in content, in order of appearance
func CollectImageRefs(content string) []string {
	refs := []string{}
	if content == "" {
		return refs
	}

	seen := make(map[string]bool)
	addRef := func(dest string) {
		if dest == "" || seen[dest] {
			return
		}
		seen[dest] = true
		refs = append(refs, dest)
	}
	addHTML := func(raw []byte) {
		for _, m := range htmlImgSrcRe.FindAllSubmatch(raw, -1) {
			addRef(string(m[1]))
		}
	}

	src := []byte(content)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Image:
			addRef(string(node.Destination))
		case *ast.RawHTML:
			for i := 0; i < node.Segments.Len(); i++ {
				seg := node.Segments.At(i)
				addHTML(seg.Value(src))
			}
		case *ast.HTMLBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				addHTML(seg.Value(src))
			}
		}
		return ast.WalkContinue, nil
	})

	return refs
}

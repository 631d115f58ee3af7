// Package loader extracts page-tagged text blocks from study documents.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"studyrag/internal/domain"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrNoDocuments       = errors.New("no documents found")
)

// Load expands glob patterns and extracts every supported file in order.
func Load(patterns ...string) ([]domain.TextBlock, error) {
	var blocks []domain.TextBlock
	files := 0
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil || matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			b, err := LoadFile(m)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, b...)
			files++
		}
	}
	if files == 0 {
		return nil, ErrNoDocuments
	}
	return blocks, nil
}

// LoadFile extracts one file. SourceID is the file's base name.
func LoadFile(path string) ([]domain.TextBlock, error) {
	source := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return PlainText(string(data), source), nil
	case ".md", ".markdown":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return []domain.TextBlock{{Text: Markdown(data), Page: 1, SourceID: source}}, nil
	case ".pdf":
		return PDF(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// PlainText treats form feeds as page breaks.
func PlainText(s, source string) []domain.TextBlock {
	pages := strings.Split(s, "\f")
	blocks := make([]domain.TextBlock, len(pages))
	for i, p := range pages {
		blocks[i] = domain.TextBlock{Text: p, Page: i + 1, SourceID: source}
	}
	return blocks
}

// Markdown renders the document as plain text, one blank line between blocks.
func Markdown(src []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(src))
				}
				b.WriteByte('\n')
			}
		case *ast.Paragraph, *ast.Heading:
			if !entering {
				b.WriteString("\n\n")
			}
		case *ast.TextBlock:
			if !entering {
				b.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// PDF extracts one block per page. Pages without a content stream yield
// empty blocks so page numbers stay aligned.
func PDF(path string) ([]domain.TextBlock, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	source := filepath.Base(path)
	fonts := make(map[string]*pdf.Font)
	n := r.NumPage()
	blocks := make([]domain.TextBlock, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			blocks = append(blocks, domain.TextBlock{Page: i, SourceID: source})
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := p.Font(name)
				fonts[name] = &font
			}
		}
		txt, err := p.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("pdf %s page %d: %w", source, i, err)
		}
		blocks = append(blocks, domain.TextBlock{Text: txt, Page: i, SourceID: source})
	}
	return blocks, nil
}

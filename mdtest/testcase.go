// Package mdtest extracts compiler test cases from Markdown documents.
//
// A test case starts at a heading of the form "Test: <name>" and holds one
// fenced `pl0` input block plus one or more assertion blocks: `output`
// (expected stdout of the executed program), `error` (expected diagnostic
// substring), or `ast` (expected s-expression dump of the parsed tree).
package mdtest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// AssertionType identifies the fence language of an assertion block.
type AssertionType string

const (
	AssertionOutput AssertionType = "output"
	AssertionError  AssertionType = "error"
	AssertionAST    AssertionType = "ast"
)

// Assertion is a single assertion block within a test case.
type Assertion struct {
	Type    AssertionType
	Content string // raw fence content
}

// TestCase is one extracted test: a named PL/0 source with its assertions.
type TestCase struct {
	Name       string
	Source     string
	Assertions []Assertion
}

const inputLanguage = "pl0"

// ExtractTestCases parses a Markdown document and collects all test cases.
func ExtractTestCases(markdown string) ([]TestCase, error) {
	md := goldmark.New()
	source := []byte(markdown)

	doc := md.Parser().Parse(text.NewReader(source))

	var cases []TestCase
	var current *TestCase

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n := node.(type) {
		case *ast.Heading:
			heading := extractText(n, source)
			if strings.HasPrefix(heading, "Test: ") {
				if current != nil {
					if err := validate(current); err != nil {
						return ast.WalkStop, err
					}
					cases = append(cases, *current)
				}
				current = &TestCase{Name: strings.TrimPrefix(heading, "Test: ")}
			}

		case *ast.FencedCodeBlock:
			language := string(n.Language(source))
			content := fenceContent(n, source)
			lineNum := fenceLine(n, source)

			if language == "" {
				return ast.WalkContinue, nil
			}
			if current == nil {
				return ast.WalkStop, fmt.Errorf("line %d: %s fence found outside of test case", lineNum, language)
			}

			switch language {
			case inputLanguage:
				if current.Source != "" {
					return ast.WalkStop, fmt.Errorf("line %d: multiple pl0 fences in test '%s'", lineNum, current.Name)
				}
				current.Source = content
			case string(AssertionOutput), string(AssertionError), string(AssertionAST):
				current.Assertions = append(current.Assertions, Assertion{
					Type:    AssertionType(language),
					Content: content,
				})
			default:
				return ast.WalkStop, fmt.Errorf("line %d: unknown fence language '%s' in test '%s'", lineNum, language, current.Name)
			}
		}

		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}

	if current != nil {
		if err := validate(current); err != nil {
			return nil, err
		}
		cases = append(cases, *current)
	}

	return cases, nil
}

func validate(tc *TestCase) error {
	if tc.Source == "" {
		return fmt.Errorf("test '%s' has no pl0 fence", tc.Name)
	}
	if len(tc.Assertions) == 0 {
		return fmt.Errorf("test '%s' has no assertion fences", tc.Name)
	}
	return nil
}

func extractText(node ast.Node, source []byte) string {
	var buf bytes.Buffer

	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if txt, ok := n.(*ast.Text); ok {
				buf.Write(txt.Segment.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})

	return buf.String()
}

func fenceContent(block *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer

	for i := 0; i < block.Lines().Len(); i++ {
		line := block.Lines().At(i)
		buf.Write(line.Value(source))
	}

	return buf.String()
}

func fenceLine(block *ast.FencedCodeBlock, source []byte) int {
	if block.Lines().Len() == 0 {
		return 1
	}
	start := block.Lines().At(0).Start
	lineNum := 1
	for i := 0; i < start && i < len(source); i++ {
		if source[i] == '\n' {
			lineNum++
		}
	}
	return lineNum
}

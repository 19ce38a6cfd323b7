package mdtest

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

const sampleDoc = `# Suite

Prose between cases is ignored.

## Test: prints seven

` + "```pl0\n! 7.\n```\n\n```output\n7\n```" + `

## Test: rejects unknowns

` + "```pl0\n! y.\n```\n\n```error\nundefined variable 'y'...\n```"

func TestExtractTestCases(t *testing.T) {
	cases, err := ExtractTestCases(sampleDoc)
	be.Err(t, err, nil)
	be.Equal(t, len(cases), 2)

	be.Equal(t, cases[0].Name, "prints seven")
	be.Equal(t, cases[0].Source, "! 7.\n")
	be.Equal(t, len(cases[0].Assertions), 1)
	be.Equal(t, cases[0].Assertions[0].Type, AssertionOutput)
	be.Equal(t, cases[0].Assertions[0].Content, "7\n")

	be.Equal(t, cases[1].Name, "rejects unknowns")
	be.Equal(t, cases[1].Assertions[0].Type, AssertionError)
	be.True(t, strings.Contains(cases[1].Assertions[0].Content, "undefined variable"))
}

func TestFenceOutsideTestCaseFails(t *testing.T) {
	doc := "# Suite\n\n```pl0\n! 1.\n```\n"
	_, err := ExtractTestCases(doc)
	be.True(t, err != nil)
	be.True(t, strings.Contains(err.Error(), "outside of test case"))
}

func TestMissingInputFails(t *testing.T) {
	doc := "## Test: empty\n\n```output\n1\n```\n"
	_, err := ExtractTestCases(doc)
	be.True(t, err != nil)
	be.True(t, strings.Contains(err.Error(), "has no pl0 fence"))
}

func TestMissingAssertionFails(t *testing.T) {
	doc := "## Test: no checks\n\n```pl0\n! 1.\n```\n"
	_, err := ExtractTestCases(doc)
	be.True(t, err != nil)
	be.True(t, strings.Contains(err.Error(), "has no assertion fences"))
}

func TestUnknownFenceLanguageFails(t *testing.T) {
	doc := "## Test: bad fence\n\n```pl0\n! 1.\n```\n\n```wat\nnope\n```\n"
	_, err := ExtractTestCases(doc)
	be.True(t, err != nil)
	be.True(t, strings.Contains(err.Error(), "unknown fence language"))
}

func TestMultipleInputFencesFail(t *testing.T) {
	doc := "## Test: twice\n\n```pl0\n! 1.\n```\n\n```pl0\n! 2.\n```\n"
	_, err := ExtractTestCases(doc)
	be.True(t, err != nil)
	be.True(t, strings.Contains(err.Error(), "multiple pl0 fences"))
}

func TestPlainFencesAreIgnored(t *testing.T) {
	doc := "Intro:\n\n```\njust an example\n```\n\n## Test: ok\n\n```pl0\n! 1.\n```\n\n```output\n1\n```\n"
	cases, err := ExtractTestCases(doc)
	be.Err(t, err, nil)
	be.Equal(t, len(cases), 1)
}

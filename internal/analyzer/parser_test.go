package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goSample = `package sample

import (
	"fmt"
	str "strings"
)

// Greeter builds greetings.
type Greeter struct {
	prefix string
}

// Greet returns a greeting for name.
func (g *Greeter) Greet(name string) string {
	return fmt.Sprintf("%s %s", g.prefix, str.TrimSpace(name))
}

// Shout greets loudly.
func Shout(name string) string {
	g := Greeter{prefix: "HEY"}
	return str.ToUpper(g.Greet(name))
}
`

const pySample = `import os
import numpy as np
from collections import OrderedDict, defaultdict


class Greeter:
    """Builds greetings."""

    def __init__(self, prefix):
        self.prefix = prefix

    def greet(self, name):
        """Return a greeting."""
        return self.prefix + name.strip()


def shout(name):
    g = Greeter("HEY")
    return g.greet(name).upper()
`

func TestDetectLanguage(t *testing.T) {
	lang, ok := DetectLanguage("pkg/util.go")
	require.True(t, ok)
	assert.Equal(t, LangGo, lang)

	lang, ok = DetectLanguage("scripts/run.py")
	require.True(t, ok)
	assert.Equal(t, LangPython, lang)

	_, ok = DetectLanguage("README.md")
	assert.False(t, ok)
}

func TestParseGoFile(t *testing.T) {
	p := NewParser()
	analysis, err := p.ParseFile(context.Background(), "pkg/sample.go", []byte(goSample))
	require.NoError(t, err)

	assert.Equal(t, LangGo, analysis.Language)
	assert.Equal(t, "pkg/sample.go", analysis.Path)
	assert.NotEmpty(t, analysis.Hash)

	require.Len(t, analysis.Classes, 1)
	cls := analysis.Classes[0]
	assert.Equal(t, "Greeter", cls.Name)
	require.Len(t, cls.Methods, 1)
	assert.Equal(t, "Greet", cls.Methods[0].Name)
	assert.NotEmpty(t, cls.Methods[0].Calls)

	require.Len(t, analysis.Functions, 1)
	fn := analysis.Functions[0]
	assert.Equal(t, "Shout", fn.Name)
	assert.Greater(t, fn.EndLine, fn.StartLine)

	callees := make([]string, 0, len(fn.Calls))
	for _, c := range fn.Calls {
		callees = append(callees, c.Callee)
	}
	assert.Contains(t, callees, "g.Greet")

	require.Len(t, analysis.Imports, 2)
	assert.Equal(t, "fmt", analysis.Imports[0].Module)
	assert.Equal(t, "strings", analysis.Imports[1].Module)
	assert.Equal(t, "str", analysis.Imports[1].Alias)
}

func TestParsePythonFile(t *testing.T) {
	p := NewParser()
	analysis, err := p.ParseFile(context.Background(), "app/sample.py", []byte(pySample))
	require.NoError(t, err)

	assert.Equal(t, LangPython, analysis.Language)

	require.Len(t, analysis.Classes, 1)
	cls := analysis.Classes[0]
	assert.Equal(t, "Greeter", cls.Name)
	assert.Equal(t, "Builds greetings.", cls.Docstring)
	require.Len(t, cls.Methods, 2)
	assert.Equal(t, "__init__", cls.Methods[0].Name)
	assert.Equal(t, "greet", cls.Methods[1].Name)
	assert.Equal(t, "Return a greeting.", cls.Methods[1].Docstring)

	require.Len(t, analysis.Functions, 1)
	assert.Equal(t, "shout", analysis.Functions[0].Name)

	require.Len(t, analysis.Imports, 3)
	assert.Equal(t, "os", analysis.Imports[0].Module)
	assert.Equal(t, "numpy", analysis.Imports[1].Module)
	assert.Equal(t, "np", analysis.Imports[1].Alias)
	assert.Equal(t, "collections", analysis.Imports[2].Module)
	assert.ElementsMatch(t, []string{"OrderedDict", "defaultdict"}, analysis.Imports[2].Names)
}

func TestParseUnsupportedFile(t *testing.T) {
	p := NewParser()
	_, err := p.ParseFile(context.Background(), "notes.txt", []byte("hello"))
	require.Error(t, err)
}

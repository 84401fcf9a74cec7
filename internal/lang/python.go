package lang

import (
	"github.com/smacker/go-tree-sitter/python"
)

// Python is the only language rustify translates.
var Python = &Language{
	Name:       "python",
	Extensions: []string{".py", ".pyi"},
	lang:       python.GetLanguage(),
}

func init() {
	Languages[Python.Name] = Python
}

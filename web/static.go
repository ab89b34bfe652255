package web

import (
	_ "embed"
)

//go:embed index.html
var indexHTML string

func GetIndexHTML() string {
	return indexHTML
}

// Package web contains the embedded dashboard page.
package web

import "embed"

// Assets holds the static files served at the root.
//
//go:embed *.html
var Assets embed.FS

// Package dashboard provides the embedded web UI for watch mode.
//
// The page subscribes to /api/sse and renders one row per resource with its
// latest digest and status. The assets are compiled into the binary.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Main dashboard page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS

// Package panel serves the gate control page as an embedded asset.
//
// The page is plain HTML and JavaScript embedded into the binary with
// go:embed, so a fresh install needs nothing beyond the executable. It talks
// only to the public /api routes: login, toggle, the admin override and user
// management, plus the WebSocket feed for live gate state.
//
// Handler can also serve from a directory on disk, which lets the page be
// edited without rebuilding. Unknown paths fall back to index.html.
package panel

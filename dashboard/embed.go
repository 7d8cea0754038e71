// Package dashboard provides the embedded web page for ScorePulse.
//
// The page lets a viewer enter a league and week and renders the matchups
// streamed from /stream/matchup/{leagueId}/{week}. It is served by the
// server package at "/".
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard page.
//
//	assets/
//	  index.html    - dashboard page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS

// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The watch view polls the job store and renders recent jobs with live
// counts, plus a progress bar for the currently running job. Updates arrive
// on a fixed tick; rendering never blocks the worker, which communicates
// only through the store.
//
// Keyboard navigation uses vim-style bindings (q/ctrl+c to quit, r to force
// a refresh) with contextual help displayed via charmbracelet/bubbles/help.
package ui

package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/lbx/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgProvidersFetched MsgKind = iota
	MsgProgressUpdate
	MsgResultsReady
)

type providersFetched struct {
	available []string
	err       error
}

type resultsReady struct {
	result *tasks.Result
	err    error
}

// providersFetchedMsg is the constructor for [MsgProvidersFetched]
func providersFetchedMsg(available []string, err error) Msg {
	return Msg{kind: MsgProvidersFetched, data: providersFetched{available, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// resultsReadyMsg is the constructor for [MsgResultsReady]
func resultsReadyMsg(result *tasks.Result, err error) Msg {
	return Msg{kind: MsgResultsReady, data: resultsReady{result, err}}
}

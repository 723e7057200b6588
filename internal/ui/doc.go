// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI walks through one results request:
//  1. [LoadingView] : Fetch the streaming services of the region
//  2. [ProviderView] : Check the services you can access (saved selection pre-checked)
//  3. [ProgressView] : Monitor scraping, enrichment and saving
//  4. [ResultView] : Browse the films that stream on the selected services
//
// Without an engine the model stops after [ProviderView], which is how provider selection is edited on its own.
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the WatchlistEngine.
package ui

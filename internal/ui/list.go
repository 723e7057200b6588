package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/lbx/internal/models"
)

var (
	_ list.Item = providerItem{}
	_ list.Item = filmItem{}
)

// providerItem is one checkbox row of the provider picker.
type providerItem struct {
	name     string
	selected bool
}

func (i providerItem) FilterValue() string { return i.name }
func (i providerItem) Title() string {
	if i.selected {
		return "[x] " + i.name
	}
	return "[ ] " + i.name
}
func (i providerItem) Description() string {
	if i.selected {
		return "selected"
	}
	return ""
}

// filmItem wraps [models.EnrichedFilm] to implement [list.Item].
type filmItem struct {
	film models.EnrichedFilm
}

func (i filmItem) FilterValue() string { return i.film.Title }
func (i filmItem) Title() string {
	if i.film.ReleaseYear > 0 {
		return fmt.Sprintf("%s (%d)", i.film.Title, i.film.ReleaseYear)
	}
	return i.film.Title
}
func (i filmItem) Description() string {
	desc := fmt.Sprintf("★ %.1f • %s", i.film.Rating, strings.Join(i.film.Providers, ", "))
	if len(i.film.Genres) > 0 {
		desc = fmt.Sprintf("%s • %s", desc, strings.Join(i.film.Genres, ", "))
	}
	return desc
}

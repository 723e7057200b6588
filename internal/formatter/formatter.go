// package formatter renders film lists as CSV, Markdown, plain text or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/desertthunder/lbx/internal/models"
	"github.com/desertthunder/lbx/internal/shared"
)

// Supported output formats
const (
	FormatCSV      = "csv"
	FormatMarkdown = "md"
	FormatText     = "txt"
	FormatJSON     = "json"
)

// Formats lists the accepted values of a --format flag.
var Formats = []string{FormatText, FormatCSV, FormatMarkdown, FormatJSON}

// Export is a rendered results request.
type Export struct {
	Username  string                `json:"username"`
	Region    string                `json:"region"`
	Providers []string              `json:"providers"`
	Films     []models.EnrichedFilm `json:"films"`
}

// Normalize maps a format name or alias ("markdown", "text") to one of [Formats].
// An empty name means [FormatText].
func Normalize(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatMarkdown, "markdown":
		return FormatMarkdown, nil
	case "", FormatText, "text":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (want one of %s)", shared.ErrInvalidArgument, format, strings.Join(Formats, ", "))
	}
}

// Render converts export to the named format.
func Render(export *Export, format string) ([]byte, error) {
	format, err := Normalize(format)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatCSV:
		return ExportToCSV(export)
	case FormatMarkdown:
		return ExportToMarkdown(export)
	case FormatJSON:
		return shared.MarshalJSON(export, true)
	default:
		return ExportToText(export)
	}
}

// ExportToCSV converts films to CSV format with columns: Title, Year, Rating, TMDB ID, Providers, Genres
//
// Providers and genres are joined with "|".
func ExportToCSV(export *Export) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Title", "Year", "Rating", "TMDB ID", "Providers", "Genres"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, film := range export.Films {
		record := []string{
			film.Title,
			yearString(film.ReleaseYear),
			strconv.FormatFloat(film.Rating, 'f', 1, 64),
			strconv.Itoa(film.ExternalID),
			strings.Join(film.Providers, "|"),
			strings.Join(film.Genres, "|"),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts films to a Markdown document with one table row per film
func ExportToMarkdown(export *Export) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Watchlist of %s\n\n", export.Username)
	fmt.Fprintf(&buf, "**Region**: %s\n", export.Region)
	if len(export.Providers) > 0 {
		fmt.Fprintf(&buf, "**Providers**: %s\n", strings.Join(export.Providers, ", "))
	}
	fmt.Fprintf(&buf, "**Films**: %d\n\n", len(export.Films))

	if len(export.Films) == 0 {
		buf.WriteString("_Nothing on your watchlist streams on these services._\n")
		return buf.Bytes(), nil
	}

	buf.WriteString("| # | Title | Year | Rating | Providers |\n")
	buf.WriteString("|---|-------|------|--------|-----------|\n")
	for i, film := range export.Films {
		fmt.Fprintf(&buf, "| %d | %s | %s | %.1f | %s |\n",
			i+1, escapeCell(film.Title), yearString(film.ReleaseYear), film.Rating, escapeCell(strings.Join(film.Providers, ", ")))
	}

	return buf.Bytes(), nil
}

// ExportToText converts films to plain text format
func ExportToText(export *Export) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Watchlist: %s (%s)\n", export.Username, export.Region)
	if len(export.Providers) > 0 {
		fmt.Fprintf(&buf, "Providers: %s\n", strings.Join(export.Providers, ", "))
	}
	fmt.Fprintf(&buf, "Films: %d\n\n", len(export.Films))

	for i, film := range export.Films {
		title := film.Title
		if film.ReleaseYear > 0 {
			title = fmt.Sprintf("%s (%d)", film.Title, film.ReleaseYear)
		}
		fmt.Fprintf(&buf, "%d. %s ★ %.1f [%s]\n", i+1, title, film.Rating, strings.Join(film.Providers, ", "))
	}

	return buf.Bytes(), nil
}

// WriteExport renders export and writes it to path.
//
// Defaults to {username}_{region}_watchlist.{format} as the filename.
func WriteExport(export *Export, format, path string) (string, error) {
	data, err := Render(export, format)
	if err != nil {
		return "", err
	}

	if path == "" {
		ext, _ := Normalize(format)
		path = fmt.Sprintf("%s_%s_watchlist.%s", export.Username, strings.ToLower(export.Region), ext)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	return path, nil
}

func yearString(year int) string {
	if year <= 0 {
		return ""
	}
	return strconv.Itoa(year)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

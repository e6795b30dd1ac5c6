// Package views renders the HTML fragments returned to HTMX clients.
package views

import (
	"context"
	"fmt"
	"io"

	"github.com/JonMunkholm/agrionboard/internal/core"
	"github.com/a-h/templ"
)

// ErrorAlert renders a dismissible error box.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<div class="alert alert-error" role="alert"><p class="alert-message">%s</p>`,
			templ.EscapeString(message)); err != nil {
			return err
		}
		if action != "" {
			if _, err := fmt.Fprintf(w, `<p class="alert-action">%s</p>`, templ.EscapeString(action)); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, `<span class="alert-code">Code: %s</span></div>`, templ.EscapeString(code))
		return err
	})
}

// ImportReport renders an import summary with its row diagnostics.
func ImportReport(res *core.ImportResult) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		title := "Import complete"
		if res.DryRun {
			title = "Import preview"
		}
		if _, err := fmt.Fprintf(w,
			`<section class="import-report" data-import-id="%s"><h3>%s</h3>`+
				`<ul class="import-counts"><li>Total: %d</li><li>New: %d</li><li>Updated: %d</li><li>Skipped: %d</li><li>Failed: %d</li></ul>`,
			templ.EscapeString(res.ImportID), title,
			res.Total, res.Summary.NewFarmers, res.Summary.UpdatedFarmers, res.Summary.SkippedFarmers, res.Failed,
		); err != nil {
			return err
		}
		if err := issueTable(w, "errors", res.Errors); err != nil {
			return err
		}
		if err := issueTable(w, "warnings", res.Warnings); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</section>`)
		return err
	})
}

func issueTable(w io.Writer, class string, issues []core.RowIssue) error {
	if len(issues) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(w, `<table class="import-%s"><thead><tr><th>Row</th><th>Field</th><th>Message</th></tr></thead><tbody>`, class); err != nil {
		return err
	}
	for _, is := range issues {
		if _, err := fmt.Fprintf(w, `<tr><td>%d</td><td>%s</td><td>%s</td></tr>`,
			is.Row, templ.EscapeString(is.Field), templ.EscapeString(is.Message)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, `</tbody></table>`)
	return err
}

// Package templates renders the dashboard page and the HTMX fragments that
// update it. Components are written in the .templ files next to this one;
// run `templ generate` after editing them. Device data only reaches the
// markup through templ expressions, so values always arrive as text.
package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// StatusID is the element ID of the page's single status line.
const StatusID = "status"

// Element IDs of the JSON editor.
const (
	EditorID     = "editor"
	EditorSizeID = "editor-size"
)

// TheadID, TbodyID and SectionsID derive element IDs for a panel.
func TheadID(panel string) string    { return panel + "-thead" }
func TbodyID(panel string) string    { return panel + "-tbody" }
func SectionsID(panel string) string { return panel + "-sections" }

// Join renders components one after another.
func Join(parts ...templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		for _, p := range parts {
			if p == nil {
				continue
			}
			if err := p.Render(ctx, w); err != nil {
				return err
			}
		}
		return nil
	})
}

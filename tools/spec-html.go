// Package tools renders spec documentation.
package tools

import (
	"encoding/json"
	"fmt"
	"html"
	"io"

	"github.com/millrace/millrace/core"

	md "github.com/russross/blackfriday/v2"
)

// RenderSpecHTML writes an HTML fragment documenting the spec: its
// doc, then one section per group with guard, window rule, and
// fields.  Doc strings are Markdown.
func RenderSpecHTML(s *core.Spec, out io.Writer) error {
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+"\n", args...)
	}

	f(`<div class="specDoc doc">%s</div>`, md.Run([]byte(s.Doc)))

	f(`<div class="groups"><table>`)
	for _, g := range s.Groups {
		f(`<tr class="group"><td><span id="%s" class="groupName">%s</span></td><td>`,
			html.EscapeString(g.Name), html.EscapeString(g.Name))

		f(`<div>type: <span class="groupType">%s</span></div>`, html.EscapeString(g.Type))
		if g.Doc != "" {
			f(`<div class="groupDoc doc">%s</div>`, md.Run([]byte(g.Doc)))
		}
		if g.When != "" {
			f(`<div class="code">when: <pre>%s</pre></div>`, html.EscapeString(g.When))
		}
		if g.Key != "" {
			f(`<div class="code">key: <pre>%s</pre></div>`, html.EscapeString(g.Key))
		}
		if g.Expiry != "" {
			f(`<div>expiry: <code>%s</code></div>`, html.EscapeString(g.Expiry))
		}

		f(`<div class="fields"><table>`)
		for _, fs := range g.Fields {
			f(`<tr><td><code>%s</code></td><td>%s</td>`,
				html.EscapeString(fs.Name), html.EscapeString(fs.Type))
			f(`<td><div class="code"><pre>%s</pre></div></td>`,
				html.EscapeString(fs.Expression))
			if fs.Default != nil {
				f(`<td><code>%s</code></td>`, html.EscapeString(js(fs.Default)))
			}
			f(`</tr>`)
		}
		f(`</table></div>`)

		f(`</td></tr>`)
	}
	f(`</table></div>`)

	return nil
}

// RenderSpecPage writes a complete HTML page for the spec.
func RenderSpecPage(s *core.Spec, out io.Writer, cssFiles []string) error {
	if cssFiles == nil {
		cssFiles = []string{"/static/spec-html.css"}
	}

	fmt.Fprintf(out, `<!DOCTYPE html>
<meta charset="utf-8">
<html>
  <head>
    <title>%s</title>
`, html.EscapeString(s.Name))

	for _, css := range cssFiles {
		fmt.Fprintf(out, `    <link rel="stylesheet" href="%s">
`, css)
	}

	fmt.Fprintf(out, `  </head>
  <body>
    <h1>%s <span class="specVersion">%s</span></h1>
`, html.EscapeString(s.Name), html.EscapeString(s.Version))

	if err := RenderSpecHTML(s, out); err != nil {
		return err
	}

	fmt.Fprintf(out, `  </body>
</html>
`)

	return nil
}

func js(x interface{}) string {
	bs, err := json.Marshal(&x)
	if err != nil {
		return fmt.Sprintf("%#v", x)
	}
	return string(bs)
}

// SPDX-License-Identifier: MIT

package assets

import (
	"fmt"
	"html/template"
	"strings"
)

// MountID is the element the embedded viewer runtime attaches to.
const MountID = "folio-root"

const defaultTitle = "folio viewer"

// DocumentParams carries the per-session values baked into the generated
// viewer document.
type DocumentParams struct {
	Title       string
	SessionID   string
	DocID       string
	PageCount   int
	InitialPage int
	InitialZoom float64
	BridgePath  string
	PagePath    string
}

// bootConfig is serialized into the document as the runtime boot object.
// html/template JSON-encodes it inside the script context, so the tags here
// are the field names the viewer runtime reads.
type bootConfig struct {
	SessionID   string  `json:"sessionId"`
	DocID       string  `json:"docId"`
	PageCount   int     `json:"pageCount"`
	InitialPage int     `json:"initialPage"`
	InitialZoom float64 `json:"initialZoom"`
	BridgePath  string  `json:"bridgePath"`
	PagePath    string  `json:"pagePath"`
	MountID     string  `json:"mountId"`
}

type documentData struct {
	Title    string
	MountID  string
	Style    template.CSS
	Behavior template.JS
	Boot     bootConfig
}

var documentTemplate = template.Must(template.New("viewer").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
{{.Style}}
</style>
</head>
<body>
<div id="{{.MountID}}"></div>
<script>window.__folioBoot = {{.Boot}};</script>
<script>
{{.Behavior}}
</script>
</body>
</html>
`))

// BuildDocument renders the self-contained viewer document from the loaded
// bundle: styles inlined in the head, behavior scripts in the body, session
// parameters as the boot object. Fails with ErrNotReady unless the bundle is
// loaded. Asset text is embedded verbatim; it was validated by Content-Type
// at fetch time.
func (b *Bundle) BuildDocument(p DocumentParams) (string, error) {
	b.mu.Lock()
	if b.state != BundleLoaded {
		b.mu.Unlock()
		return "", ErrNotReady
	}
	var styles, behaviors []string
	for _, s := range b.specs {
		c := b.content[s.Name]
		switch s.Kind {
		case KindStyle:
			styles = append(styles, c)
		case KindBehavior:
			behaviors = append(behaviors, c)
		}
	}
	b.mu.Unlock()

	title := p.Title
	if title == "" {
		title = defaultTitle
	}
	initialPage := p.InitialPage
	if initialPage < 1 {
		initialPage = 1
	}
	initialZoom := p.InitialZoom
	if initialZoom <= 0 {
		initialZoom = 1.0
	}

	data := documentData{
		Title:    title,
		MountID:  MountID,
		Style:    template.CSS(strings.Join(styles, "\n")),
		Behavior: template.JS(strings.Join(behaviors, "\n")),
		Boot: bootConfig{
			SessionID:   p.SessionID,
			DocID:       p.DocID,
			PageCount:   p.PageCount,
			InitialPage: initialPage,
			InitialZoom: initialZoom,
			BridgePath:  p.BridgePath,
			PagePath:    p.PagePath,
			MountID:     MountID,
		},
	}

	var out strings.Builder
	if err := documentTemplate.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render viewer document: %w", err)
	}
	return out.String(), nil
}

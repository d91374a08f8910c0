package web

import (
	_ "embed"
	"html/template"
	"io"

	"github.com/Layr-Labs/farbook-go/pkg/connectFlow"
)

//go:embed templates/page.html
var pageSource string

var pageTemplate = template.Must(template.New("page").Parse(pageSource))

type pageData struct {
	AppName string
	Flow    connectFlow.Snapshot
	// QRLink is the signer-add deep link. Its scheme is trusted.
	QRLink template.URL
	// Refresh reloads the page while the widget waits on a remote party
	Refresh bool
}

func renderPage(w io.Writer, appName string, snap connectFlow.Snapshot) error {
	return pageTemplate.Execute(w, pageData{
		AppName: appName,
		Flow:    snap,
		QRLink:  template.URL(snap.QRPayload),
		Refresh: snap.State == connectFlow.StateRequesting || snap.State == connectFlow.StateAwaitingApproval,
	})
}

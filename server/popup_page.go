package server

import (
	"html"
	"net/url"

	"github.com/jrsteele09/agentify-session/identity/localidp"
)

func popupResult(q url.Values) localidp.PopupResult {
	return localidp.PopupResult{
		Code:             q.Get("code"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
}

// popupPage is the minimal page left in the popup or redirect window
func popupPage(message string) string {
	return `<!doctype html>
<html>
<head><meta charset="utf-8"><title>Agentify</title></head>
<body>
<p>` + html.EscapeString(message) + `</p>
<script>if (window.opener) { window.close(); }</script>
</body>
</html>`
}

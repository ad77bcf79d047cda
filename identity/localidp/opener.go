package localidp

import (
	"github.com/pkg/browser"
	"github.com/rs/zerolog/log"
)

// Opener shows the provider's authorization page to the user
type Opener interface {
	Open(url string) error
}

// OpenerFunc adapts a function to Opener
type OpenerFunc func(url string) error

func (f OpenerFunc) Open(url string) error {
	return f(url)
}

// BrowserOpener opens the page in the operator's default browser
type BrowserOpener struct{}

func (BrowserOpener) Open(url string) error {
	log.Info().Str("url", url).Msg("opening provider sign-in page")
	return browser.OpenURL(url)
}

// LogOpener only logs the page for the operator to open by hand
type LogOpener struct{}

func (LogOpener) Open(url string) error {
	log.Warn().Str("url", url).Msg("open this URL to continue signing in")
	return nil
}

package server

import "fmt"

// ANSI colours for DEV console route and request logs
const (
	ansiRed     = "\033[31m"
	ansiGreen   = "\033[32m"
	ansiYellow  = "\033[33m"
	ansiBlue    = "\033[34m"
	ansiMagenta = "\033[35m"
	ansiCyan    = "\033[36m"
	ansiGray    = "\033[90m"
	ansiReset   = "\033[0m"
)

var methodColors = map[string]string{
	"GET":    ansiGreen,
	"POST":   ansiBlue,
	"PUT":    ansiCyan,
	"DELETE": ansiYellow,
	"PATCH":  ansiMagenta,
}

// paintMethod pads method to a fixed width and colours it; unknown or
// empty methods (catch-all patterns) are gray.
func paintMethod(method string) string {
	color, ok := methodColors[method]
	if !ok {
		color = ansiGray
	}
	return color + fmt.Sprintf(" %-7s", method) + ansiReset
}

func paintStatus(status int) string {
	color := ansiGreen
	switch {
	case status >= 500:
		color = ansiRed
	case status >= 400:
		color = ansiYellow
	}
	return fmt.Sprintf("%s%d%s", color, status, ansiReset)
}

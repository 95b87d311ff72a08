package version

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Version holds the current build version. Override with
// -ldflags "-X github.com/audioscribe/internal/version.Version=v1.2.3".
var Version = "dev"

const (
	separator = "────────────────────────────────────────────────────────────"
	banner    = `
                   _  _                          _  _
  __ _  _   _   __| |(_)  ___   ___   ___  _ __ (_)| |__    ___
 / _' || | | | / _' || | / _ \ / __| / __|| '__|| || '_ \  / _ \
| (_| || |_| || (_| || || (_) |\__ \| (__ | |   | || |_) ||  __/
 \__,_| \__,_| \__,_||_| \___/ |___/ \___||_|   |_||_.__/  \___|
`
)

// Banner returns the ASCII-art project banner.
func Banner() string {
	return strings.Trim(banner, "\n")
}

// PrintBanner writes the decorated banner and version info to w (stdout if nil).
func PrintBanner(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, separator)
	fmt.Fprintln(w, Banner())
	fmt.Fprintf(w, "\n  audioscribe %s\n", Version)
	fmt.Fprintf(w, "  Transcription Job Orchestration Service\n")
	fmt.Fprintln(w, separator)
	fmt.Fprintln(w)
}

package utils

import (
	"os"

	"github.com/fatih/color"
)

// Notify prints a loud operator notice to stderr. Used for conditions
// that must not scroll past unseen even in unattended runs, such as a
// rollback that left residue.
func Notify(title, message string) {
	c := color.New(color.FgRed, color.Bold)
	_, _ = c.Fprintf(os.Stderr, "!! %s\n", title)
	_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "   %s\n", message)
}

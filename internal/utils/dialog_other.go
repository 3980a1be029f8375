//go:build !windows

package utils

import (
	"errors"
	"fmt"
	"os"
)

var ErrDialogUnsupported = errors.New("native dialogs are only available on windows")

type FileDialogFilter struct {
	Name    string
	Pattern string
}

// ShowDialog prints the message to stderr, there is no native message box here.
func ShowDialog(title, message string) {
	fmt.Fprintf(os.Stderr, "[%s] %s\n", title, message)
}

func BrowseForFile(title string, filters []FileDialogFilter, initialDir string, defaultExt string) (string, error) {
	return "", ErrDialogUnsupported
}

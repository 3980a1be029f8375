//go:build !windows

package secrets

import "errors"

func openDPAPI(string) (Store, error) {
	return nil, errors.New("secrets: the dpapi backend is only available on windows")
}

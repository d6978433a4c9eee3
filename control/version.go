package control

import "github.com/dpkg-go/dpkgcore/version"

func parseVersionField(s string) (version.Version, error) {
	return version.Parse(s)
}

// Package platform maps the running process onto the architecture names used
// throughout build metadata. Build tooling names architectures the RPM way
// (x86_64, aarch64), not the Go way (amd64, arm64).
package platform

import "runtime"

// BaseArch returns the basearch of the current process. Callers compute this
// once at startup and thread it through explicitly; nothing in the store
// consults it implicitly.
func BaseArch() string {
	return baseArchFor(runtime.GOARCH)
}

func baseArchFor(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "ppc64le":
		return "ppc64le"
	case "s390x":
		return "s390x"
	default:
		return goarch
	}
}

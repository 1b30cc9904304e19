package hardware

import (
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/Masterminds/semver"
)

const (
	// EV3DEV_RELEASE is the ev3dev distribution versions this package has
	// been exercised against. Older images lack the by-path input links and
	// use the legacy port naming.
	EV3DEV_RELEASE = "^2.2"

	osReleasePath = "/proc/sys/kernel/osrelease"
)

// CheckRelease reads the running kernel release and verifies it carries a
// compatible ev3dev version. Device constructors call this before touching
// sysfs so a bad image fails loudly instead of half working.
func CheckRelease() (err error) {
	data, err := ioutil.ReadFile(osReleasePath)
	if err != nil {
		return fmt.Errorf("unable to read kernel release: %v", err)
	}

	return checkRelease(strings.TrimSpace(string(data)))
}

// checkRelease validates a kernel release string of the form
// 4.14.117-ev3dev-2.3.4-ev3.
func checkRelease(release string) (err error) {
	parts := strings.SplitN(release, "-ev3dev-", 2)
	if len(parts) != 2 {
		return fmt.Errorf("unable to use kernel '%s': not an ev3dev kernel", release)
	}

	versionString := strings.SplitN(parts[1], "-", 2)[0]
	semVer, err := semver.NewVersion(versionString)
	if err != nil {
		return fmt.Errorf("unable to parse ev3dev version '%s': %v", versionString, err)
	}

	semVerConstraint, err := semver.NewConstraint(EV3DEV_RELEASE)
	if err != nil {
		return
	}

	if !semVerConstraint.Check(semVer) {
		err = fmt.Errorf("unable to use ev3dev release %s - require %s", versionString, EV3DEV_RELEASE)
	}

	return
}

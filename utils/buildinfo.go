package utils

import "fmt"

var BuildVersion string
var BuildRelease string
var Buildtime string

// GetBuildVersion returns the release name and git revision set at link time.
func GetBuildVersion() string {
	if BuildRelease == "" {
		return fmt.Sprintf("git-%v", BuildVersion)
	}
	return fmt.Sprintf("%v (git-%v)", BuildRelease, BuildVersion)
}

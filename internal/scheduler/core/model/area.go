package model

// Area is an inspection area of an installation.
type Area struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	InstallationCode string `json:"installationCode"`

	// SafePositions are poses a robot can retreat to when interrupted.
	SafePositions []Pose `json:"safePositions"`
}

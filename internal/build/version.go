package build

var Commit string

var Version = "0.3.0"

func GetVersion() string {
	basicVersion := "v" + Version

	if Commit == "" {
		return basicVersion
	}

	return basicVersion + "-" + Commit
}

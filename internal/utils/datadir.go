package utils

import (
	"os"
	"path"
	"runtime"
	"strings"
)

const dataFolder = "swapharness"

func ExpandDefaultPath(dataDir string, currentValue string, defaultFileName string) string {
	if currentValue == "" {
		return path.Join(dataDir, defaultFileName)
	}

	return currentValue
}

func ExpandHomeDir(file string) string {
	if !strings.HasPrefix(file, "~") {
		return file
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return file
	}

	return path.Join(homeDir, strings.TrimPrefix(file, "~"))
}

func GetDefaultDataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	folder := dataFolder
	if runtime.GOOS != "windows" {
		folder = "." + folder
	}

	return path.Join(homeDir, folder), nil
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

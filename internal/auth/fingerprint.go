package auth

import (
	"encoding/json"
	"os"
	"runtime"
)

// fingerprint describes the device requesting a login. The vault binds
// browser sessions to it so a stolen callback code cannot be replayed
// from another machine.
type fingerprint struct {
	OS       string `json:"os"`
	Arch     string `json:"arch"`
	Hostname string `json:"hostname"`
	SDK      string `json:"sdk"`
}

func deviceFingerprint() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	fp := fingerprint{
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		Hostname: hostname,
		SDK:      "ikv-secrets",
	}

	data, err := json.Marshal(fp)
	if err != nil {
		return "{}"
	}
	return string(data)
}

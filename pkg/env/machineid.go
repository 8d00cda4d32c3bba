package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// sourceURILen is the room for the source URI in an MD header.
const sourceURILen = 32

// MachineID retrieves the unique ID identifying the machine, or the host
// name when the platform does not provide one.
func MachineID() string {
	id, err := machineid.ID()
	if err == nil && id != "" {
		return id
	}
	glog.V(2).Infof("machine id unavailable: %v", err)
	host, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return host
}

// SourceURIFor builds the source URI advertised in MD headers for a
// machine ID.
func SourceURIFor(id string) string {
	uri := "trdp@" + id
	if len(uri) > sourceURILen {
		uri = uri[:sourceURILen]
	}
	return uri
}

package deb

import (
	"encoding/json"
	"fmt"
)

// Listener is a callback function that receives events during the build process.
type Listener func(fmt.Stringer)

func jsonString(v interface{}) string {
	b, _ := json.Marshal(map[string]interface{}{
		fmt.Sprintf("%T", v): v,
	})
	return string(b)
}

// EventStage is emitted when a packaging run enters a new stage.
type EventStage struct {
	Stage Stage `json:"stage"`
}

func (e EventStage) String() string { return jsonString(e) }

// EventArtifactStaged is emitted when a compressed tarball is written in the scratch tree.
type EventArtifactStaged struct {
	Name string `json:"name,omitempty"`
	Size int64  `json:"size"`
}

func (e EventArtifactStaged) String() string { return jsonString(e) }

// EventMemberWritten is emitted when a member is appended to the package archive.
type EventMemberWritten struct {
	Member string `json:"member,omitempty"`
	Size   int64  `json:"size"`
}

func (e EventMemberWritten) String() string { return jsonString(e) }

// EventPackageWritten is emitted once the package file is in place.
type EventPackageWritten struct {
	Path         string `json:"path,omitempty"`
	Package      string `json:"package,omitempty"`
	Version      string `json:"version,omitempty"`
	Architecture string `json:"architecture,omitempty"`
	Size         int64  `json:"size"`
}

func (e EventPackageWritten) String() string { return jsonString(e) }

package docker

import (
	"net/url"
)

// Method is an HTTP request method understood by the Engine API
type Method int

const (
	MethodGet Method = iota
	MethodPost
	MethodPut
	MethodDelete
)

func (m Method) String() string {
	switch m {
	case MethodPost:
		return "POST"
	case MethodPut:
		return "PUT"
	case MethodDelete:
		return "DELETE"
	default:
		return "GET"
	}
}

// Operation is a logical Engine API action
type Operation int

const (
	OpVersion Operation = iota
	OpInfo
	OpContainerList
	OpContainerInspect
	OpVolumeList
	OpVolumeInspect
	OpImageList
	OpNetworkList
	OpPing
)

var operationNames = map[Operation]string{
	OpVersion:          "version",
	OpInfo:             "info",
	OpContainerList:    "container_list",
	OpContainerInspect: "container_inspect",
	OpVolumeList:       "volume_list",
	OpVolumeInspect:    "volume_inspect",
	OpImageList:        "image_list",
	OpNetworkList:      "network_list",
	OpPing:             "ping",
}

// String returns the name used in logs and metric labels
func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return "unknown"
}

// AcceptsQuery reports whether the operation is a list route that takes a query string
func (o Operation) AcceptsQuery() bool {
	switch o {
	case OpContainerList, OpVolumeList, OpImageList, OpNetworkList:
		return true
	}
	return false
}

// Endpoint is an operation together with its optional path parameter
type Endpoint struct {
	Op    Operation
	Param string
}

// Version and the other constructors below build the endpoints of the catalog.
func Version() Endpoint                   { return Endpoint{Op: OpVersion} }
func Info() Endpoint                      { return Endpoint{Op: OpInfo} }
func ContainerList() Endpoint             { return Endpoint{Op: OpContainerList} }
func ContainerInspect(id string) Endpoint { return Endpoint{Op: OpContainerInspect, Param: id} }
func VolumeList() Endpoint                { return Endpoint{Op: OpVolumeList} }
func VolumeInspect(name string) Endpoint  { return Endpoint{Op: OpVolumeInspect, Param: name} }
func ImageList() Endpoint                 { return Endpoint{Op: OpImageList} }
func NetworkList() Endpoint               { return Endpoint{Op: OpNetworkList} }
func Ping() Endpoint                      { return Endpoint{Op: OpPing} }

// Path returns the request path without a leading slash. The parameter is
// percent-encoded so ids containing '/', '?' or spaces cannot break the
// request line.
func (e Endpoint) Path() string {
	switch e.Op {
	case OpVersion:
		return "version"
	case OpInfo:
		return "info"
	case OpContainerList:
		return "containers/json"
	case OpContainerInspect:
		return "containers/" + url.PathEscape(e.Param) + "/json"
	case OpVolumeList:
		return "volumes"
	case OpVolumeInspect:
		return "volumes/" + url.PathEscape(e.Param)
	case OpImageList:
		return "images/json"
	case OpNetworkList:
		return "networks"
	case OpPing:
		return "_ping"
	}
	return ""
}

func (e Endpoint) String() string {
	if e.Param != "" {
		return e.Op.String() + "(" + e.Param + ")"
	}
	return e.Op.String()
}

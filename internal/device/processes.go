package device

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/muurk/iotctl/internal/transport"
)

// Process describes one running process as reported by Device Portal
type Process struct {
	ImageName         string  `json:"ImageName"`
	ProcessID         int     `json:"ProcessId"`
	UserName          string  `json:"UserName"`
	AppName           string  `json:"AppName,omitempty"`
	PackageFullName   string  `json:"PackageFullName,omitempty"`
	Publisher         string  `json:"Publisher,omitempty"`
	CPUUsage          float64 `json:"CPUUsage"`
	PrivateWorkingSet uint64  `json:"PrivateWorkingSet"`
	WorkingSetSize    uint64  `json:"WorkingSetSize"`
	VirtualSize       uint64  `json:"VirtualSize"`
	PageFileUsage     uint64  `json:"PageFileUsage"`
	TotalCommit       uint64  `json:"TotalCommit"`
	SessionID         int     `json:"SessionId"`
	IsRunning         bool    `json:"IsRunning"`
}

// String returns a one-line summary of the process
func (p Process) String() string {
	return fmt.Sprintf("%s (pid %d, %.1f%% cpu)", p.ImageName, p.ProcessID, p.CPUUsage)
}

// IsPackaged reports whether the process belongs to an installed app package
func (p Process) IsPackaged() bool {
	return p.PackageFullName != ""
}

// processList is the envelope Device Portal wraps process arrays in, both
// for the REST endpoint and for each websocket frame
type processList struct {
	Processes []Process `json:"Processes"`
}

// ProcessProvider retrieves the process list through a ready transport
type ProcessProvider interface {
	Processes(ctx context.Context, t transport.Transport) ([]Process, error)
}

// PortalProcessProvider reads the Device Portal resource manager endpoint
type PortalProcessProvider struct {
	// Path overrides ProcessesPath when set
	Path string
}

// Processes implements ProcessProvider
func (p PortalProcessProvider) Processes(ctx context.Context, t transport.Transport) ([]Process, error) {
	path := p.Path
	if path == "" {
		path = ProcessesPath
	}

	resp, err := t.Get(ctx, path)
	if err != nil {
		return nil, NewNetworkError("process list request failed", err, "")
	}
	if !resp.Success() {
		return nil, NewHTTPError(resp.StatusCode, "process list request rejected", "")
	}

	return ParseProcesses(resp.Body)
}

// ParseProcesses decodes a Device Portal process list document
func ParseProcesses(data []byte) ([]Process, error) {
	var list processList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, NewParseError("failed to parse process list", err)
	}
	if list.Processes == nil {
		return []Process{}, nil
	}
	return list.Processes, nil
}

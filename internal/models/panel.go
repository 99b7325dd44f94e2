package models

// PanelStatus holds the effective settings recovered from the panel's own
// status output. Found flags distinguish a parsed value from its zero value,
// since the panel's output format is not under this project's control.
type PanelStatus struct {
	Port          int
	PortFound     bool
	BasePath      string
	BasePathFound bool
}

// RunResult summarizes a completed provisioning run.
type RunResult struct {
	Skipped bool // healthy install found, nothing done
	Port    int
	Path    string
	Address string
}

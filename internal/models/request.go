// Package models contains the data structures used throughout xui-install.
package models

// InstallRequest holds the fully resolved, validated input for one
// provisioning run. It is constructed once by the resolver and passed
// explicitly to every step; no step reads ambient state.
type InstallRequest struct {
	PanelUsername  string
	PanelPassword  string
	SystemUsername string
	SystemPassword string
	PanelPath      string // normalized base path, "/" for root
	PanelPort      int
	Version        string // release tag, empty means latest
	Force          bool
	DryRun         bool
}

// FileConfig holds optional defaults read from a config file or the
// environment. Values are raw strings; validation happens in the resolver
// after merging with the command line.
type FileConfig struct {
	PanelUsername  string
	PanelPassword  string
	PanelPort      string
	PanelPath      string
	SystemUsername string
	SystemPassword string
	Version        string
}

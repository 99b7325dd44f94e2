// Package config resolves command line flags, config file defaults and
// environment variables into a validated install request.
package config

import (
	"fmt"
	"strings"

	"github.com/nvoss/xui-install/internal/models"
	"github.com/spf13/viper"
)

// Parser reads optional defaults from a YAML file and XUI_INSTALL_*
// environment variables. Explicit command line flags always win; the merge
// happens in the command layer before resolution.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new defaults parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("XUI_INSTALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Parser{v: v}
}

// LoadFile loads defaults from a file path.
func (p *Parser) LoadFile(path string) (*models.FileConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: reading config file: %v", models.ErrConfiguration, err)
	}

	return p.parse(), nil
}

// LoadReader loads defaults from inline YAML (useful for testing).
func (p *Parser) LoadReader(content string) (*models.FileConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("%w: reading config: %v", models.ErrConfiguration, err)
	}

	return p.parse(), nil
}

// Env returns defaults taken from the environment only.
func (p *Parser) Env() *models.FileConfig {
	return p.parse()
}

func (p *Parser) parse() *models.FileConfig {
	return &models.FileConfig{
		PanelUsername:  p.v.GetString("panel.username"),
		PanelPassword:  p.v.GetString("panel.password"),
		PanelPort:      p.v.GetString("panel.port"),
		PanelPath:      p.v.GetString("panel.path"),
		SystemUsername: p.v.GetString("system.username"),
		SystemPassword: p.v.GetString("system.password"),
		Version:        p.v.GetString("version"),
	}
}

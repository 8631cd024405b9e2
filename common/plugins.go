package common

import (
	"github.com/sirupsen/logrus"
)

var (
	Plugins []Plugin
)

type PluginCategory struct {
	Name string
}

var (
	PluginCategoryCore        = &PluginCategory{Name: "Core"}
	PluginCategoryCommunities = &PluginCategory{Name: "Communities"}
	PluginCategoryEvents      = &PluginCategory{Name: "Events"}
	PluginCategoryModeration  = &PluginCategory{Name: "Moderation"}
	PluginCategoryMisc        = &PluginCategory{Name: "Misc"}
)

type PluginInfo struct {
	Name     string // Human readable name of the plugin
	SysName  string // snake_case version of the name in lower case
	Category *PluginCategory
}

// Plugin is implemented by all plugins at a bare minimum
type Plugin interface {
	PluginInfo() *PluginInfo
}

// RegisterPlugin registers a plugin, should only be called during startup
func RegisterPlugin(plugin Plugin) {
	Plugins = append(Plugins, plugin)
	logrus.Info("Registered plugin: " + plugin.PluginInfo().Name)
}

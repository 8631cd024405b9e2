package common

import (
	"github.com/sirupsen/logrus"
)

// GetPluginLogger returns a logrus entry tagged with the plugin's sysname,
// typically assigned to a package level "logger" var.
func GetPluginLogger(plugin Plugin) *logrus.Entry {
	return logrus.WithField("p", plugin.PluginInfo().SysName)
}

// GetFixedPrefixLogger is GetPluginLogger for packages that aren't plugins.
func GetFixedPrefixLogger(prefix string) *logrus.Entry {
	return logrus.WithField("p", prefix)
}

func AddLogHook(hook logrus.Hook) {
	logrus.AddHook(hook)
}

func SetLogFormatter(formatter logrus.Formatter) {
	logrus.SetFormatter(formatter)
}

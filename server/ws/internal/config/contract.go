// SPDX-License-Identifier: MIT

package config

import stdlibtime "time"

type (
	Config struct {
		// CertPath and KeyPath enable TLS when both are set. Left empty, the
		// server listens on plain TCP, which tests rely on.
		CertPath     string              `yaml:"certPath" mapstructure:"certPath"`
		KeyPath      string              `yaml:"keyPath" mapstructure:"keyPath"`
		Port         uint16              `yaml:"port" mapstructure:"port"`
		WriteTimeout stdlibtime.Duration `yaml:"writeTimeout" mapstructure:"writeTimeout"`
		ReadTimeout  stdlibtime.Duration `yaml:"readTimeout" mapstructure:"readTimeout"`
	}
)

// Package config defines CLI-wide settings for the bincache tool and
// provides helpers to load, validate and save them in YAML format.
//
// The Config type holds the asset host, logging level and download
// timeout. All fields have working defaults, so the tool runs without
// a settings file present.
package config

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the runtimed daemon configuration.
//
// Configuration comes from exactly one YAML file, named either by the
// --config flag or the RUNTIMED_CONFIG environment variable. There is
// no search path and no per-field environment override; the file is
// the single source of truth. The only expansion performed is
// ${VAR} and ${VAR:-default} in path fields, so one file works across
// home directories.
//
// A file may carry a development or production section whose values
// replace the base values when the environment matches:
//
//	environment: production
//	paths:
//	  runtime_dir: ${HOME}/.local/share/jupyter/runtime
//	production:
//	  session:
//	    heartbeat_interval: 2s
package config

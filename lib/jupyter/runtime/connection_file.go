// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonschema"

	"github.com/bureau-foundation/runtimed/lib/secret"
)

//go:embed connection.schema.json
var connectionSchemaJSON []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func connectionSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonschema.NewCompiler().Compile(connectionSchemaJSON)
	})
	return compiledSchema, schemaErr
}

// connectionFile is the on-disk JSON shape.
type connectionFile struct {
	ShellPort       int    `json:"shell_port"`
	IOPubPort       int    `json:"iopub_port"`
	StdinPort       int    `json:"stdin_port"`
	ControlPort     int    `json:"control_port"`
	HBPort          int    `json:"hb_port"`
	KernelName      string `json:"kernel_name"`
	IP              string `json:"ip"`
	Key             string `json:"key"`
	Transport       string `json:"transport"`
	SignatureScheme string `json:"signature_scheme"`
}

// ParseConnectionFile reads and validates the connection file at path.
func ParseConnectionFile(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("runtime: reading %s: %w", path, err)
	}
	descriptor, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("runtime: %s: %w", path, err)
	}
	descriptor.ConnectionFile = path
	if id, ok := idFromFileName(path); ok {
		descriptor.ID = id
	}
	return descriptor, nil
}

// Parse validates connection-file JSON and returns a descriptor with a
// generated ID and no provenance path.
func Parse(data []byte) (*Descriptor, error) {
	schema, err := connectionSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling connection schema: %w", err)
	}
	if result := schema.ValidateJSON(data); !result.IsValid() {
		return nil, fmt.Errorf("invalid connection file: %v", result.Errors)
	}

	var file connectionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding connection file: %w", err)
	}
	ports := map[int]string{}
	for name, port := range map[string]int{
		"shell_port":   file.ShellPort,
		"iopub_port":   file.IOPubPort,
		"stdin_port":   file.StdinPort,
		"control_port": file.ControlPort,
		"hb_port":      file.HBPort,
	} {
		if other, taken := ports[port]; taken {
			first, second := other, name
			if second < first {
				first, second = second, first
			}
			return nil, fmt.Errorf("%s and %s share port %d", first, second, port)
		}
		ports[port] = name
	}

	descriptor := &Descriptor{
		ID:              uuid.NewString(),
		Transport:       file.Transport,
		IP:              file.IP,
		KernelName:      file.KernelName,
		ShellPort:       file.ShellPort,
		IOPubPort:       file.IOPubPort,
		StdinPort:       file.StdinPort,
		ControlPort:     file.ControlPort,
		HBPort:          file.HBPort,
		SignatureScheme: file.SignatureScheme,
	}
	if file.Key != "" {
		key, err := secret.NewFromBytes([]byte(file.Key))
		if err != nil {
			return nil, fmt.Errorf("storing signing key: %w", err)
		}
		descriptor.Key = key
	}
	return descriptor, nil
}

// idFromFileName extracts <id> from kernel-<id>.json.
func idFromFileName(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "kernel-") || !strings.HasSuffix(base, ".json") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(base, "kernel-"), ".json")
	return id, id != ""
}

// Discover parses every kernel-*.json file in dir, sorted by path.
// Files that cannot be read or fail validation are skipped with a
// warning. A missing directory yields no descriptors.
func Discover(dir string, logger *slog.Logger) ([]*Descriptor, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	paths, err := filepath.Glob(filepath.Join(dir, "kernel-*.json"))
	if err != nil {
		return nil, fmt.Errorf("runtime: scanning %s: %w", dir, err)
	}
	sort.Strings(paths)

	descriptors := make([]*Descriptor, 0, len(paths))
	for _, path := range paths {
		descriptor, err := ParseConnectionFile(path)
		if err != nil {
			logger.Warn("skipping connection file", "path", path, "error", err)
			continue
		}
		descriptors = append(descriptors, descriptor)
	}
	return descriptors, nil
}

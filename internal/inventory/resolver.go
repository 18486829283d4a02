// Package inventory resolves per-host connection variables by shelling out to
// ansible-inventory.
//
// Inventory files are never parsed here. ansible-inventory already understands
// every inventory format, plugin and group_vars layout, so the resolver only
// runs it and decodes the JSON it prints:
//
//	ansible-inventory [-i PATH] --host HOST   → {"ansible_host": "...", ...}
//	ansible-inventory [-i PATH] --list        → {"_meta": {"hostvars": {...}}, ...}
//
// An empty inventory path omits -i so the tool's own default (ansible.cfg,
// ANSIBLE_INVENTORY) applies.
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/treykane/ansible-ssh/internal/security"
)

// DefaultBinary is the inventory tool looked up on PATH.
const DefaultBinary = "ansible-inventory"

// unknownHostMarker is the fragment ansible-inventory prints when --host names
// a host that is not in the inventory.
const unknownHostMarker = "single valid host"

// Resolver runs the inventory tool. The zero value uses DefaultBinary.
type Resolver struct {
	Binary string
}

// New creates a resolver for the given binary name or path.
func New(binary string) *Resolver {
	return &Resolver{Binary: binary}
}

func (r *Resolver) binary() string {
	if r == nil || strings.TrimSpace(r.Binary) == "" {
		return DefaultBinary
	}
	return r.Binary
}

// HostVars returns the variable set for host.
func (r *Resolver) HostVars(ctx context.Context, inventoryPath, host string) (Vars, error) {
	if strings.TrimSpace(host) == "" {
		return nil, security.Usage("a host name is required")
	}
	out, err := r.run(ctx, inventoryPath, "--host", host)
	if err != nil {
		return nil, err
	}
	raw := map[string]any{}
	if err := decode(out, &raw); err != nil {
		return nil, security.ExternalTool(
			fmt.Sprintf("error parsing JSON from %s: %v", r.binary(), err), string(out), err)
	}
	if len(raw) == 0 {
		return nil, security.Config(
			fmt.Sprintf("No host information found for '%s' in inventory '%s'.", host, displayInventory(inventoryPath)), nil)
	}
	return flatten(raw), nil
}

// List returns the variables of every host in the inventory.
func (r *Resolver) List(ctx context.Context, inventoryPath string) (Listing, error) {
	out, err := r.run(ctx, inventoryPath, "--list")
	if err != nil {
		return nil, err
	}
	var doc struct {
		Meta struct {
			HostVars map[string]map[string]any `json:"hostvars"`
		} `json:"_meta"`
	}
	if err := decode(out, &doc); err != nil {
		return nil, security.ExternalTool(
			fmt.Sprintf("error parsing JSON from %s: %v", r.binary(), err), string(out), err)
	}
	listing := make(Listing, len(doc.Meta.HostVars))
	for host, raw := range doc.Meta.HostVars {
		listing[host] = flatten(raw)
	}
	return listing, nil
}

func (r *Resolver) run(ctx context.Context, inventoryPath string, args ...string) ([]byte, error) {
	if err := CheckPath(inventoryPath); err != nil {
		return nil, err
	}
	bin := r.binary()
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, security.ExternalTool(
			fmt.Sprintf("%s not found in PATH; install ansible-core", bin), err.Error(), err)
	}

	argv := make([]string, 0, len(args)+2)
	if inventoryPath != "" {
		argv = append(argv, "-i", inventoryPath)
	}
	argv = append(argv, args...)
	slog.Debug("running inventory tool", "binary", path, "args", argv)

	cmd := exec.CommandContext(ctx, path, argv...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(msg, unknownHostMarker) {
			return nil, security.Config(
				fmt.Sprintf("host not found in inventory '%s':\n%s", displayInventory(inventoryPath), msg), err)
		}
		return nil, security.ExternalTool(
			fmt.Sprintf("Error running %s:\n%s", bin, msg), err.Error(), err)
	}
	return stdout.Bytes(), nil
}

// CheckPath verifies that a non-empty inventory path exists. Directories are
// accepted since ansible treats them as inventory sources too.
func CheckPath(inventoryPath string) error {
	if inventoryPath == "" {
		return nil
	}
	if _, err := os.Stat(inventoryPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return security.Config(fmt.Sprintf("Inventory file '%s' does not exist.", inventoryPath), err)
		}
		return security.Config(fmt.Sprintf("cannot access inventory '%s'", inventoryPath), err)
	}
	return nil
}

func decode(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec.Decode(v)
}

func displayInventory(p string) string {
	if p == "" {
		return "(default)"
	}
	return p
}

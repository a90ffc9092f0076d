package hcl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/sweeptrack/internal/config"
	"github.com/vk/sweeptrack/internal/ctxlog"
	"github.com/vk/sweeptrack/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
)

// defaultsKey is the primary-file attribute that selects group options.
const defaultsKey = "defaults"

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	dir  string
	name string
}

// NewLoader creates a loader for <dir>/<name>.hcl.
func NewLoader(dir, name string) *Loader {
	return &Loader{dir: dir, name: strings.TrimSuffix(name, ".hcl")}
}

// Resolve composes the configuration for one job. Every call parses the
// files again so that concurrent jobs never share state.
func (l *Loader) Resolve(ctx context.Context, overrides []config.Override) (*config.Resolved, error) {
	logger := ctxlog.FromContext(ctx)
	parser := hclparse.NewParser()

	primaryPath := filepath.Join(l.dir, l.name+".hcl")
	primary, err := readTree(parser, primaryPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("Primary config parsed.", "path", primaryPath)

	groups, err := selections(primary)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", primaryPath, err)
	}
	if primary.Has(defaultsKey) {
		if primary, err = primary.Without(defaultsKey); err != nil {
			return nil, err
		}
	}

	remaining := make([]config.Override, 0, len(overrides))
	for _, o := range overrides {
		if l.selectsGroup(o, groups) {
			switch o.Op {
			case config.OpDelete:
				delete(groups, o.Key)
			default:
				groups[o.Key] = strings.TrimSpace(o.Value)
			}
			logger.Debug("Group selection overridden.", "override", o.String())
			continue
		}
		remaining = append(remaining, o)
	}

	tree := config.EmptyTree()
	for _, group := range sortedGroups(groups) {
		option := groups[group]
		path := filepath.Join(l.dir, group, option+".hcl")
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, l.missingOption(group, option)
		}
		content, err := readTree(parser, path)
		if err != nil {
			return nil, fmt.Errorf("group '%s' option '%s': %w", group, option, err)
		}
		if tree, err = tree.With(group, content.Value()); err != nil {
			return nil, err
		}
		logger.Debug("Group composed.", "group", group, "option", option)
	}
	tree = tree.Merge(primary)

	for _, o := range remaining {
		if tree, err = apply(tree, o); err != nil {
			return nil, err
		}
	}

	train, err := config.DecodeTrain(tree)
	if err != nil {
		return nil, err
	}
	logger.Debug("Config resolved.", "keys", len(tree.Keys()), "overrides", len(overrides))
	return &config.Resolved{Tree: tree, Train: train, Overrides: overrides}, nil
}

// selectsGroup reports whether an override picks an option rather than
// changing a value: its key is a single segment naming a known group, or,
// for additions, a directory under the config dir.
func (l *Loader) selectsGroup(o config.Override, groups map[string]string) bool {
	if strings.Contains(o.Key, ".") {
		return false
	}
	if _, ok := groups[o.Key]; ok {
		return o.Op != config.OpAdd
	}
	if o.Op != config.OpAdd {
		return false
	}
	info, err := os.Stat(filepath.Join(l.dir, o.Key))
	return err == nil && info.IsDir()
}

// missingOption reports an unknown group option with the options available.
func (l *Loader) missingOption(group, option string) error {
	available, err := fsutil.FindFilesByExtension(filepath.Join(l.dir, group), ".hcl")
	if err != nil || len(available) == 0 {
		return fmt.Errorf("could not find option '%s' for group '%s': no options in %s", option, group, filepath.Join(l.dir, group))
	}
	return fmt.Errorf("could not find option '%s' for group '%s'; available options: %s", option, group, strings.Join(available, ", "))
}

func apply(tree config.Tree, o config.Override) (config.Tree, error) {
	switch o.Op {
	case config.OpDelete:
		return tree.Without(o.Key)
	case config.OpAdd:
		if tree.Has(o.Key) {
			return config.Tree{}, fmt.Errorf("could not add '%s': key already in config, use '%s=%s' to override it", o.Key, o.Key, o.Value)
		}
		return tree.With(o.Key, config.ParseValue(o.Value))
	default:
		if !tree.Has(o.Key) {
			return config.Tree{}, fmt.Errorf("could not override '%s': key not in config, use '+%s=%s' to add it", o.Key, o.Key, o.Value)
		}
		return tree.With(o.Key, config.ParseValue(o.Value))
	}
}

// readTree parses an HCL file whose body holds attributes only.
func readTree(parser *hclparse.Parser, path string) (config.Tree, error) {
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return config.Tree{}, fmt.Errorf("failed to parse config file %s: %w", path, diags)
	}
	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return config.Tree{}, fmt.Errorf("failed to read config file %s: %w", path, diags)
	}

	values := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return config.Tree{}, fmt.Errorf("failed to evaluate '%s' in %s: %w", name, path, diags)
		}
		values[name] = val
	}
	if len(values) == 0 {
		return config.EmptyTree(), nil
	}
	return config.NewTree(cty.ObjectVal(values))
}

// selections reads the group → option mapping from the defaults attribute.
func selections(primary config.Tree) (map[string]string, error) {
	groups := make(map[string]string)
	val, ok := primary.Get(defaultsKey)
	if !ok || val.IsNull() {
		return groups, nil
	}
	ty := val.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("'%s' must be a mapping of group to option", defaultsKey)
	}
	for group, option := range val.AsValueMap() {
		if option.IsNull() {
			continue
		}
		if option.Type() != cty.String {
			return nil, fmt.Errorf("'%s.%s' must be a string, got %s", defaultsKey, group, option.Type().FriendlyName())
		}
		groups[group] = option.AsString()
	}
	return groups, nil
}

func sortedGroups(groups map[string]string) []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Package preset loads named collision settings and emitter shapes from
// YAML files.
package preset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"collision-server/internal/action"
	"collision-server/internal/geom"
	"collision-server/internal/spatial"
)

var (
	ErrUnknownPreset = errors.New("preset: unknown preset")
	ErrInvalidPreset = errors.New("preset: invalid preset")
)

// File is the top level of a preset YAML document.
type File struct {
	Presets []Settings `yaml:"presets"`
}

// Settings is a reusable collision action configuration.
type Settings struct {
	Name                          string     `yaml:"name"`
	Layers                        []int      `yaml:"layers"`
	UseTagFilter                  bool       `yaml:"use_tag_filter"`
	FilterMode                    string     `yaml:"filter_mode"`
	FilterTags                    []string   `yaml:"filter_tags"`
	ExecuteOnCollisionWithSpawner bool       `yaml:"execute_on_collision_with_spawner"`
	DestroyAfterAction            bool       `yaml:"destroy_after_action"`
	Shape                         *ShapeSpec `yaml:"shape"`
	Script                        string     `yaml:"script"`
	ScriptKind                    string     `yaml:"script_kind"`

	scriptSrc string
}

// ShapeSpec is the YAML form of a geom.Shape.
type ShapeSpec struct {
	Kind        string     `yaml:"kind"`
	Center      [3]float64 `yaml:"center"`
	Start       [3]float64 `yaml:"start"`
	End         [3]float64 `yaml:"end"`
	Radius      float64    `yaml:"radius"`
	HalfExtents [3]float64 `yaml:"half_extents"`
	Yaw         float64    `yaml:"yaw"` // degrees about +Y
	Origin      [3]float64 `yaml:"origin"`
	Direction   [3]float64 `yaml:"direction"`
	MaxDistance float64    `yaml:"max_distance"`
}

func vec(v [3]float64) mgl64.Vec3 { return mgl64.Vec3{v[0], v[1], v[2]} }

// Shape builds the geom.Shape described by s and validates it.
func (s ShapeSpec) Shape() (geom.Shape, error) {
	kind, err := geom.ParseKind(strings.ToLower(s.Kind))
	if err != nil {
		return geom.Shape{}, err
	}
	var shape geom.Shape
	switch kind {
	case geom.KindSphere:
		shape = geom.Sphere(vec(s.Center), s.Radius)
	case geom.KindCapsule:
		shape = geom.Capsule(vec(s.Start), vec(s.End), s.Radius)
	case geom.KindBox:
		rot := mgl64.QuatRotate(mgl64.DegToRad(s.Yaw), mgl64.Vec3{0, 1, 0})
		shape = geom.Box(vec(s.Center), vec(s.HalfExtents), rot)
	case geom.KindRay:
		shape = geom.Ray(vec(s.Origin), vec(s.Direction), s.MaxDistance)
	}
	if err := shape.Validate(); err != nil {
		return geom.Shape{}, err
	}
	return shape, nil
}

func (s *Settings) validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidPreset)
	}
	for _, l := range s.Layers {
		if l < 0 || l > int(spatial.MaxLayer) {
			return fmt.Errorf("%w: %q layer %d out of range", ErrInvalidPreset, s.Name, l)
		}
	}
	if s.FilterMode != "" {
		if _, err := action.ParseFilterMode(s.FilterMode); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidPreset, s.Name, err)
		}
	}
	if s.Shape != nil {
		if _, err := s.Shape.Shape(); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidPreset, s.Name, err)
		}
	}
	if _, err := s.scriptKind(); err != nil {
		return err
	}
	return nil
}

func (s *Settings) scriptKind() (action.Kind, error) {
	switch strings.ToLower(s.ScriptKind) {
	case "", "ability_target":
		return action.KindAbilityTarget, nil
	case "ability":
		return action.KindAbility, nil
	}
	return 0, fmt.Errorf("%w: %q script_kind %q", ErrInvalidPreset, s.Name, s.ScriptKind)
}

// LayerMask returns the mask for Layers; no layers means every layer.
func (s *Settings) LayerMask() spatial.LayerMask {
	if len(s.Layers) == 0 {
		return spatial.AllLayers
	}
	var m spatial.LayerMask
	for _, l := range s.Layers {
		m |= spatial.MaskOf(spatial.Layer(l))
	}
	return m
}

// Action builds a CollisionAction from the preset. When the preset names a
// script it is compiled and appended after targets.
func (s *Settings) Action(targets ...action.Reactive) (*action.CollisionAction, error) {
	mode := action.IncludeOnly
	if s.FilterMode != "" {
		m, err := action.ParseFilterMode(s.FilterMode)
		if err != nil {
			return nil, err
		}
		mode = m
	}
	a := &action.CollisionAction{
		Name:                          s.Name,
		LayerMask:                     s.LayerMask(),
		UseTagFilter:                  s.UseTagFilter,
		FilterMode:                    mode,
		FilterTags:                    slices.Clone(s.FilterTags),
		ExecuteOnCollisionWithSpawner: s.ExecuteOnCollisionWithSpawner,
		DestroyAfterAction:            s.DestroyAfterAction,
		Targets:                       slices.Clone(targets),
	}
	if s.scriptSrc != "" {
		kind, err := s.scriptKind()
		if err != nil {
			return nil, err
		}
		sc, err := action.NewScript(s.Name, s.scriptSrc, kind)
		if err != nil {
			return nil, err
		}
		a.Targets = append(a.Targets, sc)
	}
	return a, nil
}

// Library holds the presets loaded from a directory.
type Library struct {
	dir string

	mu      sync.RWMutex
	presets map[string]*Settings
	sources map[string][]string // file -> preset names
}

func NewLibrary(dir string) *Library {
	return &Library{
		dir:     dir,
		presets: make(map[string]*Settings),
		sources: make(map[string][]string),
	}
}

// Dir returns the watched directory.
func (l *Library) Dir() string { return l.dir }

// LoadAll reads every YAML file in the directory. A missing directory
// yields an empty library.
func (l *Library) LoadAll() error {
	entries, err := os.ReadDir(l.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("preset: read dir %s: %w", l.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !isPresetFile(e.Name()) {
			continue
		}
		if err := l.Reload(filepath.Join(l.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// Reload re-reads one changed file. Script files reload every preset that
// references them. A removed preset file drops its presets.
func (l *Library) Reload(path string) error {
	if isScriptFile(path) {
		return l.reloadScript(filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		l.mu.Lock()
		l.dropFile(path)
		l.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("preset: load %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("preset: unmarshal %s: %w", path, err)
	}
	loaded := make([]*Settings, 0, len(f.Presets))
	for i := range f.Presets {
		s := f.Presets[i]
		if err := s.validate(); err != nil {
			return fmt.Errorf("preset: %s: %w", path, err)
		}
		if s.Script != "" {
			src, err := os.ReadFile(filepath.Join(l.dir, s.Script))
			if err != nil {
				return fmt.Errorf("preset: %s: script %s: %w", path, s.Script, err)
			}
			s.scriptSrc = string(src)
			if _, err := action.NewScript(s.Name, s.scriptSrc, action.KindAbility); err != nil {
				return fmt.Errorf("preset: %s: %w", path, err)
			}
		}
		loaded = append(loaded, &s)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropFile(path)
	names := make([]string, 0, len(loaded))
	for _, s := range loaded {
		l.presets[s.Name] = s
		names = append(names, s.Name)
	}
	l.sources[path] = names
	return nil
}

func (l *Library) dropFile(path string) {
	for _, name := range l.sources[path] {
		delete(l.presets, name)
	}
	delete(l.sources, path)
}

func (l *Library) reloadScript(name string) error {
	l.mu.RLock()
	var files []string
	for file, names := range l.sources {
		for _, n := range names {
			if p := l.presets[n]; p != nil && p.Script == name {
				files = append(files, file)
				break
			}
		}
	}
	l.mu.RUnlock()
	slices.Sort(files)
	for _, f := range files {
		if err := l.Reload(f); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a copy of the named preset.
func (l *Library) Get(name string) (Settings, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.presets[name]
	if !ok {
		return Settings{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return *s, nil
}

// Action builds a CollisionAction from the named preset.
func (l *Library) Action(name string, targets ...action.Reactive) (*action.CollisionAction, error) {
	s, err := l.Get(name)
	if err != nil {
		return nil, err
	}
	return s.Action(targets...)
}

// Names lists the loaded presets in sorted order.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.presets))
	for n := range l.presets {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func isPresetFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func isScriptFile(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".tengo"
}

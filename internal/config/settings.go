package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Content languages select the embedding model pair.
const (
	LanguageEnglish      = "english"
	LanguageMultilingual = "multilingual"
)

// Model platform names.
const (
	PlatformOpenAI           = "openai"
	PlatformSiliconFlow      = "siliconflow"
	PlatformDashScope        = "dashscope"
	PlatformDeepSeek         = "deepseek"
	PlatformOpenAICompatible = "openai_compatible"
)

// Settings are the user-editable settings persisted between runs.
type Settings struct {
	ClientID        string          `yaml:"client_id"`
	ContentLanguage string          `yaml:"content_language"`
	Indexer         IndexerSetting  `yaml:"indexer"`
	Watcher         WatcherSetting  `yaml:"watcher"`
	Platform        PlatformSetting `yaml:"platform"`
}

// IndexerSetting controls what the scanner considers and whether media is sent
// to an analysis platform.
type IndexerSetting struct {
	IsPrivate      bool     `yaml:"is_private"`
	IgnoreDirs     []string `yaml:"ignore_dirs"`
	IgnoreExts     []string `yaml:"ignore_exts"`
	IgnoreFiles    []string `yaml:"ignore_files"`
	IgnorePatterns []string `yaml:"ignore_patterns"`
}

// WatcherSetting lists the watched roots.
type WatcherSetting struct {
	Directories []string `yaml:"directories"`
	Files       []string `yaml:"files"`
}

// PlatformSetting describes the active media-analysis platform.
type PlatformSetting struct {
	Name        string `yaml:"name"`
	BaseURL     string `yaml:"base_url,omitempty"`
	APIKey      string `yaml:"api_key,omitempty"`
	VisionModel string `yaml:"vision_model,omitempty"`
	AudioModel  string `yaml:"audio_model,omitempty"`
}

// Enabled reports whether the platform can be called.
func (p PlatformSetting) Enabled() bool {
	return p.APIKey != ""
}

// DefaultSettings returns the settings used before anything is persisted.
func DefaultSettings() Settings {
	return Settings{
		ClientID:        uuid.NewString(),
		ContentLanguage: LanguageEnglish,
		Indexer: IndexerSetting{
			IsPrivate:  true,
			IgnoreDirs: []string{"node_modules"},
			IgnoreExts: []string{"tmp"},
		},
		Platform: PlatformSetting{
			Name:        PlatformOpenAI,
			VisionModel: "gpt-4o-mini",
			AudioModel:  "whisper-1",
		},
	}
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	out.Indexer.IgnoreDirs = slices.Clone(s.Indexer.IgnoreDirs)
	out.Indexer.IgnoreExts = slices.Clone(s.Indexer.IgnoreExts)
	out.Indexer.IgnoreFiles = slices.Clone(s.Indexer.IgnoreFiles)
	out.Indexer.IgnorePatterns = slices.Clone(s.Indexer.IgnorePatterns)
	out.Watcher.Directories = slices.Clone(s.Watcher.Directories)
	out.Watcher.Files = slices.Clone(s.Watcher.Files)
	return out
}

// SettingsStore guards Settings and writes them to a YAML file on change.
// An empty path keeps settings in memory only.
type SettingsStore struct {
	mu       sync.RWMutex
	path     string
	settings Settings
}

// LoadSettings reads path, falling back to DefaultSettings when it does not
// exist. Defaults are written back so the client id stays stable.
func LoadSettings(path string) (*SettingsStore, error) {
	s := &SettingsStore{path: path, settings: DefaultSettings()}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, s.save()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, &s.settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	if s.settings.ClientID == "" {
		s.settings.ClientID = uuid.NewString()
	}
	if s.settings.ContentLanguage == "" {
		s.settings.ContentLanguage = LanguageEnglish
	}
	return s, nil
}

// NewMemorySettings returns an unpersisted store seeded with settings.
func NewMemorySettings(settings Settings) *SettingsStore {
	return &SettingsStore{settings: settings.Clone()}
}

// Get returns a copy of the current settings.
func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Clone()
}

// Update applies fn to the settings and persists the result. If saving fails
// the in-memory settings are left unchanged.
func (s *SettingsStore) Update(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.settings.Clone()
	fn(&s.settings)
	if err := s.save(); err != nil {
		s.settings = prev
		return err
	}
	return nil
}

// save writes through a temp file and rename. Callers hold mu or own s.
func (s *SettingsStore) save() error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(s.settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}

// AddWatched records path as a watched directory or file. It returns false when
// the path was already present.
func (s *SettingsStore) AddWatched(path string, isDir bool) (bool, error) {
	added := false
	err := s.Update(func(st *Settings) {
		list := &st.Watcher.Files
		if isDir {
			list = &st.Watcher.Directories
		}
		if !slices.Contains(*list, path) {
			*list = append(*list, path)
			added = true
		}
	})
	return added, err
}

// RemoveWatched drops path from both watched lists. It returns false when the
// path was not present.
func (s *SettingsStore) RemoveWatched(path string) (bool, error) {
	removed := false
	err := s.Update(func(st *Settings) {
		before := len(st.Watcher.Directories) + len(st.Watcher.Files)
		st.Watcher.Directories = slices.DeleteFunc(st.Watcher.Directories, func(p string) bool { return p == path })
		st.Watcher.Files = slices.DeleteFunc(st.Watcher.Files, func(p string) bool { return p == path })
		removed = len(st.Watcher.Directories)+len(st.Watcher.Files) != before
	})
	return removed, err
}

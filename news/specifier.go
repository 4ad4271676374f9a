package news

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/mitchellh/mapstructure"
)

// SpecifierStorageKey is the storage key of the last shown feed.
const SpecifierStorageKey = "ntp-news-feed-specifier"

// Storage is a string key/value store such as the one in internal/prefs.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// SpecifierStore persists the selected feed to a long-lived (local) and a
// per-process (session) storage. Either may be nil.
type SpecifierStore struct {
	local   Storage
	session Storage
}

// NewSpecifierStore returns a store over local and session storage.
func NewSpecifierStore(local, session Storage) *SpecifierStore {
	return &SpecifierStore{local: local, session: session}
}

// Save writes spec as JSON to both storages.
func (s *SpecifierStore) Save(spec Specifier) error {
	data, err := sonic.Marshal(spec)
	if err != nil {
		return fmt.Errorf("encode feed specifier: %w", err)
	}
	var errs []error
	for _, st := range []Storage{s.local, s.session} {
		if st == nil {
			continue
		}
		if err := st.Set(SpecifierStorageKey, string(data)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load returns the persisted specifier. The local value wins when present;
// the session value is used otherwise. Malformed or incomplete values are
// reported as absent.
func (s *SpecifierStore) Load() (Specifier, bool) {
	raw := ""
	if s.local != nil {
		raw, _ = s.local.Get(SpecifierStorageKey)
	}
	if raw == "" && s.session != nil {
		raw, _ = s.session.Get(SpecifierStorageKey)
	}
	return ParseSpecifier(raw)
}

// ParseSpecifier decodes a stored specifier. Field values are converted
// loosely (a numeric channel name becomes a string) and a channel or
// publisher specifier needs a non-empty name.
func ParseSpecifier(raw string) (Specifier, bool) {
	if raw == "" {
		return Specifier{}, false
	}

	var value any
	if err := sonic.UnmarshalString(raw, &value); err != nil {
		return Specifier{}, false
	}
	fields, ok := value.(map[string]any)
	if !ok {
		return Specifier{}, false
	}

	var decoded struct {
		Type      string `mapstructure:"type"`
		Channel   string `mapstructure:"channel"`
		Publisher string `mapstructure:"publisher"`
	}
	if err := mapstructure.WeakDecode(fields, &decoded); err != nil {
		return Specifier{}, false
	}

	switch SpecifierType(decoded.Type) {
	case SpecifierAll:
		return AllFeed(), true
	case SpecifierFollowing:
		return FollowingFeed(), true
	case SpecifierChannel:
		if decoded.Channel == "" {
			return Specifier{}, false
		}
		return ChannelFeed(decoded.Channel), true
	case SpecifierPublisher:
		if decoded.Publisher == "" {
			return Specifier{}, false
		}
		return PublisherFeed(decoded.Publisher), true
	}
	return Specifier{}, false
}

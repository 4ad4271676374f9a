package news

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t-webber/ntpnews/internal/prefs"
)

func TestParseSpecifier(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   Specifier
		wantOK bool
	}{
		{"empty", "", Specifier{}, false},
		{"not json", "{oops", Specifier{}, false},
		{"not an object", `"all"`, Specifier{}, false},
		{"null", "null", Specifier{}, false},
		{"all", `{"type":"all"}`, AllFeed(), true},
		{"all drops extras", `{"type":"all","channel":"x"}`, AllFeed(), true},
		{"following", `{"type":"following"}`, FollowingFeed(), true},
		{"channel", `{"type":"channel","channel":"Sports"}`, ChannelFeed("Sports"), true},
		{"channel without name", `{"type":"channel"}`, Specifier{}, false},
		{"channel numeric name", `{"type":"channel","channel":42}`, ChannelFeed("42"), true},
		{"publisher", `{"type":"publisher","publisher":"p1"}`, PublisherFeed("p1"), true},
		{"publisher empty", `{"type":"publisher","publisher":""}`, Specifier{}, false},
		{"unknown type", `{"type":"trending"}`, Specifier{}, false},
		{"missing type", `{}`, Specifier{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseSpecifier(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSpecifierStore_SaveWritesBothStorages(t *testing.T) {
	local, session := prefs.NewMemoryStorage(), prefs.NewMemoryStorage()
	specs := NewSpecifierStore(local, session)

	require.NoError(t, specs.Save(ChannelFeed("Top Stories")))

	for _, st := range []*prefs.MemoryStorage{local, session} {
		raw, ok := st.Get(SpecifierStorageKey)
		require.True(t, ok)
		assert.JSONEq(t, `{"type":"channel","channel":"Top Stories"}`, raw)
	}

	got, ok := specs.Load()
	require.True(t, ok)
	assert.Equal(t, ChannelFeed("Top Stories"), got)
}

func TestSpecifierStore_LocalWins(t *testing.T) {
	local, session := prefs.NewMemoryStorage(), prefs.NewMemoryStorage()
	require.NoError(t, local.Set(SpecifierStorageKey, `{"type":"following"}`))
	require.NoError(t, session.Set(SpecifierStorageKey, `{"type":"publisher","publisher":"p1"}`))

	got, ok := NewSpecifierStore(local, session).Load()
	require.True(t, ok)
	assert.Equal(t, FollowingFeed(), got)
}

func TestSpecifierStore_SessionFallback(t *testing.T) {
	local, session := prefs.NewMemoryStorage(), prefs.NewMemoryStorage()
	require.NoError(t, session.Set(SpecifierStorageKey, `{"type":"publisher","publisher":"p1"}`))

	got, ok := NewSpecifierStore(local, session).Load()
	require.True(t, ok)
	assert.Equal(t, PublisherFeed("p1"), got)

	_, ok = NewSpecifierStore(nil, nil).Load()
	assert.False(t, ok)
}

type failingStorage struct{ err error }

func (f failingStorage) Get(string) (string, bool) { return "", false }
func (f failingStorage) Set(string, string) error  { return f.err }

func TestSpecifierStore_SaveReportsErrors(t *testing.T) {
	boom := errors.New("disk full")
	session := prefs.NewMemoryStorage()
	specs := NewSpecifierStore(failingStorage{err: boom}, session)

	err := specs.Save(AllFeed())
	assert.ErrorIs(t, err, boom)

	_, ok := session.Get(SpecifierStorageKey)
	assert.True(t, ok, "session storage is still written")
}

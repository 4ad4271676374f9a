package news

// Selector projects one field out of [State].
type Selector func(State) any

var fieldTable = []struct {
	name string
	sel  Selector
}{
	{"showNewsWidget", func(s State) any { return s.ShowNewsWidget }},
	{"newsEnabled", func(s State) any { return s.NewsEnabled }},
	{"currentNewsFeed", func(s State) any { return s.CurrentNewsFeed }},
	{"newsFeedItems", func(s State) any { return s.NewsFeedItems }},
	{"newsPublishers", func(s State) any { return s.NewsPublishers }},
	{"newsUpdateAvailable", func(s State) any { return s.NewsUpdateAvailable }},
	{"newsSignals", func(s State) any { return s.NewsSignals }},
	{"newsChannels", func(s State) any { return s.NewsChannels }},
	{"newsFeedError", func(s State) any { return s.NewsFeedError }},
	{"newsLocale", func(s State) any { return s.NewsLocale }},
	{"newsFeedStatus", func(s State) any { return s.NewsFeedStatus }},
}

// Fields returns the JSON names of all [State] fields in declaration order.
func Fields() []string {
	names := make([]string, len(fieldTable))
	for i, f := range fieldTable {
		names[i] = f.name
	}
	return names
}

// FieldSelector returns the projection for the field with the given JSON
// name.
func FieldSelector(name string) (Selector, bool) {
	for _, f := range fieldTable {
		if f.name == name {
			return f.sel, true
		}
	}
	return nil, false
}

// SelectFields projects the named fields into a map keyed by JSON name.
// Unknown names are skipped.
func SelectFields(s State, names []string) map[string]any {
	out := make(map[string]any, len(names))
	for _, name := range names {
		if sel, ok := FieldSelector(name); ok {
			out[name] = sel(s)
		}
	}
	return out
}

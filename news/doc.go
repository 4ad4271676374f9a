// Package news holds the New Tab Page news state and the logic that keeps
// it in sync with a news backend.
//
// [State] is the snapshot UIs render from; it lives in a
// [store.Store] and is changed only through [Patch] values. [Initialize]
// connects a store to a [backend.Controller] and returns a [Dispatcher],
// which implements [Actions] and runs the feed loader:
//
//	st := store.New(news.DefaultState())
//	d := news.Initialize(st, ctrl,
//	    news.WithSpecifierStore(news.NewSpecifierStore(local, session)),
//	)
//	defer d.Close()
//
//	w := news.NewWidget(st, d, news.NewPeekCache(local))
//	defer w.Close()
//
// The feed loader moves [State.NewsFeedStatus] through idle, loading and
// then loaded or error. Only one load is in flight at a time: refresh
// requests received while loading are ignored. Switching feeds while
// loading discards the pending result and loads the new feed afterwards.
package news
